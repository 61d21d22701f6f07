package chat

import (
	"errors"
	"fmt"

	"github.com/roach88/tandem/internal/docstore"
)

var (
	// ErrEmptyMessage is returned when a message is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoConversation is returned when sending with nothing selected.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrSameParticipant is returned when creating a conversation with
	// oneself.
	ErrSameParticipant = errors.New("conversation needs two distinct participants")

	// ErrNotStarted is returned when the account's conversations are not
	// being followed.
	ErrNotStarted = errors.New("conversation sync not started")
)

// ReadStateError reports that a conversation could not be marked read
// remotely. The optimistic local change has been rolled back.
type ReadStateError struct {
	ConversationID string
	Err            error
}

// Error implements the error interface.
func (e *ReadStateError) Error() string {
	return fmt.Sprintf("mark conversation %s read: %v", e.ConversationID, e.Err)
}

// Unwrap returns the underlying store error.
func (e *ReadStateError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether retrying may succeed. Authorization
// failures are final.
func (e *ReadStateError) Recoverable() bool {
	return !docstore.IsPermissionDenied(e.Err)
}

// IsReadStateError reports whether err is (or wraps) a *ReadStateError.
// Uses errors.As to handle wrapped errors.
func IsReadStateError(err error) bool {
	var rse *ReadStateError
	return errors.As(err, &rse)
}
