package docstore

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by Store implementations. Implementations wrap
// them with operation context; match with errors.Is.
var (
	// ErrNotFound: the document does not exist (Get, Update).
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists: Create found an existing document.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrPermissionDenied: the caller may not access the document.
	// Never retried automatically.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrFailedPrecondition: an Update precondition did not hold.
	ErrFailedPrecondition = errors.New("failed precondition")

	// ErrUnavailable: transient failure (network loss, store restarting).
	ErrUnavailable = errors.New("store unavailable")
)

// OpError records the failed operation and path.
type OpError struct {
	Op   string // "get", "set", "create", "update", "delete", "query", "subscribe"
	Path string
	Err  error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("docstore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("docstore %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapOp wraps err with the operation and path it failed on.
func WrapOp(op, path string, err error) error {
	return &OpError{Op: op, Path: path, Err: err}
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsPermissionDenied reports whether err is an authorization failure.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
