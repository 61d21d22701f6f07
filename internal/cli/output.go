package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tandem/internal/chat"
	"github.com/roach88/tandem/internal/client"
	"github.com/roach88/tandem/internal/config"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/identity"
	"github.com/roach88/tandem/internal/reminder"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (store error, signed out by another device, ...)
	ExitCommandError = 2 // Command error (bad flags, invalid config, bad credentials)
)

// ExitError carries an exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope of every command.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Output writes command results as text or as a JSON envelope.
type Output struct {
	Format string
	Writer io.Writer
}

// Emit writes data. In text mode render produces the output instead.
func (o *Output) Emit(data any, render func(io.Writer) error) error {
	if o.Format == "json" {
		return json.NewEncoder(o.Writer).Encode(Response{Status: "ok", Data: data})
	}
	return render(o.Writer)
}

// Fail reports err.
func (o *Output) Fail(err error) error {
	if o.Format == "json" {
		return json.NewEncoder(o.Writer).Encode(Response{
			Status: "error",
			Error:  &ResponseError{Code: ErrorCode(err), Message: err.Error()},
		})
	}
	_, werr := fmt.Fprintf(o.Writer, "Error [%s]: %v\n", ErrorCode(err), err)
	return werr
}

// ErrorCode classifies err for scripts.
func ErrorCode(err error) string {
	var readErr *chat.ReadStateError
	switch {
	case errors.Is(err, client.ErrNotSignedIn):
		return "not_signed_in"
	case errors.Is(err, errSignedOut):
		return "signed_in_elsewhere"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrInvalidAccountID):
		return "invalid_account_id"
	case config.IsValidationError(err):
		return "invalid_config"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, chat.ErrSameParticipant):
		return "same_participant"
	case errors.Is(err, reminder.ErrAlreadyAcknowledged):
		return "already_acknowledged"
	case errors.As(err, &readErr):
		return "read_state"
	case docstore.IsNotFound(err):
		return "not_found"
	case docstore.IsPermissionDenied(err):
		return "permission_denied"
	case docstore.IsTransient(err):
		return "unavailable"
	case errors.Is(err, docstore.ErrFailedPrecondition):
		return "conflict"
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == ExitCommandError {
		return "usage"
	}
	return "error"
}
