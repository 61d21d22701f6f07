package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/chat"
	"github.com/roach88/tandem/internal/client"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/identity"
)

func TestOutput_JSONEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &Output{Format: "json", Writer: buf}

	err := out.Emit(map[string]string{"result": "ok"}, func(io.Writer) error {
		t.Fatal("text renderer called in json mode")
		return nil
	})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "ok"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutput_TextEmit(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &Output{Format: "text", Writer: buf}

	err := out.Emit("ignored", func(w io.Writer) error {
		_, err := fmt.Fprintln(w, "rendered")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "rendered\n", buf.String())
}

func TestOutput_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	out := &Output{Format: "json", Writer: buf}

	require.NoError(t, out.Fail(fmt.Errorf("send: %w", client.ErrNotSignedIn)))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_signed_in", resp.Error.Code)
	assert.Equal(t, "send: not signed in", resp.Error.Message)

	buf.Reset()
	out.Format = "text"
	require.NoError(t, out.Fail(docstore.ErrNotFound))
	assert.Contains(t, buf.String(), "Error [not_found]")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"credentials", WrapExitError(ExitCommandError, "sign in failed", identity.ErrInvalidCredentials), "invalid_credentials"},
		{"account id", WrapExitError(ExitCommandError, "invalid account id", identity.ValidateAccountID("a.b")), "invalid_account_id"},
		{"conflict", fmt.Errorf("acknowledge reminder: %w", docstore.ErrFailedPrecondition), "conflict"},
		{"empty message", fmt.Errorf("send: %w", chat.ErrEmptyMessage), "empty_message"},
		{"read state", &chat.ReadStateError{ConversationID: "c", Err: docstore.ErrUnavailable}, "read_state"},
		{"transient", docstore.ErrUnavailable, "unavailable"},
		{"permission", docstore.ErrPermissionDenied, "permission_denied"},
		{"signed out", WrapExitError(ExitFailure, "watch ended", errSignedOut), "signed_in_elsewhere"},
		{"usage", NewExitError(ExitCommandError, "bad flag"), "usage"},
		{"other", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", WrapExitError(ExitFailure, "x", nil))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestExitError_Unwrap(t *testing.T) {
	err := WrapExitError(ExitFailure, "failed to send", chat.ErrEmptyMessage)
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	assert.Equal(t, "failed to send: message is empty", err.Error())
	assert.Equal(t, "bare", NewExitError(ExitFailure, "bare").Error())
}
