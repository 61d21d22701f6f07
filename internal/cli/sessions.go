package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tandem/internal/metrics"
)

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	auth := &AuthOptions{}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the account's session records",
		Long: `List the account's session records, most recently active first.

Signing in here makes this device the newest session, so other devices of
the account sign out; stale records they leave are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			c, err := e.signIn(cmd.Context(), auth, metrics.Nop{})
			if err != nil {
				return err
			}
			sessions, err := c.Sessions(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list sessions", err)
			}
			return e.out.Emit(sessions, func(w io.Writer) error {
				return renderSessions(w, e.deviceID, sessions)
			})
		},
	}
	addAuthFlags(cmd, auth)
	return cmd
}
