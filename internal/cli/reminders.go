package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tandem/internal/metrics"
)

// DefaultLatestReminders is the default page size of reminders latest.
const DefaultLatestReminders = 5

// NewRemindersCommand creates the reminders command group.
func NewRemindersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect and acknowledge the account group's reminders",
	}
	cmd.AddCommand(newRemindersLatestCommand(rootOpts))
	cmd.AddCommand(newRemindersRefreshCommand(rootOpts))
	cmd.AddCommand(newRemindersAckCommand(rootOpts))
	return cmd
}

func newRemindersLatestCommand(rootOpts *RootOptions) *cobra.Command {
	auth := &AuthOptions{}
	var limit int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			c, err := e.signIn(cmd.Context(), auth, metrics.Nop{})
			if err != nil {
				return err
			}
			rs, err := c.LatestReminders(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read reminders", err)
			}
			return e.out.Emit(rs, func(w io.Writer) error {
				return renderReminders(w, rs)
			})
		},
	}
	addAuthFlags(cmd, auth)
	cmd.Flags().IntVarP(&limit, "limit", "n", DefaultLatestReminders, "number of reminders")
	return cmd
}

func newRemindersRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	auth := &AuthOptions{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-read the unread reminder count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			c, err := e.signIn(ctx, auth, metrics.Nop{})
			if err != nil {
				return err
			}
			if err := c.RefreshReminders(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to refresh reminders", err)
			}
			if err := c.Settle(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to refresh reminders", err)
			}
			st, err := c.State(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read state", err)
			}
			result := map[string]int{"unreadReminders": st.UnreadReminders}
			return e.out.Emit(result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%d unread reminders\n", st.UnreadReminders)
				return err
			})
		},
	}
	addAuthFlags(cmd, auth)
	return cmd
}

func newRemindersAckCommand(rootOpts *RootOptions) *cobra.Command {
	auth := &AuthOptions{}

	cmd := &cobra.Command{
		Use:   "ack <reminder-id>",
		Short: "Acknowledge a reminder",
		Args:  cobra.ExactArgs(1),
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
			if err := c.AcknowledgeReminder(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitFailure, "failed to acknowledge reminder", err)
			}
			return e.out.Emit(map[string]string{"acknowledged": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Acknowledged %s\n", args[0])
				return err
			})
		},
	}
	addAuthFlags(cmd, auth)
	return cmd
}
