package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tandem/internal/metrics"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Auth AuthOptions
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <peer> <text>",
		Short: "Send a message to another account",
		Long: `Send a message to another account, creating the conversation on first
contact. The peer must be in the directory.

Example:
  tandem send bob "lunch?" --as alice --secret s3cret`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			c, err := e.signIn(ctx, &opts.Auth, metrics.Nop{})
			if err != nil {
				return err
			}
			id, err := c.CreateConversation(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to open conversation", err)
			}
			if err := c.SelectConversation(ctx, id); err != nil {
				return WrapExitError(ExitFailure, "failed to open conversation", err)
			}
			msg, err := c.SendMessage(ctx, args[1])
			if err != nil {
				return WrapExitError(ExitFailure, "failed to send", err)
			}
			return e.out.Emit(msg, func(w io.Writer) error {
				return renderMessage(w, msg)
			})
		},
	}
	addAuthFlags(cmd, &opts.Auth)
	return cmd
}

// NewConversationsCommand creates the conversations command.
func NewConversationsCommand(rootOpts *RootOptions) *cobra.Command {
	auth := &AuthOptions{}

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, newest first",
		Args:    cobra.NoArgs,
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
			st, err := c.State(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read state", err)
			}
			return e.out.Emit(st, func(w io.Writer) error {
				if err := renderConversations(w, st.Account.ID, st.Conversations); err != nil {
					return err
				}
				_, err := fmt.Fprintf(w, "%d unread\n", st.UnreadConversationsCount)
				return err
			})
		},
	}
	addAuthFlags(cmd, auth)
	return cmd
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	auth := &AuthOptions{}

	cmd := &cobra.Command{
		Use:   "read <conversation-id>",
		Short: "Mark a conversation as read",
		Long: `Mark a conversation as read: its unread counter is cleared and every
message from the other participant is flagged read.`,
		Args: cobra.ExactArgs(1),
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
			if err := c.MarkConversationAsRead(ctx, args[0]); err != nil {
				return WrapExitError(ExitFailure, "failed to mark as read", err)
			}
			if err := c.Settle(ctx); err != nil {
				return WrapExitError(ExitFailure, "failed to mark as read", err)
			}
			st, err := c.State(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read state", err)
			}
			result := map[string]any{
				"conversationId":           args[0],
				"unreadConversationsCount": st.UnreadConversationsCount,
			}
			return e.out.Emit(result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Read %s (%d unread left)\n", args[0], st.UnreadConversationsCount)
				return err
			})
		},
	}
	addAuthFlags(cmd, auth)
	return cmd
}
