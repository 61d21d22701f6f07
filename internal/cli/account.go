package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tandem/internal/identity"
	"github.com/roach88/tandem/internal/model"
)

// AccountAddOptions holds flags for account add.
type AccountAddOptions struct {
	*RootOptions
	Name     string
	Email    string
	Avatar   string
	OrgID    string
	OrgName  string
	Group    string
	OrgEntry string
}

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage directory entries",
	}
	cmd.AddCommand(newAccountAddCommand(rootOpts))
	return cmd
}

func newAccountAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Write an account into the directory",
		Long: `Write an account into the directory so conversations with it can be
created. Signing in also refreshes the signed-in account's own entry.

--org-entry additionally writes the organisation document, which is what
organisation name backfill reads.

Example:
  tandem account add bob --name Bob --email bob@example.com --org-id org-b --org-name "Unknown" --org-entry Bobcorp`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := identity.ValidateAccountID(args[0]); err != nil {
				return WrapExitError(ExitCommandError, "invalid account id", err)
			}
			e, err := openEnv(cmd, opts.RootOptions)
			if err != nil {
				return err
			}
			defer e.Close()

			acct := model.Account{
				ID:               args[0],
				DisplayName:      opts.Name,
				Email:            opts.Email,
				Avatar:           opts.Avatar,
				OrganizationID:   opts.OrgID,
				OrganizationName: opts.OrgName,
				AccountGroupID:   opts.Group,
			}
			dir := e.directory()
			if err := dir.PutAccount(cmd.Context(), acct); err != nil {
				return WrapExitError(ExitFailure, "failed to write account", err)
			}
			if opts.OrgEntry != "" {
				if opts.OrgID == "" {
					return NewExitError(ExitCommandError, "--org-entry requires --org-id")
				}
				if err := dir.PutOrganization(cmd.Context(), opts.OrgID, opts.OrgEntry); err != nil {
					return WrapExitError(ExitFailure, "failed to write organization", err)
				}
			}
			return e.out.Emit(acct, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Added %s\n", acct.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Avatar, "avatar", "", "avatar URL")
	cmd.Flags().StringVar(&opts.OrgID, "org-id", "", "organization id")
	cmd.Flags().StringVar(&opts.OrgName, "org-name", "", "organization name cached on the account")
	cmd.Flags().StringVar(&opts.Group, "group", "", "reminder account group (default: the account id)")
	cmd.Flags().StringVar(&opts.OrgEntry, "org-entry", "", "also write the organization document with this name")

	return cmd
}
