package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linxtalk/linxtalk-cli/internal/auth"
	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/session"
	"github.com/linxtalk/linxtalk-cli/internal/version"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session status",
		Long:  "Show whether you're signed in, the active account, and where the app would start.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			dest := app.Session.Destination()
			status := map[string]any{
				"authenticated":  app.Vault.IsAuthenticated(),
				"destination":    dest.String(),
				"saved_accounts": len(app.Registry.Accounts()),
				"server":         app.Config.BaseURL,
			}
			if k, ok := app.Secure.(*auth.Keyring); ok {
				status["keyring"] = k.UsingKeyring()
			}
			if app.Config.ActiveProfile != "" {
				status["profile"] = app.Config.ActiveProfile
			}

			summary := "Not signed in"
			if current, ok := app.Profile.Current(); ok && app.Vault.IsAuthenticated() {
				status["account"] = map[string]any{
					"username":     current.Username,
					"email":        current.Email,
					"display_name": current.DisplayName,
				}
				summary = fmt.Sprintf("Signed in as %s", displayName(current.DisplayName, current.Username))
			} else if dest == session.DestinationSavedAccounts {
				summary = "Session expired; pick a saved account with 'linxtalk switch'"
			}

			return app.OK(status, output.WithSummary(summary))
		},
	}
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return nil
		},
	}
}
