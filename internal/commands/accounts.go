package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linxtalk/linxtalk-cli/internal/accounts"
	"github.com/linxtalk/linxtalk-cli/internal/appctx"
	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/session"
)

// NewSwitchCmd creates the switch command.
func NewSwitchCmd() *cobra.Command {
	var pw passwordFlags
	var noPrompt bool

	cmd := &cobra.Command{
		Use:   "switch <username>",
		Short: "Switch to a saved account",
		Long: `Switch to a saved account without a password. If the server says the
account's session on this device has expired, you are asked for its password.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			target, err := savedAccount(app, args[0])
			if err != nil {
				return err
			}
			fp, err := app.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}

			err = app.Session.SwitchAccount(cmd.Context(), target, fp)
			if err != nil {
				if app.Session.State().Phase != session.AwaitingReauth {
					return err
				}
				if noPrompt || (pw.password == "" && !pw.stdin && !app.IsInteractive()) {
					return err
				}
				password, perr := pw.read(cmd, app, target.Username)
				if perr != nil {
					app.Session.CancelReauth()
					return perr
				}
				if err := app.Session.Reauthenticate(cmd.Context(), target, password, fp); err != nil {
					return err
				}
			}

			current, _ := app.Profile.Current()
			return app.OK(accountView(current.Saved(), true),
				output.WithSummary(fmt.Sprintf("Switched to %s", displayName(current.DisplayName, target.Username))))
		},
	}
	pw.register(cmd)
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Fail instead of asking for a password when the session expired")

	return cmd
}

// NewReauthCmd creates the reauth command.
func NewReauthCmd() *cobra.Command {
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "reauth <username>",
		Short: "Sign in again to a saved account whose session expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			target, ok := app.Registry.Find(args[0])
			if !ok {
				target = accounts.SavedAccount{Username: args[0]}
			}

			password, err := pw.read(cmd, app, target.Username)
			if err != nil {
				return err
			}
			fp, err := app.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}

			if err := app.Session.Reauthenticate(cmd.Context(), target, password, fp); err != nil {
				return err
			}

			current, _ := app.Profile.Current()
			return app.OK(accountView(current.Saved(), true),
				output.WithSummary(fmt.Sprintf("Switched to %s", displayName(current.DisplayName, target.Username))))
		},
	}
	pw.register(cmd)

	return cmd
}

// NewAddCmd creates the add command.
func NewAddCmd() *cobra.Command {
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Save another account on this device",
		Long:  "Verify another account's password and save it for switching. The active account stays signed in.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			username := args[0]

			password, err := pw.read(cmd, app, username)
			if err != nil {
				return err
			}
			fp, err := app.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}

			creds := session.Credentials{Username: username, Password: password}
			if err := app.Session.AddAccount(cmd.Context(), creds, fp); err != nil {
				return err
			}

			saved, _ := app.Registry.Find(username)
			return app.OK(accountView(saved, isActive(app, username)),
				output.WithSummary(fmt.Sprintf("Saved %s", displayName(saved.DisplayName, username))))
		},
	}
	pw.register(cmd)

	return cmd
}

// NewRemoveCmd creates the remove command.
func NewRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>",
		Short: "Forget a saved account",
		Long:  "Remove a saved account from this device and revoke its session on the server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			username := args[0]
			if _, ok := app.Registry.Find(username); !ok {
				return output.ErrUsageHint(fmt.Sprintf("No saved account %q", username), "Run: linxtalk accounts")
			}
			fp, err := app.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}

			if err := app.Session.RemoveAccount(cmd.Context(), username, fp); err != nil {
				return err
			}

			return app.OK(map[string]any{"username": username, "removed": true},
				output.WithSummary(fmt.Sprintf("Removed %s", username)))
		},
	}
}

// NewAccountsCmd creates the accounts command.
func NewAccountsCmd() *cobra.Command {
	var others bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List saved accounts",
		Long:  "List accounts saved on this device, most recently used first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}

			saved := app.Registry.Accounts()
			if others {
				saved = app.Session.SwitchTargets()
			}
			list := make([]map[string]any, 0, len(saved))
			for _, a := range saved {
				list = append(list, accountView(a, isActive(app, a.Username)))
			}

			return app.OK(list, output.WithSummary(fmt.Sprintf("%d saved account(s)", len(saved))))
		},
	}
	cmd.Flags().BoolVar(&others, "others", false, "Only list accounts you can switch to")

	return cmd
}

// savedAccount looks up a switch target.
func savedAccount(app *appctx.App, username string) (accounts.SavedAccount, error) {
	target, ok := app.Registry.Find(username)
	if !ok {
		return accounts.SavedAccount{}, output.ErrUsageHint(
			fmt.Sprintf("No saved account %q", username),
			"Run: linxtalk add "+username,
		)
	}
	return target, nil
}

func isActive(app *appctx.App, username string) bool {
	current, ok := app.Profile.Current()
	return ok && current.Username != "" && current.Username == username
}

func accountView(a accounts.SavedAccount, active bool) map[string]any {
	view := map[string]any{
		"username":     a.Username,
		"display_name": a.DisplayName,
		"active":       active,
	}
	if a.AvatarURL != "" {
		view["avatar_url"] = a.AvatarURL
	}
	return view
}
