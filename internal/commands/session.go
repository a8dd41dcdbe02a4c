package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/session"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	var pw passwordFlags

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in with a username and password",
		Long:  "Sign in and make the account active. The account is saved on this device for later switching.",
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
			if err := app.Session.Login(cmd.Context(), creds, fp); err != nil {
				return err
			}

			current, _ := app.Profile.Current()
			return app.OK(accountView(current.Saved(), true),
				output.WithSummary(fmt.Sprintf("Logged in as %s", displayName(current.DisplayName, username))))
		},
	}
	pw.register(cmd)

	return cmd
}

// NewLoginIdentityCmd creates the login-identity command.
func NewLoginIdentityCmd() *cobra.Command {
	var idToken, email string

	cmd := &cobra.Command{
		Use:   "login-identity",
		Short: "Sign in with an identity-provider token",
		Long:  "Sign in with an ID token from an external identity provider. These sessions are not saved for switching.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			fp, err := app.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}

			creds := session.IdentityCredentials{IDToken: idToken, Email: email}
			if err := app.Session.LoginWithIdentityToken(cmd.Context(), creds, fp); err != nil {
				return err
			}

			current, _ := app.Profile.Current()
			return app.OK(map[string]any{
				"email":        current.Email,
				"display_name": current.DisplayName,
				"active":       true,
			}, output.WithSummary(fmt.Sprintf("Logged in as %s", displayName(current.DisplayName, email))))
		},
	}

	cmd.Flags().StringVar(&idToken, "id-token", "", "ID token from the identity provider")
	cmd.Flags().StringVar(&email, "email", "", "Email address of the identity")
	_ = cmd.MarkFlagRequired("id-token")

	return cmd
}

// NewRegisterCmd creates the register command.
func NewRegisterCmd() *cobra.Command {
	var pw passwordFlags
	var name string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a new account",
		Long:  "Create an account on the server. Sign in afterwards with 'linxtalk login'.",
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

			reg := session.Registration{Username: username, Password: password, DisplayName: name}
			if err := app.Session.Register(cmd.Context(), reg); err != nil {
				return err
			}

			return app.OK(map[string]any{
				"username":     username,
				"display_name": name,
			}, output.WithSummary(fmt.Sprintf("Registered %s", username)))
		},
	}
	pw.register(cmd)
	cmd.Flags().StringVar(&name, "display-name", "", "Name shown to other people")
	_ = cmd.MarkFlagRequired("display-name")

	return cmd
}

// NewLogoutCmd creates the logout command.
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the active account",
		Long:  "Sign out on the server and clear the local session. The local session is cleared even when the server can't be reached.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := appFrom(cmd)
			if err != nil {
				return err
			}
			fp, err := app.Fingerprint(cmd.Context())
			if err != nil {
				return err
			}

			result := map[string]any{"status": "logged_out"}
			summary := "Logged out"
			if err := app.Session.Logout(cmd.Context(), fp); err != nil {
				result["server_error"] = output.AsError(err).Error()
				summary = "Logged out locally; the server could not be notified"
			}

			return app.OK(result, output.WithSummary(summary))
		},
	}
}

func displayName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
