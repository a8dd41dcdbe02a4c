// Package commands implements the CLI commands.
package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/linxtalk/linxtalk-cli/internal/appctx"
	"github.com/linxtalk/linxtalk-cli/internal/output"
)

// All returns every top-level command.
func All() []*cobra.Command {
	return []*cobra.Command{
		NewLoginCmd(),
		NewLoginIdentityCmd(),
		NewRegisterCmd(),
		NewLogoutCmd(),
		NewSwitchCmd(),
		NewReauthCmd(),
		NewAddCmd(),
		NewRemoveCmd(),
		NewAccountsCmd(),
		NewStatusCmd(),
		NewVersionCmd(),
	}
}

func appFrom(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}

// passwordFlags are shared by every command that takes a password.
type passwordFlags struct {
	password string
	stdin    bool
}

func (p *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.password, "password", "", "Password (prompted when omitted)")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "Read the password from stdin")
}

// read returns the password from --password, stdin, or an echo-less prompt.
func (p *passwordFlags) read(cmd *cobra.Command, app *appctx.App, username string) (string, error) {
	if p.password != "" {
		return p.password, nil
	}
	if p.stdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if err != nil {
				return "", output.ErrUsage("No password on stdin")
			}
			return "", output.ErrUsage("Password required")
		}
		return line, nil
	}
	if !app.IsInteractive() {
		return "", output.ErrUsageHint("Password required", "Use --password or --password-stdin")
	}
	return promptPassword(cmd, fmt.Sprintf("Password for %s: ", username))
}

func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(os.Stdin.Fd())
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", output.ErrUsage("Could not read password: " + err.Error())
	}
	if len(b) == 0 {
		return "", output.ErrUsage("Password required")
	}
	return string(b), nil
}
