// Package cli wires the root command, global flags and exit handling.
package cli

import (
	"context"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/linxtalk/linxtalk-cli/internal/appctx"
	"github.com/linxtalk/linxtalk-cli/internal/commands"
	"github.com/linxtalk/linxtalk-cli/internal/config"
	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/version"
)

// flushTimeout bounds how long exit waits for pending store writes.
const flushTimeout = 5 * time.Second

// NewRootCmd creates the root cobra command. App output goes to stdout and
// toasts, traces and logs to stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "linxtalk",
		Short:         "Command-line client for LinxTalk accounts",
		Long:          "linxtalk signs in to LinxTalk, keeps several saved accounts on this device, and switches between them.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			format := flags.Format
			if flags.JSON {
				format = "json"
			}
			if format != "" && format != "json" && format != "text" && format != "auto" {
				return output.ErrUsage("Unknown format: " + format)
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL: flags.BaseURL,
				Profile: flags.Profile,
				DataDir: flags.DataDir,
				Format:  format,
				Verbose: flags.Verbose,
			})
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			app := appctx.NewApp(cfg, appctx.WithStdout(stdout), appctx.WithStderr(stderr))
			app.Flags = flags
			app.Hydrate(cmd.Context())

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().StringVar(&flags.Format, "format", "", "Output format: auto, json or text")

	// Server and storage flags
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "Auth server base URL (e.g., localhost:8080, api.linxtalk.app)")
	cmd.PersistentFlags().StringVar(&flags.Profile, "profile", "", "Named server from the config file")
	cmd.PersistentFlags().StringVar(&flags.DataDir, "data-dir", "", "Directory for saved accounts and device state")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for ops, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	cmd.PersistentFlags().AddFlagSet(deviceFlags(&flags))

	return cmd
}

// deviceFlags overrides parts of the fingerprint sent on sign-in.
func deviceFlags(flags *appctx.GlobalFlags) *pflag.FlagSet {
	fs := pflag.NewFlagSet("device", pflag.ContinueOnError)
	fs.StringVar(&flags.Device.DeviceName, "device-name", "", "Device name reported to the server (default: hostname)")
	fs.StringVar(&flags.Device.DeviceModel, "device-model", "", "Device model reported to the server (default: CPU architecture)")
	fs.StringVar(&flags.Device.Platform, "platform", "", "Platform reported to the server (default: operating system)")
	return fs
}

// Execute runs the root command and exits with the error's exit code.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the command line in args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd(stdout, stderr)
	cmd.AddCommand(commands.All()...)
	cmd.SetArgs(args)

	// Use ExecuteContextC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteContextC(ctx)

	app := appctx.FromContext(executedCmd.Context())
	if app != nil {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		if closeErr := app.Close(flushCtx); closeErr != nil && err == nil {
			err = closeErr
		}
		cancel()
	}

	if err == nil {
		return output.ExitOK
	}

	// Transform Cobra errors into usage errors
	err = transformCobraError(err)
	apiErr := output.AsError(err)

	if app != nil {
		_ = app.Err(err)
		return apiErr.ExitCode()
	}

	// Fallback: output error directly (app not available, e.g., during setup)
	pf := cmd.PersistentFlags()
	format := output.FormatAuto
	if jsonFlag, _ := pf.GetBool("json"); jsonFlag {
		format = output.FormatJSON
	} else if f, _ := pf.GetString("format"); f != "" {
		format = output.ParseFormat(f)
	}
	_ = output.New(output.Options{Format: format, Writer: stdout}).Err(err)

	return apiErr.ExitCode()
}

// transformCobraError turns Cobra's default error messages into usage errors.
func transformCobraError(err error) error {
	msg := err.Error()

	// "flag needs an argument: --FLAG" → "--FLAG requires a value"
	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	}

	// "unknown flag: --FLAG" → "Unknown option: --FLAG"
	if strings.HasPrefix(msg, "unknown flag: ") {
		flag := strings.TrimPrefix(msg, "unknown flag: ")
		return output.ErrUsage("Unknown option: " + flag)
	}

	// "unknown shorthand flag: 'X' in -X" → "Unknown option: -X"
	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		re := regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run: linxtalk --help")
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	// "accepts 1 arg(s), received 0" → "Username required"
	if strings.Contains(msg, "arg(s), received 0") {
		return output.ErrUsage("Username required")
	}
	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage("Too many arguments")
	}

	// "required flag(s) "x" not set" → "x required"
	if strings.HasPrefix(msg, "required flag(s) ") {
		re := regexp.MustCompile(`required flag\(s\) "([\w-]+)" not set`)
		if matches := re.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("--" + matches[1] + " required")
		}
	}

	return err
}
