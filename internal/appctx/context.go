// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"

	"github.com/linxtalk/linxtalk-cli/internal/accounts"
	"github.com/linxtalk/linxtalk-cli/internal/auth"
	"github.com/linxtalk/linxtalk-cli/internal/authapi"
	"github.com/linxtalk/linxtalk-cli/internal/busy"
	"github.com/linxtalk/linxtalk-cli/internal/config"
	"github.com/linxtalk/linxtalk-cli/internal/device"
	"github.com/linxtalk/linxtalk-cli/internal/notify"
	"github.com/linxtalk/linxtalk-cli/internal/observability"
	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/session"
	"github.com/linxtalk/linxtalk-cli/internal/storage"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Stores
	Secure   storage.KV
	Store    storage.KV
	Vault    *auth.Vault
	Registry *accounts.Registry
	Profile  *accounts.Profile

	// UI signals
	Busy     *busy.Signal
	Notifier *notify.Notifier

	Client  *authapi.Client
	Session *session.Switcher
	Output  *output.Writer

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	stderr      io.Writer
	interactive bool
	unsubscribe []func()
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Format string

	// Server and storage flags
	BaseURL string
	Profile string
	DataDir string

	// Behavior flags
	Verbose int // 0=off, 1=operations, 2=operations+requests (stacks with -v -v or -vv)
	Stats   bool

	// Device holds fingerprint overrides; empty fields are detected.
	Device device.Fingerprint
}

// Option configures NewApp.
type Option func(*options)

type options struct {
	stdout io.Writer
	stderr io.Writer
	secure storage.KV
	store  storage.KV
}

// WithStdout redirects command output.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr redirects toasts, traces and logs.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithSecureStore replaces the keyring-backed token store.
func WithSecureStore(kv storage.KV) Option {
	return func(o *options) { o.secure = kv }
}

// WithStore replaces the file-backed general store.
func WithStore(kv storage.KV) Option {
	return func(o *options) { o.store = kv }
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, opts ...Option) *App {
	o := options{stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	logger := newLogger(o.stderr, cfg.VerboseLevel())

	if o.store == nil {
		o.store = storage.NewFileStore(cfg.DataDir)
	}
	if o.secure == nil {
		var kopts []auth.KeyringOption
		if cfg.NoKeyring {
			kopts = append(kopts, auth.WithoutKeyring())
		}
		kopts = append(kopts, auth.WithKeyringLogger(logger))
		keyring := auth.NewKeyring(cfg.DataDir, kopts...)
		if keyring.UsingKeyring() {
			// Tokens saved while the keychain was unavailable move into it.
			if err := keyring.MigrateToKeyring(); err != nil {
				logger.Warn("could not move credentials into the keyring", "error", err)
			}
		}
		o.secure = keyring
	}

	// Collector always runs to gather stats; hooks control output verbosity
	collector := observability.NewSessionCollector()
	traceWriter := observability.NewTraceWriterTo(o.stderr)
	hooks := observability.NewCLIHooks(cfg.VerboseLevel(), collector, traceWriter)

	vault := auth.NewVault(o.secure, auth.WithLogger(logger))
	registry := accounts.NewRegistry(o.store, logger)
	profile := accounts.NewProfile(o.store, logger)
	signal := busy.New(busy.WithDelay(cfg.BusyDelay))
	notifier := notify.New(notify.WithDuration(cfg.ToastDuration))

	client := authapi.New(cfg.BaseURL,
		authapi.WithPrefix(cfg.AuthPrefix),
		authapi.WithTokenSource(vault),
		authapi.WithHooks(hooks),
		authapi.WithLogger(logger),
	)

	switcher := session.New(session.Deps{
		Service:  client,
		Vault:    vault,
		Registry: registry,
		Profile:  profile,
		Busy:     signal,
		Notifier: notifier,
	}, session.WithHooks(hooks), session.WithLogger(logger))

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Secure:    o.secure,
		Store:     o.store,
		Vault:     vault,
		Registry:  registry,
		Profile:   profile,
		Busy:      signal,
		Notifier:  notifier,
		Client:    client,
		Session:   switcher,
		Collector: collector,
		Hooks:     hooks,
		Output: output.New(output.Options{
			Format: output.ParseFormat(cfg.Format),
			Writer: o.stdout,
		}),
		stderr:      o.stderr,
		interactive: isTerminal(o.stderr),
	}
	app.watchSignals()
	return app
}

func newLogger(w io.Writer, verbose int) *slog.Logger {
	if verbose == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// watchSignals prints toasts, and the busy indicator on a terminal, to stderr.
func (a *App) watchSignals() {
	a.unsubscribe = append(a.unsubscribe, a.Notifier.Subscribe(func(t notify.Toast, visible bool) {
		if visible {
			fmt.Fprintf(a.stderr, "[%s] %s\n", t.Kind, t.Message)
		}
	}))
	if a.interactive {
		a.unsubscribe = append(a.unsubscribe, a.Busy.Subscribe(func(visible bool) {
			if visible {
				fmt.Fprint(a.stderr, "Working...\r")
			} else {
				fmt.Fprint(a.stderr, "          \r")
			}
		}))
	}
}

// Hydrate loads persisted session state. Read failures leave the session
// signed out; they are logged rather than returned.
func (a *App) Hydrate(ctx context.Context) {
	if err := a.Session.Hydrate(ctx); err != nil {
		a.Logger.Warn("could not restore session", "error", err)
	}
}

// Fingerprint describes this device, applying any flag overrides.
func (a *App) Fingerprint(ctx context.Context) (device.Fingerprint, error) {
	return device.Detect(ctx, a.Store, a.Flags.Device)
}

// Close flushes pending store writes and detaches the stderr listeners.
func (a *App) Close(ctx context.Context) error {
	for _, unsub := range a.unsubscribe {
		unsub()
	}
	a.unsubscribe = nil

	var firstErr error
	for _, flush := range []func(context.Context) error{a.Vault.Flush, a.Registry.Flush, a.Profile.Flush} {
		if err := flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OK outputs a success response.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if err := a.Output.OK(data, opts...); err != nil {
		return err
	}
	a.printStats()
	return nil
}

// Err outputs an error response, printing stats to stderr if --stats flag is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	a.printStats()
	return nil
}

// printStats outputs a compact stats line to stderr when --stats is set.
func (a *App) printStats() {
	if !a.Flags.Stats || a.Collector == nil {
		return
	}
	stats := a.Collector.Summary()
	if line := formatStats(stats); line != "" {
		fmt.Fprintf(a.stderr, "\nStats: %s\n", line)
	}
}

func formatStats(stats observability.SessionMetrics) string {
	var parts []string

	duration := stats.EndTime.Sub(stats.StartTime)
	if duration < time.Second {
		parts = append(parts, fmt.Sprintf("%dms", duration.Milliseconds()))
	} else {
		parts = append(parts, fmt.Sprintf("%.1fs", duration.Seconds()))
	}

	if stats.TotalRequests == 1 {
		parts = append(parts, "1 request")
	} else if stats.TotalRequests > 1 {
		parts = append(parts, fmt.Sprintf("%d requests", stats.TotalRequests))
	}
	if stats.FailedRequests > 0 {
		parts = append(parts, fmt.Sprintf("%d failed requests", stats.FailedRequests))
	}
	if stats.FailedOps > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", stats.FailedOps))
	}

	return strings.Join(parts, " | ")
}

// IsInteractive returns true if stdin is a terminal we can prompt on.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON {
		return false
	}
	return term.IsTerminal(os.Stdin.Fd())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
