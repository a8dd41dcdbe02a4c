package observability

import (
	"context"
	"sync"
	"time"
)

// OperationInfo describes a session operation such as a login or switch.
type OperationInfo struct {
	Component string // e.g., "session"
	Operation string // e.g., "switch_account"
	Username  string // target account, empty when not applicable
}

// Name returns "component.operation".
func (op OperationInfo) Name() string {
	return op.Component + "." + op.Operation
}

// RequestInfo describes an outgoing HTTP request.
type RequestInfo struct {
	Method string
	URL    string
}

// RequestResult describes the outcome of an HTTP request.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Error      error
}

// Hooks observes session operations and the HTTP requests they make.
type Hooks interface {
	OnOperationStart(ctx context.Context, op OperationInfo) context.Context
	OnOperationEnd(ctx context.Context, op OperationInfo, err error, duration time.Duration)
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
}

// NoopHooks ignores every event.
type NoopHooks struct{}

func (NoopHooks) OnOperationStart(ctx context.Context, _ OperationInfo) context.Context { return ctx }
func (NoopHooks) OnOperationEnd(context.Context, OperationInfo, error, time.Duration) {}
func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }
func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult) {}

// Verify implementations at compile time.
var (
	_ Hooks = NoopHooks{}
	_ Hooks = (*CLIHooks)(nil)
)

// CLIHooks implements Hooks for the developer shell.
// It supports configurable verbosity levels:
//   - 0: Silent (collect stats only, no output)
//   - 1: Operations only
//   - 2: Operations + requests
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates a new CLIHooks with the given verbosity level.
// If collector is nil, metrics are not collected.
// If writer is nil, no trace output is produced.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

func (h *CLIHooks) OnOperationStart(ctx context.Context, op OperationInfo) context.Context {
	level, _, writer := h.snapshot()
	if level >= 1 && writer != nil {
		writer.WriteOperationStart(op)
	}
	return ctx
}

func (h *CLIHooks) OnOperationEnd(_ context.Context, op OperationInfo, err error, duration time.Duration) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordOperation(OperationMetrics{
			Name:     op.Name(),
			Duration: duration,
			Error:    err,
		})
	}
	if level >= 1 && writer != nil {
		writer.WriteOperationEnd(op, err, duration)
	}
}

func (h *CLIHooks) OnRequestStart(ctx context.Context, info RequestInfo) context.Context {
	level, _, writer := h.snapshot()
	if level >= 2 && writer != nil {
		writer.WriteRequestStart(info)
	}
	return ctx
}

func (h *CLIHooks) OnRequestEnd(_ context.Context, info RequestInfo, result RequestResult) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRequest(RequestMetrics{
			Method:     info.Method,
			URL:        info.URL,
			StatusCode: result.StatusCode,
			Duration:   result.Duration,
			Error:      result.Error,
		})
	}
	if level >= 2 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}
