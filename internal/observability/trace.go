package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// sensitiveParams are query parameter names scrubbed from trace output.
var sensitiveParams = map[string]bool{
	"access_token":  true,
	"accesstoken":   true,
	"refresh_token": true,
	"refreshtoken":  true,
	"token":         true,
	"idtokenstring": true,
	"password":      true,
	"secret":        true,
}

// TraceWriter outputs human-readable trace lines with timestamps relative
// to its creation.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a new TraceWriter that writes to stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a new TraceWriter that writes to the given writer.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{
		writer:    w,
		startTime: time.Now(),
	}
}

// WriteOperationStart writes an operation start trace line.
// Format: [0.234s] Calling session.switch_account
func (t *TraceWriter) WriteOperationStart(op OperationInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	if op.Username != "" {
		fmt.Fprintf(t.writer, "[%.3fs] Calling %s (%s)\n", elapsed, op.Name(), op.Username)
		return
	}
	fmt.Fprintf(t.writer, "[%.3fs] Calling %s\n", elapsed, op.Name())
}

// WriteOperationEnd writes an operation completion trace line.
// Format: [0.234s] Completed session.switch_account (234ms)
func (t *TraceWriter) WriteOperationEnd(op OperationInfo, err error, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	if err != nil {
		fmt.Fprintf(t.writer, "[%.3fs] Failed %s: %v\n", elapsed, op.Name(), err)
	} else {
		fmt.Fprintf(t.writer, "[%.3fs] Completed %s (%dms)\n", elapsed, op.Name(), duration.Milliseconds())
	}
}

// WriteRequestStart writes a request start trace line.
// Format: [0.234s]   -> POST https://api.example.com/api/auth/login
func (t *TraceWriter) WriteRequestStart(info RequestInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	fmt.Fprintf(t.writer, "[%.3fs]   -> %s %s\n", elapsed, info.Method, scrubURL(info.URL))
}

// WriteRequestEnd writes a request completion trace line.
// Format: [0.234s]   <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(_ RequestInfo, result RequestResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime).Seconds()
	if result.Error != nil {
		fmt.Fprintf(t.writer, "[%.3fs]   <- ERROR: %v\n", elapsed, result.Error)
		return
	}
	fmt.Fprintf(t.writer, "[%.3fs]   <- %d (%dms)\n", elapsed, result.StatusCode, result.Duration.Milliseconds())
}

// Reset resets the start time for relative timestamps.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Don't leak potentially sensitive malformed URLs
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}
	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
