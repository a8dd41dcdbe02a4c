package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/x/term"
)

// Response is the success envelope for JSON output.
type Response struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatAuto Format = iota // Auto-detect: TTY → Text, non-TTY → JSON
	FormatJSON
	FormatText
)

// ParseFormat maps a config/flag value to a Format.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer
}

// Writer handles all output formatting.
type Writer struct {
	opts Options
}

// New creates a new output writer.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Writer{opts: opts}
}

// ResponseOption customizes a success response.
type ResponseOption func(*Response)

// WithSummary sets the human-readable summary line.
func WithSummary(s string) ResponseOption {
	return func(r *Response) {
		r.Summary = s
	}
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	resp := &ErrorResponse{
		OK:    false,
		Error: e.Message,
		Code:  e.Code,
		Hint:  e.Hint,
	}
	return w.write(resp)
}

func (w *Writer) write(v any) error {
	format := w.opts.Format
	if format == FormatAuto {
		if isTTY(w.opts.Writer) {
			format = FormatText
		} else {
			format = FormatJSON
		}
	}

	if format == FormatText {
		return w.writeText(v)
	}
	return w.writeJSON(v)
}

// isTTY checks if the writer is a terminal.
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(f.Fd())
	}
	return false
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (w *Writer) writeText(v any) error {
	out := w.opts.Writer
	switch resp := v.(type) {
	case *ErrorResponse:
		if resp.Hint != "" {
			_, err := fmt.Fprintf(out, "Error: %s\n  %s\n", resp.Error, resp.Hint)
			return err
		}
		_, err := fmt.Fprintf(out, "Error: %s\n", resp.Error)
		return err
	case *Response:
		if resp.Summary != "" {
			if _, err := fmt.Fprintln(out, resp.Summary); err != nil {
				return err
			}
		}
		return writeFields(out, resp.Data)
	}
	return w.writeJSON(v)
}

// writeFields prints maps as sorted "key: value" lines and falls back to
// indented JSON for everything else.
func writeFields(out io.Writer, data any) error {
	if data == nil {
		return nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(out, "%s: %v\n", k, m[k]); err != nil {
			return err
		}
	}
	return nil
}
