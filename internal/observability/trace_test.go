package observability

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTraceWriter_WriteOperationStart(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteOperationStart(OperationInfo{Component: "session", Operation: "logout"})

	assert.Regexp(t, regexp.MustCompile(`^\[\d+\.\d{3}s\] Calling session\.logout\n$`), buf.String())
}

func TestTraceWriter_WriteOperationEnd_Error(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteOperationEnd(OperationInfo{Component: "session", Operation: "login"}, errors.New("Invalid credentials"), time.Second)

	assert.Contains(t, buf.String(), "Failed session.login: Invalid credentials")
}

func TestTraceWriter_WriteRequestEnd_Error(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriterTo(&buf)

	w.WriteRequestEnd(RequestInfo{}, RequestResult{Error: errors.New("connection refused")})

	assert.Contains(t, buf.String(), "<- ERROR: connection refused")
}

func TestTraceWriter_Reset(t *testing.T) {
	w := NewTraceWriterTo(&bytes.Buffer{})
	w.startTime = time.Now().Add(-time.Hour)
	w.Reset()
	assert.WithinDuration(t, time.Now(), w.startTime, time.Second)
}

func TestScrubURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no query", "https://x.test/api/auth/login", "https://x.test/api/auth/login"},
		{"harmless query", "https://x.test/a?page=2", "https://x.test/a?page=2"},
		{"token redacted", "https://x.test/a?token=abc", "https://x.test/a?token=%5BREDACTED%5D"},
		{"case-insensitive", "https://x.test/a?RefreshToken=abc", "https://x.test/a?RefreshToken=%5BREDACTED%5D"},
		{"unparseable", "://bad\x7f", "[unparseable URL]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scrubURL(tt.input))
		})
	}
}
