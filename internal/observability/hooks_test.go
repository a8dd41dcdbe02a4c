package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	switchOp = OperationInfo{Component: "session", Operation: "switch_account", Username: "bob02"}
	loginReq = RequestInfo{Method: "POST", URL: "https://chat.example.com/api/auth/switch-account"}
)

func TestCLIHooks_SetLevel(t *testing.T) {
	h := NewCLIHooks(0, nil, nil)
	assert.Equal(t, 0, h.Level())

	h.SetLevel(2)
	assert.Equal(t, 2, h.Level())
}

func TestCLIHooks_Level0_Silent(t *testing.T) {
	var buf bytes.Buffer
	collector := NewSessionCollector()
	h := NewCLIHooks(0, collector, NewTraceWriterTo(&buf))

	ctx := h.OnOperationStart(context.Background(), switchOp)
	ctx = h.OnRequestStart(ctx, loginReq)
	h.OnRequestEnd(ctx, loginReq, RequestResult{StatusCode: 200, Duration: 45 * time.Millisecond})
	h.OnOperationEnd(ctx, switchOp, nil, 50*time.Millisecond)

	assert.Equal(t, 0, buf.Len(), "expected no output at level 0")

	summary := collector.Summary()
	assert.Equal(t, 1, summary.TotalOperations)
	assert.Equal(t, 1, summary.TotalRequests)
	assert.Equal(t, 1, summary.Operations["session.switch_account"])
}

func TestCLIHooks_Level1_OperationsOnly(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(1, nil, NewTraceWriterTo(&buf))

	ctx := h.OnOperationStart(context.Background(), switchOp)
	ctx = h.OnRequestStart(ctx, loginReq)
	h.OnRequestEnd(ctx, loginReq, RequestResult{StatusCode: 200})
	h.OnOperationEnd(ctx, switchOp, nil, 50*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "Calling session.switch_account (bob02)")
	assert.Contains(t, out, "Completed session.switch_account (50ms)")
	assert.NotContains(t, out, "->")
}

func TestCLIHooks_Level2_OperationsAndRequests(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(2, nil, NewTraceWriterTo(&buf))

	ctx := h.OnOperationStart(context.Background(), switchOp)
	ctx = h.OnRequestStart(ctx, loginReq)
	h.OnRequestEnd(ctx, loginReq, RequestResult{StatusCode: 401, Duration: 12 * time.Millisecond})
	h.OnOperationEnd(ctx, switchOp, errors.New("Session expired"), 20*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "-> POST https://chat.example.com/api/auth/switch-account")
	assert.Contains(t, out, "<- 401 (12ms)")
	assert.Contains(t, out, "Failed session.switch_account: Session expired")
}

func TestCLIHooks_NilCollectorAndWriter(t *testing.T) {
	h := NewCLIHooks(2, nil, nil)
	assert.NotPanics(t, func() {
		ctx := h.OnOperationStart(context.Background(), switchOp)
		h.OnOperationEnd(ctx, switchOp, nil, time.Millisecond)
		h.OnRequestEnd(ctx, loginReq, RequestResult{StatusCode: 200})
	})
}

func TestNoopHooks(t *testing.T) {
	var h Hooks = NoopHooks{}
	ctx := context.Background()
	assert.Equal(t, ctx, h.OnOperationStart(ctx, switchOp))
	assert.Equal(t, ctx, h.OnRequestStart(ctx, loginReq))
}
