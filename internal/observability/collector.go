// Package observability provides metrics collection and tracing for session
// operations.
package observability

import (
	"sync"
	"time"
)

// RequestMetrics holds timing and status information for a single HTTP request.
type RequestMetrics struct {
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
	Error      error
}

// Failed reports whether the request errored or returned a non-2xx status.
func (m RequestMetrics) Failed() bool {
	return m.Error != nil || m.StatusCode < 200 || m.StatusCode > 299
}

// OperationMetrics holds timing information for one session operation.
type OperationMetrics struct {
	Name     string // e.g., "session.switch_account"
	Duration time.Duration
	Error    error
}

// SessionMetrics aggregates metrics for one shell invocation.
type SessionMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalRequests   int
	FailedRequests  int
	TotalOperations int
	FailedOps       int
	TotalLatency    time.Duration
	Operations      map[string]int
}

// SessionCollector accumulates metrics. It is safe for concurrent use.
type SessionCollector struct {
	mu sync.Mutex

	startTime       time.Time
	totalRequests   int
	failedRequests  int
	totalOperations int
	failedOps       int
	totalLatency    time.Duration
	operations      map[string]int
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime:  time.Now(),
		operations: make(map[string]int),
	}
}

// RecordRequest records metrics for an HTTP request.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.Failed() {
		c.failedRequests++
	}
}

// RecordOperation records metrics for a session operation.
func (c *SessionCollector) RecordOperation(m OperationMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalOperations++
	c.operations[m.Name]++
	if m.Error != nil {
		c.failedOps++
	}
}

// Summary returns aggregated metrics.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops := make(map[string]int, len(c.operations))
	for k, v := range c.operations {
		ops[k] = v
	}
	return SessionMetrics{
		StartTime:       c.startTime,
		EndTime:         time.Now(),
		TotalRequests:   c.totalRequests,
		FailedRequests:  c.failedRequests,
		TotalOperations: c.totalOperations,
		FailedOps:       c.failedOps,
		TotalLatency:    c.totalLatency,
		Operations:      ops,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.totalOperations = 0
	c.failedOps = 0
	c.totalLatency = 0
	c.operations = make(map[string]int)
}
