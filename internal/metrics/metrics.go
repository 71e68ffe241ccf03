// Package metrics provides lock-free counters for a running reqid
// server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime statistics across every session.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	requests       atomic.Int64
	issued         atomic.Int64
	unknown        atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	acceptErrors   atomic.Int64
	ioErrors       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of sessions not yet closed.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Request metrics ──────────────────────────────────────────────────

// IdentifierIssued records a request answered with an identifier.
func (c *Collector) IdentifierIssued() {
	if c == nil {
		return
	}
	c.requests.Add(1)
	c.issued.Add(1)
}

// UnknownCommand records a request answered with an error line.
func (c *Collector) UnknownCommand() {
	if c == nil {
		return
	}
	c.requests.Add(1)
	c.unknown.Add(1)
}

// Requests returns the number of request lines dispatched.
func (c *Collector) Requests() int64 {
	if c == nil {
		return 0
	}
	return c.requests.Load()
}

// Issued returns the number of identifiers handed out.
func (c *Collector) Issued() int64 {
	if c == nil {
		return 0
	}
	return c.issued.Load()
}

// Unknown returns the number of unrecognised request lines.
func (c *Collector) Unknown() int64 {
	if c == nil {
		return 0
	}
	return c.unknown.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a connection.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a connection.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// AcceptFailed records a failed accept.
func (c *Collector) AcceptFailed(msg string) {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
	c.recordLast(msg)
}

// IOFailed records an unexpected session read or write failure.
func (c *Collector) IOFailed(msg string) {
	if c == nil {
		return
	}
	c.ioErrors.Add(1)
	c.recordLast(msg)
}

// AcceptErrors returns the number of failed accepts.
func (c *Collector) AcceptErrors() int64 {
	if c == nil {
		return 0
	}
	return c.acceptErrors.Load()
}

// IOErrors returns the number of unexpected session I/O failures.
func (c *Collector) IOErrors() int64 {
	if c == nil {
		return 0
	}
	return c.ioErrors.Load()
}

func (c *Collector) recordLast(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	Requests         int64  `json:"requests"`
	Issued           int64  `json:"issued"`
	Unknown          int64  `json:"unknown"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	AcceptErrors     int64  `json:"accept_errors"`
	IOErrors         int64  `json:"io_errors"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		Requests:       c.requests.Load(),
		Issued:         c.issued.Load(),
		Unknown:        c.unknown.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		AcceptErrors:   c.acceptErrors.Load(),
		IOErrors:       c.ioErrors.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as a single-line JSON string.
func (c *Collector) JSON() string {
	data, _ := json.Marshal(c.Snapshot())
	return string(data)
}
