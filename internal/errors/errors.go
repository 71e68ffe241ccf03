// Package errors provides the error taxonomy shared by the reqid server
// and client.
//
// The types carry the phase of the failing operation (listen, accept,
// read, write, dial) so that log lines can say where a connection died,
// and the classifiers separate expected shutdown noise (peer closed,
// dispatcher stopped) from failures worth reporting.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrCanceled is the completion error of every operation that was
	// pending, or issued, after its dispatcher stopped.
	ErrCanceled = errors.New("operation canceled")

	// ErrLineTooLong marks a request line that exceeded the
	// configured maximum length.
	ErrLineTooLong = errors.New("request line too long")

	ErrNotConnected = errors.New("not connected")
	ErrAuthFailed   = errors.New("authentication failed")

	// ErrHandlerPanic is reported by a dispatcher worker that recovered
	// from one or more panicking completion handlers.
	ErrHandlerPanic = errors.New("completion handler panicked")
)

// ── Structured error types ───────────────────────────────────────────

// Phases reported in NetworkError.Op.
const (
	OpListen = "listen"
	OpAccept = "accept"
	OpRead   = "read"
	OpWrite  = "write"
	OpDial   = "dial"
)

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // one of the Op* phases
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether a later attempt may succeed
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents a failure of the client's SSH gateway.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid command-line value.  Field names a
// positional argument ("port") or a flag ("--timeout").
type ConfigError struct {
	Field   string
	Value   interface{} // nil if missing
	Message string
	Hint    string // optional
}

func (e *ConfigError) Error() string {
	msg := "invalid " + e.Field
	if e.Value != nil {
		msg += fmt.Sprintf(" %q", fmt.Sprint(e.Value))
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, detecting retryability from err.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err signals resource exhaustion that a
// later attempt may outlast (EMFILE, ENFILE, ECONNABORTED, temporary
// net errors).  The acceptor backs off only for these.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsCanceled reports whether err is a dispatcher cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsExpectedClose reports whether err is an ordinary end of a
// connection: the peer went away, the socket was closed locally, or
// the dispatcher was stopped.  Such errors end a session silently.
func IsExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrCanceled),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
