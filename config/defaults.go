package config

import "time"

// ── Default values ───────────────────────────────────────────────────

const (
	// DefaultMaxLine bounds a request line held by one session.  Longer
	// lines are discarded up to their terminator and answered with an
	// error response.
	DefaultMaxLine = 4096

	// MinMaxLine is the smallest accepted --max-line, the floor of a
	// bufio.Reader's buffer.
	MinMaxLine = 16

	// DefaultConnTimeout is the client's TCP/SSH connect timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultCount is the number of requests a client sends.
	DefaultCount = 1
)
