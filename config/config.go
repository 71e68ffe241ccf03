// Package config defines the runtime configuration of the reqid server
// and client and the parsers for their positional arguments.
package config

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"time"

	rerr "reqid/internal/errors"
	"reqid/util"
)

// ServerConfig holds every tuneable of a reqidd process.
type ServerConfig struct {
	Port     int
	Threads  int  // dispatcher workers; 0 means DefaultThreads()
	MaxLine  int  // longest request line buffered, ≥ MinMaxLine; 0 means DefaultMaxLine
	RandPool bool // amortise entropy reads across identifiers
	Verbose  int
}

// ListenAddress returns the wildcard address the server binds.
func (c *ServerConfig) ListenAddress() string { return util.ListenAddr(c.Port) }

// Workers returns the effective worker count.
func (c *ServerConfig) Workers() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return DefaultThreads()
}

// Validate checks that the configuration is usable.
func (c *ServerConfig) Validate() error {
	if err := validPort(c.Port); err != nil {
		return err
	}
	if c.Threads < 0 {
		return &rerr.ConfigError{Field: "threads", Value: c.Threads, Message: "must not be negative"}
	}
	if c.MaxLine != 0 && c.MaxLine < MinMaxLine {
		return &rerr.ConfigError{Field: "--max-line", Value: c.MaxLine,
			Message: fmt.Sprintf("must be at least %d", MinMaxLine)}
	}
	return nil
}

// ClientConfig holds every tuneable of a reqid client run.
type ClientConfig struct {
	Host    string
	Port    int
	Count   int           // requests to send, at least 1
	Delay   time.Duration // pause after each reply
	Timeout time.Duration // connect timeout, 0 = none
	Verbose int

	// ── SSH gateway ──────────────────────────────────────────────────
	TunnelSpec     string // raw [user@]host[:port] from --tunnel
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string
}

// Address returns the service's host:port.
func (c *ClientConfig) Address() string { return util.FormatAddr(c.Host, c.Port) }

// Validate checks that the configuration is usable.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return &rerr.ConfigError{Field: "host", Message: "required", Hint: "usage: reqid <host> <port> [count] [delay_ms]"}
	}
	if err := validPort(c.Port); err != nil {
		return err
	}
	if c.Count < 1 {
		return &rerr.ConfigError{Field: "count", Value: c.Count, Message: "must be at least 1"}
	}
	if c.Delay < 0 {
		return &rerr.ConfigError{Field: "delay_ms", Value: c.Delay, Message: "must not be negative"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &rerr.ConfigError{Field: "--tunnel", Value: c.TunnelSpec, Message: "gateway host is required"}
	}
	return nil
}

// DefaultThreads is the detected hardware concurrency, floor 1.
func DefaultThreads() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// ── Argument parsers ─────────────────────────────────────────────────

// ParsePort parses a TCP port in 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, &rerr.ConfigError{Field: "port", Value: s, Message: "not a number"}
	}
	if err := validPort(port); err != nil {
		return 0, err
	}
	return port, nil
}

// ParseFloor parses an integer argument and clamps it to floor, the
// way the positional threads, count and delay_ms arguments behave.
func ParseFloor(field, s string, floor int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &rerr.ConfigError{Field: field, Value: s, Message: "not a number"}
	}
	if n < floor {
		n = floor
	}
	return n, nil
}

func validPort(port int) error {
	if port < 1 || port > 65535 {
		return &rerr.ConfigError{
			Field:   "port",
			Value:   port,
			Message: "out of range 1-65535",
		}
	}
	return nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to DefaultSSHPort.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}
