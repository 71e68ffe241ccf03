package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"

	"reqid/config"
	"reqid/internal/core"
	rerr "reqid/internal/errors"
	"reqid/internal/transport"
	"reqid/tunnel"
)

const clientUsage = "usage: reqid <host> <port> [count] [delay_ms]"

// ExecuteClient parses reqid arguments and runs one client session.
// Identifiers go to stdout; diagnostics go to stderr.
func ExecuteClient(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := &config.ClientConfig{Count: config.DefaultCount}
	var opts common

	fs := flag.NewFlagSet("reqid", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.register(fs)

	timeoutSec := int(config.DefaultConnTimeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect timeout in seconds (0 = none)")

	// ── SSH gateway ──────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", "", "Connect through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", "", "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", false, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", false, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", "", "Custom known_hosts path")

	fs.Usage = func() { printClientUsage(stderr, fs) }

	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	if opts.showHelp {
		printClientUsage(stdout, fs)
		return nil
	}
	if opts.showVersion {
		printVersion(stdout, "reqid")
		return nil
	}
	cfg.Verbose = opts.verbose
	if timeoutSec < 0 {
		return &rerr.ConfigError{Field: "--timeout", Value: timeoutSec, Message: "must not be negative"}
	}
	cfg.Timeout = time.Duration(timeoutSec) * time.Second

	if err := parseClientArgs(cfg, fs.Args()); err != nil {
		return err
	}

	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose, stderr)
	if opts.dryRun {
		logger.Info("configuration OK: %d requests to %s", cfg.Count, cfg.Address())
		return nil
	}

	var dialer transport.Dialer = &transport.TCPDialer{Timeout: cfg.Timeout}
	if cfg.TunnelEnabled {
		dialer = transport.NewSSHDialer(tunnel.FromClientConfig(cfg), logger)
	}

	client := core.NewClient(cfg, dialer, logger)
	client.Stdout = stdout
	client.Stderr = stderr
	return client.Run(ctx)
}

// parseClientArgs handles "<host> <port> [count] [delay_ms]".
func parseClientArgs(cfg *config.ClientConfig, remaining []string) error {
	switch len(remaining) {
	case 0:
		return &rerr.ConfigError{Field: "host", Message: "required", Hint: clientUsage}
	case 1:
		return &rerr.ConfigError{Field: "port", Message: "required", Hint: clientUsage}
	case 2, 3, 4:
	default:
		return &rerr.ConfigError{Field: "arguments", Value: remaining[4:], Message: "unexpected", Hint: clientUsage}
	}

	cfg.Host = remaining[0]
	port, err := config.ParsePort(remaining[1])
	if err != nil {
		return err
	}
	cfg.Port = port

	if len(remaining) > 2 {
		count, err := config.ParseFloor("count", remaining[2], 1)
		if err != nil {
			return err
		}
		cfg.Count = count
	}
	if len(remaining) > 3 {
		ms, err := config.ParseFloor("delay_ms", remaining[3], 0)
		if err != nil {
			return err
		}
		cfg.Delay = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func printClientUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `reqid – unique identifier client v%s

Usage:
  reqid [options] <host> <port> [count] [delay_ms]

Sends count "REQ" lines over one connection (default 1), pausing
delay_ms between requests, and prints each identifier on stdout.

Options:
`, version)
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprint(w, `
Examples:
  reqid localhost 9000                       One identifier
  reqid localhost 9000 100 10                100 identifiers, 10ms apart
  reqid -T admin@bastion internal-host 9000  Through an SSH gateway
`)
}
