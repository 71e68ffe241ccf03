package cmd

import (
	"context"
	"fmt"
	"io"
	"runtime"

	flag "github.com/spf13/pflag"

	"reqid/config"
	"reqid/internal/core"
	rerr "reqid/internal/errors"
	"reqid/internal/idgen"
	"reqid/internal/metrics"
)

// ExecuteServer parses reqidd arguments and runs the server until ctx
// is canceled.
func ExecuteServer(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := &config.ServerConfig{MaxLine: config.DefaultMaxLine}
	var opts common

	fs := flag.NewFlagSet("reqidd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.register(fs)
	fs.BoolVar(&cfg.RandPool, "rand-pool", false, "Buffer entropy across identifiers")
	fs.IntVar(&cfg.MaxLine, "max-line", config.DefaultMaxLine, "Longest request line in bytes")
	fs.Usage = func() { printServerUsage(stderr, fs) }

	if err := fs.Parse(reorderArgs(fs, args)); err != nil {
		return err
	}
	if opts.showHelp {
		printServerUsage(stdout, fs)
		return nil
	}
	if opts.showVersion {
		printVersion(stdout, "reqidd")
		return nil
	}
	cfg.Verbose = opts.verbose

	if err := parseServerArgs(cfg, fs.Args()); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Verbose, stderr)
	if opts.dryRun {
		logger.Info("configuration OK: listen %s, %d workers", cfg.ListenAddress(), cfg.Workers())
		return nil
	}

	if cfg.RandPool {
		idgen.EnableRandPool()
	}
	restore := limitProcs(cfg.Workers())
	defer restore()

	srv := core.NewServer(cfg, idgen.Random{}, metrics.New(), logger)
	return srv.Run(ctx)
}

// limitProcs caps the OS threads executing Go code at n, so the thread
// count bounds the whole server and not just its workers.  The returned
// function restores the previous limit.
func limitProcs(n int) func() {
	prev := runtime.GOMAXPROCS(n)
	return func() { runtime.GOMAXPROCS(prev) }
}

// parseServerArgs handles "<port> [threads]".
func parseServerArgs(cfg *config.ServerConfig, remaining []string) error {
	switch len(remaining) {
	case 0:
		return &rerr.ConfigError{Field: "port", Message: "required", Hint: "usage: reqidd <port> [threads]"}
	case 1, 2:
	default:
		return &rerr.ConfigError{Field: "arguments", Value: remaining[2:], Message: "unexpected",
			Hint: "usage: reqidd <port> [threads]"}
	}

	port, err := config.ParsePort(remaining[0])
	if err != nil {
		return err
	}
	cfg.Port = port

	if len(remaining) == 2 {
		threads, err := config.ParseFloor("threads", remaining[1], 1)
		if err != nil {
			return err
		}
		cfg.Threads = threads
	}
	return nil
}

func printServerUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, `reqidd – unique identifier server v%s

Usage:
  reqidd [options] <port> [threads]

Each "REQ" line received is answered with a fresh UUIDv4.  threads
(default: number of CPUs, floor 1) bounds both the workers and the
OS threads running Go code.

Options:
`, version)
	fmt.Fprint(w, fs.FlagUsages())
	fmt.Fprint(w, `
Examples:
  reqidd 9000                  Listen on 9000, one worker per CPU
  reqidd -v 9000 4             Four workers, per-session logging
`)
}
