package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"reqid/config"
	rerr "reqid/internal/errors"
	"reqid/internal/protocol"
	"reqid/internal/transport"
	"reqid/util"
)

// Client drives one connection: count requests, one at a time, each
// reply printed as it arrives.
type Client struct {
	Config *config.ClientConfig
	Dialer transport.Dialer
	Logger *util.Logger

	// Stdout receives identifiers; Stderr receives the connect notice and
	// server error lines.  Both default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewClient returns a client for cfg.  A nil dialer means a direct TCP
// dialer with the configured timeout.
func NewClient(cfg *config.ClientConfig, dialer transport.Dialer, logger *util.Logger) *Client {
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: cfg.Timeout}
	}
	return &Client{
		Config: cfg,
		Dialer: dialer,
		Logger: logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run connects and issues the configured number of requests.  Server
// error replies are reported but do not fail the run; a failed dial,
// read or write does.
func (c *Client) Run(ctx context.Context) error {
	defer c.Dialer.Close() //nolint:errcheck

	addr := c.Config.Address()
	c.Logger.Verbose("connecting to %s", addr)
	conn, err := c.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return rerr.Wrap(rerr.OpDial, addr, err)
	}
	defer conn.Close()

	// Unblock a pending read or write when the run is interrupted.
	stop := context.AfterFunc(ctx, func() { conn.Close() }) //nolint:errcheck
	defer stop()

	fmt.Fprintf(c.Stderr, "connected to %s\n", conn.RemoteAddr())

	r := bufio.NewReader(conn)
	for i := 0; i < c.Config.Count; i++ {
		if _, err := conn.Write(protocol.Request); err != nil {
			return c.ioError(ctx, rerr.OpWrite, addr, err)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return c.ioError(ctx, rerr.OpRead, addr, err)
		}

		reply, err := protocol.ParseReply(line)
		if err != nil {
			return fmt.Errorf("%s: %w", addr, err)
		}
		if reply.IsError() {
			fmt.Fprintf(c.Stderr, "server error: %s\n", reply)
		} else {
			fmt.Fprintln(c.Stdout, reply.ID)
		}

		if c.Config.Delay > 0 && i < c.Config.Count-1 {
			if err := sleep(ctx, c.Config.Delay); err != nil {
				return err
			}
		}
	}
	c.Logger.Verbose("%d requests done", c.Config.Count)
	return nil
}

// ioError reports an I/O failure, or the cancellation that caused it.
func (c *Client) ioError(ctx context.Context, op, addr string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", rerr.ErrCanceled, ctx.Err())
	}
	if rerr.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return rerr.Wrap(op, addr, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", rerr.ErrCanceled, ctx.Err())
	}
}
