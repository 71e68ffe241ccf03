// Package core composes the lower layers into the two programs: the
// identifier server and the client driver.
//
// Architecture layers (bottom → top):
//
//	idgen, protocol  →  dispatch  →  session  →  core  →  cmd (CLI)
package core

import (
	"context"
	"fmt"
	"net"
	"sync"

	"reqid/config"
	"reqid/internal/dispatch"
	rerr "reqid/internal/errors"
	"reqid/internal/idgen"
	"reqid/internal/metrics"
	"reqid/internal/session"
	"reqid/internal/transport"
	"reqid/util"
)

// Server is the identifier service: one listener, one dispatcher, a
// fixed pool of workers, and a session per accepted connection.
type Server struct {
	Config    *config.ServerConfig
	Generator idgen.Generator
	Metrics   *metrics.Collector
	Logger    *util.Logger

	d        *dispatch.Dispatcher
	pool     *dispatch.Pool
	ln       net.Listener
	stopOnce sync.Once
}

// NewServer returns a server for cfg.  A nil generator means
// idgen.Random; a nil collector disables metrics.
func NewServer(cfg *config.ServerConfig, gen idgen.Generator, m *metrics.Collector, logger *util.Logger) *Server {
	if gen == nil {
		gen = idgen.Random{}
	}
	d := dispatch.New(logger.Named("dispatch"))
	return &Server{
		Config:    cfg,
		Generator: gen,
		Metrics:   m,
		Logger:    logger,
		d:         d,
		pool:      dispatch.NewPool(d, cfg.Workers(), logger.Named("dispatch")),
	}
}

// Listen binds the configured address.  Failures here are startup
// failures and are returned as *rerr.NetworkError.
func (s *Server) Listen(ctx context.Context) error {
	addr := s.Config.ListenAddress()
	ln, err := transport.Listen(ctx, addr)
	if err != nil {
		return rerr.Wrap(rerr.OpListen, addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve starts the workers and the accept loop, then blocks until the
// server is stopped and every worker has exited.
func (s *Server) Serve() error {
	if s.ln == nil {
		return fmt.Errorf("serve: %w", rerr.ErrNotConnected)
	}
	defer s.ln.Close()

	opts := session.Options{
		Generator: s.Generator,
		Metrics:   s.Metrics,
		Logger:    s.Logger.Named("session"),
		MaxLine:   s.Config.MaxLine,
	}
	acceptor := NewAcceptor(s.ln, s.d, func(conn net.Conn) {
		session.New(conn, s.d, opts).Start()
	}, s.Metrics, s.Logger.Named("acceptor"))

	s.pool.Start()
	acceptor.Start()
	s.Logger.Info("listening on %s with %d workers", s.ln.Addr(), s.pool.Size())

	err := s.pool.Wait()
	s.Logger.Verbose("stopped; %s", s.Metrics.JSON())
	return err
}

// Run listens, serves, and stops when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()
	return s.Serve()
}

// Stop stops the dispatcher.  Pending accepts, reads and writes are
// canceled and in-flight requests are abandoned.  Safe to call from any
// goroutine, more than once, and before Serve.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.Logger.Verbose("shutting down")
		s.d.Stop()
	})
}
