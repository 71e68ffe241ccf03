package core

import (
	"net"

	"reqid/internal/dispatch"
	rerr "reqid/internal/errors"
	"reqid/internal/metrics"
	"reqid/internal/retry"
	"reqid/util"
)

// Acceptor keeps exactly one asynchronous accept outstanding on a
// listener and hands every accepted connection to OnConn.
type Acceptor struct {
	ln       net.Listener
	addr     string
	d        *dispatch.Dispatcher
	onConn   func(net.Conn)
	backoff  *retry.Backoff
	failures int // consecutive retryable accept failures
	metrics  *metrics.Collector
	logger   *util.Logger
}

// NewAcceptor returns an acceptor for ln.  onConn runs on a dispatcher
// worker and must not block.
func NewAcceptor(ln net.Listener, d *dispatch.Dispatcher, onConn func(net.Conn),
	m *metrics.Collector, logger *util.Logger) *Acceptor {
	return &Acceptor{
		ln:      ln,
		addr:    ln.Addr().String(),
		d:       d,
		onConn:  onConn,
		backoff: retry.AcceptBackoff(),
		metrics: m,
		logger:  logger,
	}
}

// Start issues the first accept.
func (a *Acceptor) Start() { a.accept() }

func (a *Acceptor) accept() {
	var conn net.Conn
	a.d.Go(a.ln, func() error {
		var err error
		conn, err = a.ln.Accept()
		return err
	}, func(err error) { a.accepted(conn, err) })
}

// accepted handles one accept completion and re-arms the loop.
func (a *Acceptor) accepted(conn net.Conn, err error) {
	switch {
	case err == nil:
		a.failures = 0
		a.logger.Debug("accepted %s", conn.RemoteAddr())
		a.onConn(conn)
		a.accept()

	case rerr.IsCanceled(err):
		a.logger.Debug("accept loop on %s stopped", a.addr)

	case rerr.Is(err, net.ErrClosed):
		// Closed behind the dispatcher's back; no accept can succeed.
		a.logger.Error("%v; accept loop ends", rerr.Wrap(rerr.OpAccept, a.addr, err))

	default:
		nerr := rerr.Wrap(rerr.OpAccept, a.addr, err)
		a.logger.Error("%v", nerr)
		a.metrics.AcceptFailed(nerr.Error())

		if !nerr.Retryable {
			a.accept()
			return
		}
		// Descriptor exhaustion persists until some session closes.
		a.failures++
		a.d.After(a.backoff.Delay(a.failures), func(err error) {
			if err != nil {
				return // stopped while backing off
			}
			a.accept()
		})
	}
}
