// Package session runs the request/response cycle of one accepted
// connection.
//
// A Session moves Reading → Dispatching → Writing → Reading until the
// peer goes away or an I/O error ends it in Closed.  Reads and writes
// are issued through a [dispatch.Dispatcher]; at most one of them is in
// flight at any time, and the next read is only issued once the
// previous response has been written, so replies leave in request
// order and a session's handlers never run concurrently.
//
// The dispatcher's pending registry holds the session's handler while
// an operation is outstanding.  That reference is what keeps an idle
// session alive; once it closes and issues nothing further, the
// session becomes garbage.
package session

import (
	"bufio"
	"net"

	"reqid/internal/dispatch"
	rerr "reqid/internal/errors"
	"reqid/internal/idgen"
	"reqid/internal/metrics"
	"reqid/internal/protocol"
	"reqid/util"
)

// State is a session lifecycle phase.
type State int

const (
	Reading State = iota
	Dispatching
	Writing
	Closed
)

func (s State) String() string {
	switch s {
	case Reading:
		return "reading"
	case Dispatching:
		return "dispatching"
	case Writing:
		return "writing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Options carries a session's collaborators.  Generator and Logger are
// required; Metrics may be nil.
type Options struct {
	Generator idgen.Generator
	Metrics   *metrics.Collector
	Logger    *util.Logger
	MaxLine   int // read buffer size; 0 means util.DefaultReadBufSize
}

// Session owns one connection for its whole lifetime.
type Session struct {
	conn   net.Conn
	remote string
	r      *bufio.Reader
	pooled bool

	d       *dispatch.Dispatcher
	gen     idgen.Generator
	metrics *metrics.Collector
	logger  *util.Logger

	state    State
	inFlight bool   // an operation for the current state is outstanding
	line     []byte // last request line, valid until the next read
	tooLong  bool   // last request line overflowed the read buffer
	nread    int
	out      []byte // response being written
	nwritten int

	done chan struct{}
}

// New binds a session to conn.  Nothing is read until Start.
func New(conn net.Conn, d *dispatch.Dispatcher, opts Options) *Session {
	s := &Session{
		conn:    conn,
		remote:  conn.RemoteAddr().String(),
		d:       d,
		gen:     opts.Generator,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		out:     make([]byte, 0, protocol.IDLen+1),
		done:    make(chan struct{}),
	}
	if opts.MaxLine <= 0 || opts.MaxLine == util.DefaultReadBufSize {
		s.r = util.GetReader(conn)
		s.pooled = true
	} else {
		s.r = bufio.NewReaderSize(conn, opts.MaxLine)
	}
	return s
}

// Start enters Reading and issues the first read.
func (s *Session) Start() {
	s.metrics.SessionOpened()
	s.logger.Verbose("session %s opened", s.remote)
	s.state = Reading
	s.advance(nil)
}

// Done is closed once the session has released its connection.
func (s *Session) Done() <-chan struct{} { return s.done }

// RemoteAddr returns the peer address as text.
func (s *Session) RemoteAddr() string { return s.remote }

// advance is the session's only transition function.  Start enters it
// with a nil error and every completion re-enters it with that
// operation's error; it loops until it has issued the next operation or
// the session is closed.
func (s *Session) advance(err error) {
	for {
		switch s.state {
		case Reading:
			if !s.inFlight {
				s.inFlight = true
				s.read()
				return
			}
			s.inFlight = false
			s.metrics.BytesReceived(int64(s.nread))
			if err != nil {
				s.fail(rerr.OpRead, err)
				return
			}
			s.state = Dispatching

		case Dispatching:
			s.out = s.respond(s.out[:0])
			s.state = Writing

		case Writing:
			if !s.inFlight {
				s.inFlight = true
				s.write()
				return
			}
			s.inFlight = false
			s.metrics.BytesSent(int64(s.nwritten))
			if err != nil {
				s.fail(rerr.OpWrite, err)
				return
			}
			s.state = Reading
			err = nil

		case Closed:
			return
		}
	}
}

func (s *Session) read() {
	s.d.Go(s.conn, func() error {
		var err error
		s.line, s.nread, s.tooLong, err = readLine(s.r)
		return err
	}, s.advance)
}

func (s *Session) write() {
	s.d.Go(s.conn, func() error {
		var err error
		s.nwritten, err = s.conn.Write(s.out)
		return err
	}, s.advance)
}

// readLine returns the next line including its terminator.  A line
// that does not fit the buffer is consumed up to its terminator and
// reported with tooLong set and no content.  A final fragment without
// a terminator is returned as an error: the peer closed mid-request.
func readLine(r *bufio.Reader) (line []byte, n int, tooLong bool, err error) {
	for {
		frag, err := r.ReadSlice('\n')
		n += len(frag)
		switch err {
		case nil:
			if tooLong {
				return nil, n, true, nil
			}
			return frag, n, false, nil
		case bufio.ErrBufferFull:
			tooLong = true
		default:
			return nil, n, false, err
		}
	}
}

// respond builds the reply to the last request line into dst.
func (s *Session) respond(dst []byte) []byte {
	if s.tooLong || !protocol.IsRequest(protocol.TrimLine(s.line)) {
		s.metrics.UnknownCommand()
		if s.tooLong {
			s.logger.Debug("%s: %v", s.remote, rerr.ErrLineTooLong)
		}
		return protocol.AppendError(dst, protocol.ReasonUnknown)
	}

	id, err := s.gen.NewID()
	if err != nil {
		s.logger.Error("%s: %v", s.remote, err)
		return protocol.AppendError(dst, protocol.ReasonInternal)
	}
	s.metrics.IdentifierIssued()
	return protocol.AppendID(dst, id)
}

// fail moves the session to Closed.  Peer closes and cancellations are
// routine; anything else is logged with the phase it happened in.
func (s *Session) fail(op string, err error) {
	s.state = Closed
	nerr := rerr.Wrap(op, s.remote, err)
	if rerr.IsExpectedClose(err) {
		s.logger.Verbose("session %s closed (%v)", s.remote, nerr)
	} else {
		s.logger.Error("%v", nerr)
		s.metrics.IOFailed(nerr.Error())
	}
	s.release()
}

func (s *Session) release() {
	s.conn.Close() //nolint:errcheck
	if s.pooled {
		util.PutReader(s.r)
	}
	s.r = nil
	s.line = nil
	s.metrics.SessionClosed()
	close(s.done)
}
