package rotorhttp

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/valyala/tcplisten"
)

// defaultLogger is used by a Server or workerPool left with a nil Logger.
var defaultLogger Logger = log.New(os.Stderr, "", log.LstdFlags)

// DefaultConcurrency is the maximum number of concurrent connections served
// by a Server whose Concurrency field is left at zero.
const DefaultConcurrency = 256 * 1024

// ConnState is the lifecycle notification a Server delivers through its
// ConnState hook, mirroring net/http's hook of the same name.
type ConnState int

const (
	// StateNew is the state of a connection just accepted, before its
	// first byte has been processed.
	StateNew ConnState = iota
	// StateActive is the state of a connection with a request currently
	// being read or handled.
	StateActive
	// StateIdle is the state of a keep-alive connection waiting between
	// requests.
	StateIdle
	// StateHijacked is the state of a connection whose goroutine returned
	// errHijacked, meaning a handler took ownership of the net.Conn.
	StateHijacked
	// StateClosed is the state of a connection that has been closed.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateHijacked:
		return "hijacked"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ServeHandler serves a single accepted connection to completion. It must
// leave c unclosed on return; the caller closes it (unless it returns
// errHijacked).
type ServeHandler func(net.Conn) error

// Logger is the subset of the standard library's log.Logger used to report
// non-fatal per-connection errors.
type Logger interface {
	Printf(format string, args ...interface{})
}

// errHijacked marks a connection whose net.Conn has been taken over by
// its serve function; the worker pool does not close a connection whose
// WorkerFunc returns it. serveConn never returns it: the Handler contract
// has no way to take over the net.Conn.
var errHijacked = errors.New("rotorhttp: connection has been hijacked")

// Server drives a HandlerFactory/Handler pair over accepted connections. It
// reads and writes raw socket bytes, translating each Parser Expectation
// into blocking net.Conn calls bounded by the negotiated deadline, and
// leaves the actual HTTP semantics entirely to Parser.
type Server struct {
	// Factory builds the per-request Handler from the parsed request
	// head. It is the only required field.
	Factory HandlerFactory

	// Context carries size limits, timeouts and the error-page renderer
	// shared by every connection's Parser. Nil uses the package defaults.
	Context *Context

	// Concurrency bounds the number of connections served at once. Zero
	// means DefaultConcurrency.
	Concurrency int

	// MaxIdleWorkerDuration bounds how long a pooled worker goroutine
	// waits for a new connection before exiting. Zero picks workerPool's
	// own default.
	MaxIdleWorkerDuration time.Duration

	// ReadBufferSize sizes the scratch buffer used for each socket Read.
	// Zero means defaultReadBufferSize.
	ReadBufferSize int

	// ConnState, if non-nil, is called on every connection state
	// transition the server observes.
	ConnState func(net.Conn, ConnState)

	// Logger receives a line for every connection that ends in an
	// unexpected (non-protocol) error. Nil uses defaultLogger, which
	// writes to standard error.
	Logger Logger

	// LogAllErrors logs every connection error, including the ones the
	// worker pool otherwise treats as routine (reset/broken-pipe/timeout).
	LogAllErrors bool

	concurrencyCh chan struct{}
	once          sync.Once
	pool          workerPool
}

const defaultReadBufferSize = 4096

func (s *Server) concurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

func (s *Server) readBufferSize() int {
	if s.ReadBufferSize <= 0 {
		return defaultReadBufferSize
	}
	return s.ReadBufferSize
}

func (s *Server) ctx() *Context {
	if s.Context == nil {
		return &Context{}
	}
	return s.Context
}

func (s *Server) init() {
	s.once.Do(func() {
		s.concurrencyCh = make(chan struct{}, s.concurrency())
		s.pool.WorkerFunc = s.serveConn
		s.pool.MaxWorkersCount = s.concurrency()
		s.pool.MaxIdleWorkerDuration = s.MaxIdleWorkerDuration
		s.pool.Logger = s.logger()
		s.pool.LogAllErrors = s.LogAllErrors
		s.pool.connState = s.connState
		s.pool.Start()
	})
}

func (s *Server) logger() Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return defaultLogger
}

func (s *Server) connState(c net.Conn, state ConnState) {
	if s.ConnState != nil {
		s.ConnState(c, state)
	}
}

// ListenAndServe listens on addr and serves connections until the listener
// returns a permanent error.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln and hands each one to a pooled
// goroutine running serveConn, until ln.Accept returns a permanent error.
func (s *Server) Serve(ln net.Listener) error {
	s.init()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		s.connState(c, StateNew)
		if !s.pool.Serve(c) {
			writeOverloadedResponse(c)
			_ = c.Close()
			s.connState(c, StateClosed)
		}
	}
}

// ListenAndServeReusePort listens on addr with SO_REUSEPORT set, so that
// several independent processes (or several Servers in one process) can
// each bind the same addr and let the kernel load-balance accepts across
// them.
func (s *Server) ListenAndServeReusePort(addr string) error {
	cfg := tcplisten.Config{
		ReusePort:   true,
		DeferAccept: true,
		FastOpen:    true,
	}
	ln, err := cfg.NewListener("tcp4", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// ServeConn serves a single already-accepted connection to completion,
// without a listener or worker pool. The caller remains responsible for
// closing c, unless ServeConn returns errHijacked.
func (s *Server) ServeConn(c net.Conn) error {
	return s.serveConn(c)
}

func writeOverloadedResponse(c net.Conn) {
	_, _ = c.Write([]byte("HTTP/1.1 503 Service Unavailable\r\nConnection: close\r\nContent-Length: 0\r\n\r\n"))
}

// serveConn is the per-connection event loop: it feeds real socket reads
// into the Parser's input queue and drains its output queue to the socket,
// translating every Expectation the Parser returns into the corresponding
// blocking I/O call bounded by the Parser's negotiated deadline.
func (s *Server) serveConn(c net.Conn) (err error) {
	cfg := s.ctx()
	p := NewParser(s.Factory, cfg)
	defer p.Release()

	buf := make([]byte, s.readBufferSize())
	exp, deadline := p.Start(coarseTimeNow())
	s.connState(c, StateActive)

	for {
		var open bool
		switch exp.Kind {
		case ExpectFlush:
			if ferr := s.drainOutput(c, p.Output(), deadline); ferr != nil {
				return ferr
			}
			exp, deadline, open = p.BytesFlushed(coarseTimeNow())

		case ExpectSleep:
			exp, deadline, open = s.awaitWakeup(p, deadline)

		case ExpectBytes, ExpectDelimiter:
			if p.State() == stateIdle {
				s.connState(c, StateIdle)
			}
			if len(p.Output().Pending()) > 0 {
				if ferr := s.drainOutput(c, p.Output(), deadline); ferr != nil {
					return ferr
				}
			}
			exp, deadline, open = s.awaitInput(c, p, exp, deadline, buf)
			s.connState(c, StateActive)

		default:
			panic("rotorhttp: unknown expectation kind")
		}
		if !open {
			return nil
		}
	}
}

// matchExpectation reports whether in already satisfies exp, and if so the
// "end" value to hand to Parser.BytesArrived.
func matchExpectation(exp Expectation, in *InputQueue) (satisfied bool, end int) {
	switch exp.Kind {
	case ExpectBytes:
		if in.Len() >= exp.Offset {
			return true, exp.Offset
		}
		return false, 0
	case ExpectDelimiter:
		hay := in.Bytes()
		if exp.Offset > len(hay) {
			return false, 0
		}
		idx := bytes.Index(hay[exp.Offset:], exp.Delim)
		if idx < 0 || idx > exp.Max {
			return false, 0
		}
		return true, exp.Offset + idx
	default:
		return false, 0
	}
}

// awaitInput blocks on c.Read until exp is satisfied or a protocol event
// (limit reached, timeout, EOF, read error) fires, driving the Parser with
// whatever event resulted.
func (s *Server) awaitInput(c net.Conn, p *Parser, exp Expectation, deadline time.Time, buf []byte) (Expectation, time.Time, bool) {
	in := p.Input()
	for {
		if satisfied, end := matchExpectation(exp, in); satisfied {
			return p.BytesArrived(coarseTimeNow(), end)
		}
		if exp.Kind == ExpectDelimiter && in.Len()-exp.Offset >= exp.Max {
			return p.TakeException(coarseTimeNow(), Exception{Kind: ExcLimitReached})
		}

		if err := c.SetReadDeadline(deadline); err != nil {
			return p.TakeException(coarseTimeNow(), Exception{Kind: ExcReadError, Err: err})
		}
		n, err := c.Read(buf)
		if n > 0 {
			in.Append(buf[:n])
			if satisfied, end := matchExpectation(exp, in); satisfied {
				return p.BytesArrived(coarseTimeNow(), end)
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return p.Timeout(coarseTimeNow())
			}
			if errors.Is(err, io.EOF) {
				return p.TakeException(coarseTimeNow(), Exception{Kind: ExcEndOfStream, Err: err})
			}
			return p.TakeException(coarseTimeNow(), Exception{Kind: ExcReadError, Err: err})
		}
	}
}

// drainOutput writes every unflushed byte in out to c, reporting each
// write back to out via MarkFlushed as it goes.
func (s *Server) drainOutput(c net.Conn, out *OutputQueue, deadline time.Time) error {
	for {
		pending := out.Pending()
		if len(pending) == 0 {
			return nil
		}
		if err := c.SetWriteDeadline(deadline); err != nil {
			return err
		}
		n, err := c.Write(pending)
		if n > 0 {
			out.MarkFlushed(n)
		}
		if err != nil {
			return err
		}
	}
}

// wakeupPollInterval bounds how often serveConn re-checks a Handler that
// is producing its response outside the normal RequestReceived/RequestEnd
// call (Processing state). There is no portable way to block a goroutine
// on "some other goroutine finished writing a *Response", short of adding
// a callback/channel to the Handler contract itself, so this polls.
const wakeupPollInterval = time.Millisecond

// awaitWakeup handles ExpectSleep, which the Parser only returns in
// Processing: it polls Parser.Wakeup until the Handler's
// asynchronously-produced response is complete or the deadline passes,
// since there is no socket I/O to block on.
func (s *Server) awaitWakeup(p *Parser, deadline time.Time) (Expectation, time.Time, bool) {
	for {
		now := coarseTimeNow()
		if !deadline.IsZero() && now.After(deadline) {
			return p.Timeout(now)
		}
		exp, next, open := p.Wakeup(now)
		if exp.Kind != ExpectSleep || !open {
			return exp, next, open
		}
		deadline = next
		time.Sleep(wakeupPollInterval)
	}
}
