// Package transport moves wire messages between group members over
// one-shot TCP connections.
//
// Every send opens a fresh connection, writes one encoded message, and
// closes; the receiver reads to EOF, decodes, and hands the message to the
// registered handler. The transport offers no ordering or delivery
// guarantee between independent connections; the ordering layer above
// reconstructs the total order from timestamps and acknowledgments.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/JoaoMesa/totally-ordered-multicast/internal/group"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/logging"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/message"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/metrics"
)

// Handler receives each successfully decoded inbound message. It is
// invoked from the connection's own goroutine and must be safe for
// concurrent use.
type Handler func(message.Message)

// Options configures transport behavior.
type Options struct {
	// DialTimeout bounds connect and write time for one outbound unicast
	DialTimeout time.Duration

	// AcceptInterval bounds how long the accept loop blocks before
	// rechecking the stop signal
	AcceptInterval time.Duration

	// MaxMessageSize bounds how many bytes one inbound message may carry
	MaxMessageSize int64

	// Logger for per-destination send failures and handler errors
	Logger logging.Logger

	// Metrics collector shared with the owning process
	Metrics *metrics.Collector
}

// DefaultOptions returns sensible defaults for transport configuration.
func DefaultOptions() *Options {
	return &Options{
		DialTimeout:    2 * time.Second,
		AcceptInterval: 1 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Transport owns one process's listening socket and performs the
// broadcast fan-out to the group.
type Transport struct {
	addr    string
	grp     *group.Group
	handler Handler
	opts    *Options
	logger  logging.Logger
	metrics *metrics.Collector

	listener *net.TCPListener
	stop     chan struct{}
	done     chan struct{}
}

// New creates a transport listening on addr and fanning out to grp.
// The handler must not be nil.
func New(addr string, grp *group.Group, handler Handler, opts *Options) (*Transport, error) {
	if handler == nil {
		return nil, fmt.Errorf("transport handler must not be nil")
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewCollector(addr)
	}

	return &Transport{
		addr:    addr,
		grp:     grp,
		handler: handler,
		opts:    opts,
		logger:  logger,
		metrics: collector,
	}, nil
}

// Start binds the listening socket and launches the accept loop.
// A bind failure is fatal to startup and reported before any networking
// begins.
func (t *Transport) Start() error {
	if t.listener != nil {
		return fmt.Errorf("transport already started")
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", t.addr, err)
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", t.addr, err)
	}

	t.listener = ln
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	t.logger.Info("listening", logging.F("addr", ln.Addr().String()))

	go t.acceptLoop()

	return nil
}

// Addr returns the bound listen address, useful when the configured
// address had port 0.
func (t *Transport) Addr() string {
	if t.listener == nil {
		return t.addr
	}
	return t.listener.Addr().String()
}

// Stop closes the listening socket and unblocks the accept loop. In-flight
// connection handlers are not force-cancelled; they finish on their own.
func (t *Transport) Stop() {
	if t.listener == nil {
		return
	}

	close(t.stop)
	_ = t.listener.Close()
	<-t.done

	t.listener = nil
	t.logger.Info("transport stopped")
}

// acceptLoop accepts connections until stopped, bounding each accept so
// the stop signal is observed within the accept interval.
func (t *Transport) acceptLoop() {
	defer close(t.done)

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		_ = t.listener.SetDeadline(time.Now().Add(t.opts.AcceptInterval))

		conn, err := t.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-t.stop:
				return
			default:
				t.logger.Warn("accept failed", logging.F("error", err))
				continue
			}
		}

		go t.handleConn(conn)
	}
}

// handleConn reads exactly one message from the connection, decodes it,
// and dispatches it. Decode failures are logged and dropped without
// touching shared state.
func (t *Transport) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(t.opts.DialTimeout))

	data, err := io.ReadAll(io.LimitReader(conn, t.opts.MaxMessageSize))
	if err != nil {
		t.logger.Warn("failed to read inbound message", logging.F("error", err))
		return
	}

	m, err := message.Decode(data)
	if err != nil {
		t.metrics.RecordDecodeError()
		t.logger.Warn("dropping malformed message",
			logging.F("error", err),
			logging.F("bytes", len(data)))
		return
	}

	t.handler(m)
}

// Broadcast sends the message to every group member, including the sender
// itself, as independent unicasts. Per-destination failures are logged and
// counted but do not abort delivery to the remaining members.
func (t *Transport) Broadcast(m message.Message) {
	data, err := m.Encode()
	if err != nil {
		t.logger.Error("failed to encode outbound message",
			logging.F("msg_id", m.ID),
			logging.F("error", err))
		return
	}

	for _, member := range t.grp.Members() {
		if err := t.send(member.Addr, data); err != nil {
			t.metrics.RecordSendFailure()
			t.logger.Warn("failed to send",
				logging.F("to", member.ID),
				logging.F("addr", member.Addr),
				logging.F("msg_id", m.ID),
				logging.F("error", err))
		}
	}
}

// send delivers one encoded message over a transient connection.
func (t *Transport) send(addr string, data []byte) error {
	conn, err := net.DialTimeout("tcp", addr, t.opts.DialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetWriteDeadline(time.Now().Add(t.opts.DialTimeout))

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}

	return nil
}
