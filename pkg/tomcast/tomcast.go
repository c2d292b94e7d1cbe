// Package tomcast provides totally ordered multicast among a fixed group
// of processes using Lamport logical clocks.
//
// Every process that broadcasts a message has that message delivered in
// the same relative order at all group members. A message becomes
// deliverable only when it sits at the head of the timestamp-ordered queue
// and every member has acknowledged it; delivery is triggered explicitly.
//
// Example usage:
//
//	members := []tomcast.Member{
//	    {ID: "processo1", Addr: "localhost:5000"},
//	    {ID: "processo2", Addr: "localhost:5001"},
//	    {ID: "processo3", Addr: "localhost:5002"},
//	}
//
//	p, err := tomcast.NewProcess("processo1", members, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop()
//
//	// Broadcast to the whole group, self included
//	if err := p.SendMessage("hello"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Deliver once the head of the queue is fully acknowledged
//	if p.TryDeliverHead() {
//	    fmt.Println("delivered")
//	}
package tomcast

import (
	"time"

	"github.com/JoaoMesa/totally-ordered-multicast/internal/group"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/logging"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/message"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/metrics"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/process"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/transport"
)

// Version is the current version of the module.
const Version = "1.0.0"

// Common errors returned by process operations.
var (
	// ErrNotRunning indicates the process has not been started or was stopped.
	ErrNotRunning = process.ErrNotRunning

	// ErrAlreadyRunning indicates Start was called on a running process.
	ErrAlreadyRunning = process.ErrAlreadyRunning

	// ErrEmptyContent indicates SendMessage was called with no content.
	ErrEmptyContent = process.ErrEmptyContent
)

// Member is one process in the static group configuration.
type Member struct {
	// ID is the process identifier, unique within the group
	ID string

	// Addr is the TCP address the member listens on
	Addr string
}

// Message is a delivered multicast message.
type Message struct {
	// ID is the deterministic message identity, "<sender>_<timestamp>"
	ID string

	// Sender is the originating process
	Sender string

	// Timestamp is the sender's logical clock value at send time
	Timestamp int

	// Content is the application payload
	Content string
}

// Options configures a process.
type Options struct {
	// ClockIncrement is the Lamport clock step. Must be positive.
	// Default: 1
	ClockIncrement int

	// AckDelay is the pause before broadcasting an acknowledgment for a
	// received multicast. Default: 10ms
	AckDelay time.Duration

	// DialTimeout bounds connect and write time per unicast.
	// Default: 2 seconds
	DialTimeout time.Duration

	// OnDeliver is invoked with each delivered message.
	// Default: nil (deliveries are only logged)
	OnDeliver func(Message)

	// Logger for structured logging (nil = no logging)
	// Default: no logging
	Logger Logger
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, fields ...LogField)
	Info(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
}

// LogField represents a structured log field.
type LogField struct {
	Key   string
	Value interface{}
}

// LogLevel controls the verbosity of NewLogger.
type LogLevel = logging.Level

// Log levels accepted by NewLogger.
const (
	LogLevelDebug = logging.LevelDebug
	LogLevelInfo  = logging.LevelInfo
	LogLevelWarn  = logging.LevelWarn
	LogLevelError = logging.LevelError
)

// NewLogger returns a Logger writing leveled lines to stderr.
func NewLogger(minLevel LogLevel) Logger {
	return loggerAdapter{inner: logging.NewDefaultLogger(minLevel)}
}

// MetricsSnapshot is a point-in-time view of process metrics.
type MetricsSnapshot = metrics.Snapshot

// QueueEntry describes one pending multicast in the delivery queue.
type QueueEntry = process.QueueEntry

// QueueSnapshot is a point-in-time view of the delivery queue and the
// pending-ack buffer.
type QueueSnapshot = process.QueueSnapshot

// Stats is a point-in-time summary of process state.
type Stats = process.Stats

// Process is one member of the multicast group.
type Process struct {
	p *process.Process
}

// DefaultOptions returns sensible defaults for process configuration.
func DefaultOptions() *Options {
	return &Options{
		ClockIncrement: 1,
		AckDelay:       10 * time.Millisecond,
		DialTimeout:    2 * time.Second,
	}
}

// NewProcess creates the process identified by id within the given group.
// If opts is nil, default options are used.
func NewProcess(id string, members []Member, opts *Options) (*Process, error) {
	gm := make([]group.Member, len(members))
	for i, m := range members {
		gm[i] = group.Member{ID: m.ID, Addr: m.Addr}
	}

	grp, err := group.New(gm)
	if err != nil {
		return nil, err
	}

	if opts == nil {
		opts = DefaultOptions()
	}

	popts := process.DefaultOptions()
	popts.ClockIncrement = opts.ClockIncrement
	popts.AckDelay = opts.AckDelay
	popts.Logger = convertLogger(opts.Logger)

	if opts.DialTimeout > 0 {
		topts := transport.DefaultOptions()
		topts.DialTimeout = opts.DialTimeout
		popts.Transport = topts
	}

	if opts.OnDeliver != nil {
		deliver := opts.OnDeliver
		popts.OnDeliver = func(m message.Message) {
			deliver(Message{
				ID:        m.ID,
				Sender:    m.Sender,
				Timestamp: m.Timestamp,
				Content:   m.Content,
			})
		}
	}

	p, err := process.New(id, grp, popts)
	if err != nil {
		return nil, err
	}

	return &Process{p: p}, nil
}

// ID returns the process identifier.
func (p *Process) ID() string {
	return p.p.ID()
}

// Addr returns the process's listen address.
func (p *Process) Addr() string {
	return p.p.Addr()
}

// Start binds the listener and begins accepting messages from the group.
func (p *Process) Start() error {
	return p.p.Start()
}

// Stop shuts the process down best-effort.
func (p *Process) Stop() {
	p.p.Stop()
}

// Running reports whether the process is accepting messages.
func (p *Process) Running() bool {
	return p.p.Running()
}

// SendMessage timestamps content and broadcasts it to the whole group,
// the sender included.
func (p *Process) SendMessage(content string) error {
	return p.p.SendMessage(content)
}

// TryDeliverHead attempts to deliver the head of the queue, which requires
// acknowledgments from every group member. Returns whether a message was
// delivered.
func (p *Process) TryDeliverHead() bool {
	return p.p.TryDeliverHead()
}

// QueueSnapshot returns the current queue state for display.
func (p *Process) QueueSnapshot() QueueSnapshot {
	return p.p.QueueSnapshot()
}

// ClockValue returns the current logical clock value.
func (p *Process) ClockValue() int {
	return p.p.ClockValue()
}

// Tick advances the clock by one increment with no associated message.
func (p *Process) Tick() int {
	return p.p.Tick()
}

// Stats returns current process statistics.
func (p *Process) Stats() *Stats {
	return p.p.Stats()
}

// loggerAdapter bridges the public Logger to the internal interface and
// back.
type loggerAdapter struct {
	inner logging.Logger
}

func (a loggerAdapter) Debug(msg string, fields ...LogField) {
	a.inner.Debug(msg, convertFields(fields)...)
}

func (a loggerAdapter) Info(msg string, fields ...LogField) {
	a.inner.Info(msg, convertFields(fields)...)
}

func (a loggerAdapter) Warn(msg string, fields ...LogField) {
	a.inner.Warn(msg, convertFields(fields)...)
}

func (a loggerAdapter) Error(msg string, fields ...LogField) {
	a.inner.Error(msg, convertFields(fields)...)
}

func convertFields(fields []LogField) []logging.Field {
	out := make([]logging.Field, len(fields))
	for i, f := range fields {
		out[i] = logging.Field{Key: f.Key, Value: f.Value}
	}
	return out
}

// internalLogger wraps a public Logger for the internal packages.
type internalLogger struct {
	l Logger
}

func (w internalLogger) Debug(msg string, fields ...logging.Field) {
	w.l.Debug(msg, convertLogFields(fields)...)
}

func (w internalLogger) Info(msg string, fields ...logging.Field) {
	w.l.Info(msg, convertLogFields(fields)...)
}

func (w internalLogger) Warn(msg string, fields ...logging.Field) {
	w.l.Warn(msg, convertLogFields(fields)...)
}

func (w internalLogger) Error(msg string, fields ...logging.Field) {
	w.l.Error(msg, convertLogFields(fields)...)
}

func convertLogFields(fields []logging.Field) []LogField {
	out := make([]LogField, len(fields))
	for i, f := range fields {
		out[i] = LogField(f)
	}
	return out
}

func convertLogger(l Logger) logging.Logger {
	if l == nil {
		return nil
	}
	if a, ok := l.(loggerAdapter); ok {
		return a.inner
	}
	return internalLogger{l: l}
}
