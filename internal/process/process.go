// Package process implements one member of a totally ordered multicast
// group.
//
// A process ties together the Lamport clock, the ordered delivery queue,
// the acknowledgment table, and the transport. Sends timestamp and fan out
// a multicast to the whole group, the sender included; receipt enqueues the
// message and schedules an acknowledgment broadcast; a message is handed to
// the application only when it sits at the head of the queue and every
// group member has acknowledged it. Delivery is triggered manually through
// TryDeliverHead.
package process

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JoaoMesa/totally-ordered-multicast/internal/clock"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/group"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/logging"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/message"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/metrics"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/ordering"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/transport"
)

// Common errors returned by process operations.
var (
	// ErrNotRunning indicates the process has not been started or was stopped.
	ErrNotRunning = errors.New("process: not running")

	// ErrAlreadyRunning indicates Start was called on a running process.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrEmptyContent indicates SendMessage was called with no content.
	ErrEmptyContent = errors.New("process: empty message content")
)

// Process is one member of the multicast group.
type Process struct {
	id   string
	grp  *group.Group
	opts *Options

	clk     *clock.Clock
	queue   *ordering.Queue
	acks    *ordering.AckTable
	pending *ordering.PendingBuffer
	tr      *transport.Transport

	logger    logging.Logger
	metrics   *metrics.Collector
	onDeliver func(message.Message)

	// deliverMu serializes the head-check-then-pop of TryDeliverHead.
	deliverMu sync.Mutex

	// mu guards the running flag.
	mu      sync.Mutex
	running bool
}

// New creates a process identified by id within grp. The id must name a
// group member; its address is where the process listens.
func New(id string, grp *group.Group, opts *Options) (*Process, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	// Defaults are applied to a copy; the caller's options (and nested
	// transport options) are never written through, so one Options value
	// can configure several processes.
	o := *opts
	if o.ClockIncrement == 0 {
		o.ClockIncrement = 1
	}
	if o.AckDelay == 0 {
		o.AckDelay = 10 * time.Millisecond
	}
	if o.Transport != nil {
		topts := *o.Transport
		o.Transport = &topts
	} else {
		o.Transport = transport.DefaultOptions()
	}

	addr, ok := grp.Addr(id)
	if !ok {
		return nil, fmt.Errorf("process %q is not a member of the group %v", id, grp.IDs())
	}

	clk, err := clock.New(o.ClockIncrement)
	if err != nil {
		return nil, fmt.Errorf("failed to create clock: %w", err)
	}

	logger := o.Logger
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	collector := o.Metrics
	if collector == nil {
		collector = metrics.NewCollector(id)
	}

	p := &Process{
		id:      id,
		grp:     grp,
		opts:    &o,
		clk:     clk,
		queue:   ordering.NewQueue(),
		acks:    ordering.NewAckTable(),
		pending: ordering.NewPendingBuffer(),
		logger:  logger,
		metrics: collector,
	}

	p.onDeliver = o.OnDeliver
	if p.onDeliver == nil {
		p.onDeliver = func(m message.Message) {
			logger.Info("delivered message",
				logging.F("msg_id", m.ID),
				logging.F("from", m.Sender),
				logging.F("content", m.Content))
		}
	}

	if o.Transport.Logger == nil {
		o.Transport.Logger = logger
	}
	if o.Transport.Metrics == nil {
		o.Transport.Metrics = collector
	}

	tr, err := transport.New(addr, grp, p.receive, o.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	p.tr = tr

	return p, nil
}

// ID returns the process identifier.
func (p *Process) ID() string {
	return p.id
}

// Group returns the static group configuration.
func (p *Process) Group() *group.Group {
	return p.grp
}

// Start binds the listener and begins accepting messages from the group.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	if err := p.tr.Start(); err != nil {
		return fmt.Errorf("failed to start process %s: %w", p.id, err)
	}

	p.running = true
	p.logger.Info("process started",
		logging.F("id", p.id),
		logging.F("members", p.grp.Size()),
		logging.F("required_acks", p.grp.Size()))
	return nil
}

// Stop shuts the process down best-effort: the accept loop exits, but
// in-flight handlers and pending ack timers are left to drain on their own.
func (p *Process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.tr.Stop()
	p.running = false
	p.logger.Info("process stopped", logging.F("id", p.id))
}

// Running reports whether the process is accepting messages.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// SendMessage timestamps content and broadcasts it to every group member,
// the sender included. The message reaches the local queue through the
// normal receive path, not a shortcut.
func (p *Process) SendMessage(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	if !p.Running() {
		return ErrNotRunning
	}

	ts := p.clk.Tick()
	m := message.NewMulticast(p.id, ts, content)

	// Ack tracking exists from origination; acks may arrive before the
	// self-broadcast loops back.
	p.acks.Reset(m.ID)

	p.metrics.RecordMulticastSent()
	p.logger.Debug("sending multicast",
		logging.F("msg_id", m.ID),
		logging.F("ts", ts),
		logging.F("content", content))

	p.tr.Broadcast(m)
	return nil
}

// receive dispatches one inbound wire message.
func (p *Process) receive(m message.Message) {
	switch m.Type {
	case message.TypeMulticast:
		p.handleMulticast(m)
	case message.TypeAck:
		p.handleAck(m)
	}
}

// handleMulticast runs the receive path for an application message:
// clock adjust and tick, ordered insert, ack-table entry, pending-ack
// replay, then a deferred acknowledgment broadcast.
func (p *Process) handleMulticast(m message.Message) {
	p.clk.Observe(m.Timestamp)
	p.clk.TickForDelivery()

	p.queue.Insert(m)

	// Unconditional reset, also on the originator's self-receipt.
	p.acks.Reset(m.ID)

	p.metrics.RecordMulticastReceived()
	p.logger.Debug("received multicast",
		logging.F("msg_id", m.ID),
		logging.F("from", m.Sender),
		logging.F("ts", m.Timestamp))

	// Acks that outran this message replay through the normal ack path.
	for _, ack := range p.pending.Take(m.ID) {
		p.handleAck(ack)
	}

	original := m
	time.AfterFunc(p.opts.AckDelay, func() {
		p.sendAck(original)
	})
}

// handleAck records an acknowledgment, buffering it when the target
// multicast has not arrived yet.
func (p *Process) handleAck(a message.Message) {
	p.clk.Observe(a.Timestamp)
	p.clk.TickForDelivery()

	if p.acks.Add(a.TargetID, a.Sender) {
		p.metrics.RecordAckReceived()
		p.logger.Debug("recorded ack",
			logging.F("target", a.TargetID),
			logging.F("from", a.Sender))
		return
	}

	p.pending.Add(a.TargetID, a)
	p.metrics.RecordAckBuffered()
	p.logger.Debug("buffered early ack",
		logging.F("target", a.TargetID),
		logging.F("from", a.Sender))
}

// sendAck broadcasts an acknowledgment for the given multicast to the
// whole group, the acker included.
func (p *Process) sendAck(original message.Message) {
	ts := p.clk.Tick()
	ack := message.NewAck(p.id, ts, original.ID)

	p.metrics.RecordAckSent()
	p.logger.Debug("sending ack",
		logging.F("target", original.ID),
		logging.F("ts", ts))

	p.tr.Broadcast(ack)
}

// TryDeliverHead attempts to deliver the message at the head of the queue.
// Delivery requires acknowledgments from every group member; non-head
// messages are never candidates regardless of their own ack count. The
// delivered message is handed to the OnDeliver callback.
func (p *Process) TryDeliverHead() bool {
	p.deliverMu.Lock()

	head, ok := p.queue.Head()
	if !ok {
		p.deliverMu.Unlock()
		p.metrics.RecordDeliveryAttempt(false)
		p.logger.Debug("deliver: queue empty")
		return false
	}

	acked := p.acks.Count(head.ID)
	if acked < p.grp.Size() {
		p.deliverMu.Unlock()
		p.metrics.RecordDeliveryAttempt(false)
		p.logger.Debug("deliver: head lacks quorum",
			logging.F("msg_id", head.ID),
			logging.F("acks", acked),
			logging.F("required", p.grp.Size()))
		return false
	}

	// An earlier-ordered insert may have displaced the evaluated head in
	// the meantime; only that exact message may be popped. The new head has
	// not been through the quorum check, so this attempt fails.
	delivered, ok := p.queue.PopHeadIf(head.ID)
	if !ok {
		p.deliverMu.Unlock()
		p.metrics.RecordDeliveryAttempt(false)
		p.logger.Debug("deliver: head displaced before pop",
			logging.F("msg_id", head.ID))
		return false
	}
	p.acks.Remove(delivered.ID)
	p.deliverMu.Unlock()

	p.metrics.RecordDeliveryAttempt(true)
	p.logger.Info("delivering message",
		logging.F("msg_id", delivered.ID),
		logging.F("from", delivered.Sender),
		logging.F("ts", delivered.Timestamp))

	p.onDeliver(delivered)
	return true
}

// ClockValue returns the current logical clock value.
func (p *Process) ClockValue() int {
	return p.clk.Read()
}

// Tick advances the clock by one increment with no associated message,
// for testing and demonstration.
func (p *Process) Tick() int {
	return p.clk.Tick()
}

// Addr returns the process's bound listen address.
func (p *Process) Addr() string {
	return p.tr.Addr()
}
