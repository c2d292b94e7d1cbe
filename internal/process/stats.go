package process

import (
	"github.com/JoaoMesa/totally-ordered-multicast/internal/metrics"
)

// QueueEntry describes one pending multicast in the delivery queue.
type QueueEntry struct {
	// ID is the message id
	ID string

	// Sender is the originating process
	Sender string

	// Timestamp is the sender's logical timestamp
	Timestamp int

	// Content is the application payload
	Content string

	// AckCount is the number of distinct acknowledgers so far
	AckCount int

	// RequiredAcks is the full-quorum size
	RequiredAcks int

	// AckedBy lists the acknowledgers in sorted order
	AckedBy []string

	// IsHead marks the only delivery candidate
	IsHead bool

	// IsDeliverable is true when the entry is the head and fully acked
	IsDeliverable bool
}

// QueueSnapshot is a point-in-time view of the delivery queue and the
// pending-ack buffer.
type QueueSnapshot struct {
	// Entries in delivery order
	Entries []QueueEntry

	// PendingAcks maps a not-yet-received multicast id to the sorted ids
	// of processes whose acks are waiting for it
	PendingAcks map[string][]string
}

// QueueSnapshot returns the current queue state for display. Entries are
// in delivery order; only the head can be deliverable.
func (p *Process) QueueSnapshot() QueueSnapshot {
	msgs := p.queue.Messages()
	required := p.grp.Size()

	entries := make([]QueueEntry, len(msgs))
	for i, m := range msgs {
		ackedBy := p.acks.AckedBy(m.ID)
		isHead := i == 0
		entries[i] = QueueEntry{
			ID:            m.ID,
			Sender:        m.Sender,
			Timestamp:     m.Timestamp,
			Content:       m.Content,
			AckCount:      len(ackedBy),
			RequiredAcks:  required,
			AckedBy:       ackedBy,
			IsHead:        isHead,
			IsDeliverable: isHead && len(ackedBy) >= required,
		}
	}

	pending := make(map[string][]string)
	for target, acks := range p.pending.Entries() {
		senders := make([]string, len(acks))
		for i, a := range acks {
			senders[i] = a.Sender
		}
		pending[target] = senders
	}

	return QueueSnapshot{Entries: entries, PendingAcks: pending}
}

// Stats is a point-in-time summary of process state.
type Stats struct {
	// ProcessID is the process identifier
	ProcessID string

	// ClockValue is the current Lamport clock reading
	ClockValue int

	// QueueLength is the number of pending multicasts
	QueueLength int

	// PendingAckTargets is the number of unknown messages with buffered acks
	PendingAckTargets int

	// RequiredAcks is the full-quorum size
	RequiredAcks int

	// Metrics is the protocol activity snapshot
	Metrics *metrics.Snapshot
}

// Stats returns current process statistics.
func (p *Process) Stats() *Stats {
	return &Stats{
		ProcessID:         p.id,
		ClockValue:        p.clk.Read(),
		QueueLength:       p.queue.Len(),
		PendingAckTargets: p.pending.Len(),
		RequiredAcks:      p.grp.Size(),
		Metrics:           p.metrics.GetSnapshot(),
	}
}
