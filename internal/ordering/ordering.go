// Package ordering implements the bookkeeping that turns unordered
// network arrivals into a single group-wide delivery order: the sorted
// pending-message queue, the per-message acknowledgment table, and the
// buffer for acknowledgments that outran their target multicast.
//
// The three structures are independently locked, mirroring the process
// resource model: critical sections are short and never perform I/O, and
// the process controller never holds more than one of these locks at a
// time except when assembling a snapshot.
package ordering

import (
	"sort"
	"sync"

	"github.com/JoaoMesa/totally-ordered-multicast/internal/message"
)

// Queue is the ordered sequence of pending multicast messages, sorted by
// (timestamp, sender). Only the head is ever a delivery candidate.
type Queue struct {
	mu       sync.Mutex
	messages []message.Message
}

// NewQueue creates an empty delivery queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Insert adds a multicast message, keeping the queue sorted by the total
// order key.
func (q *Queue) Insert(m message.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := sort.Search(len(q.messages), func(i int) bool {
		return m.Before(q.messages[i])
	})
	q.messages = append(q.messages, message.Message{})
	copy(q.messages[i+1:], q.messages[i:])
	q.messages[i] = m
}

// Head returns the earliest-ordered pending message without removing it.
func (q *Queue) Head() (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return message.Message{}, false
	}
	return q.messages[0], true
}

// PopHead removes and returns the head message.
func (q *Queue) PopHead() (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return message.Message{}, false
	}
	head := q.messages[0]
	q.messages = q.messages[1:]
	return head, true
}

// PopHeadIf removes and returns the head message only if its id still
// matches msgID. Inserts run on connection-handler goroutines, so a head
// evaluated outside the queue lock may have been displaced by an
// earlier-ordered arrival; the guard makes the caller's check-then-pop
// safe without holding the queue lock across the acknowledgment lookup.
func (q *Queue) PopHeadIf(msgID string) (message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 || q.messages[0].ID != msgID {
		return message.Message{}, false
	}
	head := q.messages[0]
	q.messages = q.messages[1:]
	return head, true
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Messages returns a copy of the queue in delivery order.
func (q *Queue) Messages() []message.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]message.Message, len(q.messages))
	copy(out, q.messages)
	return out
}

// AckTable maps a multicast message id to the set of processes that have
// acknowledged it. An entry exists from the moment the message is enqueued
// (or originated locally) until it is delivered.
type AckTable struct {
	mu   sync.Mutex
	acks map[string]map[string]struct{}
}

// NewAckTable creates an empty acknowledgment table.
func NewAckTable() *AckTable {
	return &AckTable{acks: make(map[string]map[string]struct{})}
}

// Reset installs an empty acknowledger set for the message id, replacing
// any existing set. The receive path calls this unconditionally, so a
// process re-receiving its own broadcast resets the set it created at
// origination; acks always trail the multicast on the wire, which is what
// keeps this from losing data in practice.
func (t *AckTable) Reset(msgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acks[msgID] = make(map[string]struct{})
}

// Add records that sender acknowledged the message. It returns false when
// the message has no table entry, meaning the multicast itself has not
// arrived yet and the ack must be buffered.
func (t *AckTable) Add(msgID, sender string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.acks[msgID]
	if !ok {
		return false
	}
	set[sender] = struct{}{}
	return true
}

// Count returns the number of distinct acknowledgers for the message, or
// zero if it has no entry.
func (t *AckTable) Count(msgID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.acks[msgID])
}

// AckedBy returns the sorted ids of the processes that acknowledged the
// message.
func (t *AckTable) AckedBy(msgID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := t.acks[msgID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Remove deletes the message's entry after delivery.
func (t *AckTable) Remove(msgID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.acks, msgID)
}

// PendingBuffer holds acknowledgments received before their target
// multicast, keyed by the target message id. Arrival order is preserved so
// replay applies acks in the order they came in.
type PendingBuffer struct {
	mu      sync.Mutex
	pending map[string][]message.Message
}

// NewPendingBuffer creates an empty pending-ack buffer.
func NewPendingBuffer() *PendingBuffer {
	return &PendingBuffer{pending: make(map[string][]message.Message)}
}

// Add parks an early acknowledgment until its target multicast arrives.
func (b *PendingBuffer) Add(targetID string, ack message.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[targetID] = append(b.pending[targetID], ack)
}

// Take removes and returns all buffered acknowledgments for the target
// message, in arrival order. It returns nil when none are buffered.
func (b *PendingBuffer) Take(targetID string) []message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	acks := b.pending[targetID]
	delete(b.pending, targetID)
	return acks
}

// Entries returns a copy of the buffered acknowledgments per target id.
func (b *PendingBuffer) Entries() map[string][]message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][]message.Message, len(b.pending))
	for id, acks := range b.pending {
		cp := make([]message.Message, len(acks))
		copy(cp, acks)
		out[id] = cp
	}
	return out
}

// Len returns the number of target ids with buffered acknowledgments.
func (b *PendingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
