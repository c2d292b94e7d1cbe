// Package metrics provides lightweight operation counters for a multicast
// process.
//
// Counters are plain atomics so recording from connection handlers and ack
// timers never contends on a lock. A Collector can be shared by the
// transport and the process controller; Snapshot returns a consistent-enough
// point-in-time view for display.
package metrics

import (
	"sync/atomic"
)

// Collector tracks protocol activity for one process.
type Collector struct {
	processID string

	// Outbound activity
	multicastsSent atomic.Uint64
	acksSent       atomic.Uint64
	sendFailures   atomic.Uint64

	// Inbound activity
	multicastsReceived atomic.Uint64
	acksReceived       atomic.Uint64
	acksBuffered       atomic.Uint64
	decodeErrors       atomic.Uint64

	// Delivery
	deliveries        atomic.Uint64
	deliveryAttempts  atomic.Uint64
	deliveriesBlocked atomic.Uint64
}

// NewCollector creates a metrics collector for the named process.
func NewCollector(processID string) *Collector {
	return &Collector{processID: processID}
}

// RecordMulticastSent records one multicast handed to the transport.
func (c *Collector) RecordMulticastSent() {
	c.multicastsSent.Add(1)
}

// RecordAckSent records one acknowledgment handed to the transport.
func (c *Collector) RecordAckSent() {
	c.acksSent.Add(1)
}

// RecordSendFailure records a failed unicast during a broadcast fan-out.
func (c *Collector) RecordSendFailure() {
	c.sendFailures.Add(1)
}

// RecordMulticastReceived records one multicast accepted into the queue.
func (c *Collector) RecordMulticastReceived() {
	c.multicastsReceived.Add(1)
}

// RecordAckReceived records one acknowledgment applied to a known message.
func (c *Collector) RecordAckReceived() {
	c.acksReceived.Add(1)
}

// RecordAckBuffered records an acknowledgment that arrived before its
// target multicast and was parked in the pending buffer.
func (c *Collector) RecordAckBuffered() {
	c.acksBuffered.Add(1)
}

// RecordDecodeError records an inbound payload that failed to decode.
func (c *Collector) RecordDecodeError() {
	c.decodeErrors.Add(1)
}

// RecordDeliveryAttempt records a call to the delivery trigger.
func (c *Collector) RecordDeliveryAttempt(delivered bool) {
	c.deliveryAttempts.Add(1)
	if delivered {
		c.deliveries.Add(1)
	} else {
		c.deliveriesBlocked.Add(1)
	}
}

// GetSnapshot returns a snapshot of current metrics.
func (c *Collector) GetSnapshot() *Snapshot {
	return &Snapshot{
		ProcessID:          c.processID,
		MulticastsSent:     c.multicastsSent.Load(),
		AcksSent:           c.acksSent.Load(),
		SendFailures:       c.sendFailures.Load(),
		MulticastsReceived: c.multicastsReceived.Load(),
		AcksReceived:       c.acksReceived.Load(),
		AcksBuffered:       c.acksBuffered.Load(),
		DecodeErrors:       c.decodeErrors.Load(),
		Deliveries:         c.deliveries.Load(),
		DeliveryAttempts:   c.deliveryAttempts.Load(),
		DeliveriesBlocked:  c.deliveriesBlocked.Load(),
	}
}

// Reset resets all metrics (useful for testing).
func (c *Collector) Reset() {
	c.multicastsSent.Store(0)
	c.acksSent.Store(0)
	c.sendFailures.Store(0)
	c.multicastsReceived.Store(0)
	c.acksReceived.Store(0)
	c.acksBuffered.Store(0)
	c.decodeErrors.Store(0)
	c.deliveries.Store(0)
	c.deliveryAttempts.Store(0)
	c.deliveriesBlocked.Store(0)
}

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	ProcessID string

	// Outbound activity
	MulticastsSent uint64
	AcksSent       uint64
	SendFailures   uint64

	// Inbound activity
	MulticastsReceived uint64
	AcksReceived       uint64
	AcksBuffered       uint64
	DecodeErrors       uint64

	// Delivery
	Deliveries        uint64
	DeliveryAttempts  uint64
	DeliveriesBlocked uint64
}
