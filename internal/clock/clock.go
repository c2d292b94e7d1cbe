// Package clock implements the Lamport logical clock driving the total
// order of multicast messages.
//
// The clock follows the standard update rules: before a local event (send)
// the counter advances by the configured increment, and on receiving a
// message the counter is first adjusted to max(local, received) and then
// advanced. The increment is fixed at construction and need not be 1;
// processes in one group may tick at different rates without breaking the
// ordering invariants.
package clock

import (
	"fmt"
	"sync"
)

// Clock is a monotonically advancing Lamport counter.
// All methods are safe for concurrent use.
type Clock struct {
	mu        sync.Mutex
	value     int
	increment int
}

// New creates a clock starting at zero with the given increment per tick.
// The increment must be positive.
func New(increment int) (*Clock, error) {
	if increment <= 0 {
		return nil, fmt.Errorf("clock increment must be positive, got %d", increment)
	}
	return &Clock{increment: increment}, nil
}

// Tick advances the clock before a locally originated event and returns
// the new value, which becomes the event's timestamp.
func (c *Clock) Tick() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += c.increment
	return c.value
}

// Observe adjusts the clock to max(local, received). It is called first
// on every inbound message, before TickForDelivery.
func (c *Clock) Observe(receivedTimestamp int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if receivedTimestamp > c.value {
		c.value = receivedTimestamp
	}
}

// TickForDelivery advances the clock after Observe on a received message,
// completing the adjust-then-increment receive rule. Returns the new value.
func (c *Clock) TickForDelivery() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += c.increment
	return c.value
}

// Read returns the current clock value without mutating it.
func (c *Clock) Read() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Increment returns the configured per-tick increment.
func (c *Clock) Increment() int {
	return c.increment
}
