package process

import (
	"time"

	"github.com/JoaoMesa/totally-ordered-multicast/internal/logging"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/message"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/metrics"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/transport"
)

// Options configures process behavior.
type Options struct {
	// ClockIncrement is the Lamport clock step for this process.
	// Must be positive. Default: 1
	ClockIncrement int

	// AckDelay is how long to wait after enqueueing a multicast before
	// broadcasting the acknowledgment. The delay only narrows the window
	// for ack-before-insert races across processes; correctness does not
	// depend on it. Default: 10ms
	AckDelay time.Duration

	// Transport configures timeouts and limits of the network layer.
	// Default: transport.DefaultOptions()
	Transport *transport.Options

	// OnDeliver is invoked with each delivered message, outside all
	// internal locks. Default: logs the delivery.
	OnDeliver func(message.Message)

	// Logger for protocol events. Default: NoopLogger
	Logger logging.Logger

	// Metrics collector. Default: a fresh collector named after the process
	Metrics *metrics.Collector
}

// DefaultOptions returns sensible defaults for process configuration.
func DefaultOptions() *Options {
	return &Options{
		ClockIncrement: 1,
		AckDelay:       10 * time.Millisecond,
	}
}
