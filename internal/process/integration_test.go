package process

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/JoaoMesa/totally-ordered-multicast/internal/message"
)

// deliveryLog collects delivered messages across goroutines.
type deliveryLog struct {
	mu   sync.Mutex
	msgs []message.Message
}

func (l *deliveryLog) record(m message.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, m)
}

func (l *deliveryLog) ids() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, len(l.msgs))
	for i, m := range l.msgs {
		ids[i] = m.ID
	}
	return ids
}

// startGroup starts one process per id on a shared loopback group and
// returns the processes with their delivery logs.
func startGroup(t *testing.T, ids ...string) (map[string]*Process, map[string]*deliveryLog) {
	t.Helper()

	grp := testGroup(t, ids...)

	procs := make(map[string]*Process, len(ids))
	logs := make(map[string]*deliveryLog, len(ids))
	for _, id := range ids {
		dl := &deliveryLog{}
		logs[id] = dl

		opts := DefaultOptions()
		opts.Transport = fastTransportOptions()
		opts.OnDeliver = dl.record

		procs[id] = startProcess(t, id, grp, opts)
	}

	return procs, logs
}

func TestEndToEnd_SingleMulticastDeliversEverywhere(t *testing.T) {
	procs, logs := startGroup(t, "A", "B", "C")

	if err := procs["A"].SendMessage("hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	// Every process must queue A_1 and record acks from all three members.
	for id, p := range procs {
		p := p
		waitUntil(t, 5*time.Second, "full quorum at "+id, func() bool {
			return fullyAcked(p, 1)
		})
	}

	for id, p := range procs {
		snap := p.QueueSnapshot()
		e := snap.Entries[0]
		if e.ID != "A_1" || e.Sender != "A" || e.Timestamp != 1 || e.Content != "hello" {
			t.Errorf("%s: head entry = %+v, want A_1/hello", id, e)
		}
		if !reflect.DeepEqual(e.AckedBy, []string{"A", "B", "C"}) {
			t.Errorf("%s: AckedBy = %v, want [A B C]", id, e.AckedBy)
		}

		if !p.TryDeliverHead() {
			t.Errorf("%s: TryDeliverHead() = false, want true", id)
		}
	}

	for id, dl := range logs {
		got := dl.ids()
		if !reflect.DeepEqual(got, []string{"A_1"}) {
			t.Errorf("%s: delivered %v, want [A_1]", id, got)
		}
	}
}

func TestEndToEnd_AgreedOrderAcrossSenders(t *testing.T) {
	procs, logs := startGroup(t, "A", "B", "C")

	if err := procs["B"].SendMessage("from b"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if err := procs["A"].SendMessage("from a"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	for id, p := range procs {
		p := p
		waitUntil(t, 5*time.Second, "both messages fully acked at "+id, func() bool {
			return fullyAcked(p, 2)
		})
	}

	// Queues must agree before any delivery.
	var wantOrder []string
	for id, p := range procs {
		snap := p.QueueSnapshot()
		order := []string{snap.Entries[0].ID, snap.Entries[1].ID}
		if wantOrder == nil {
			wantOrder = order
		} else if !reflect.DeepEqual(order, wantOrder) {
			t.Fatalf("%s: queue order %v disagrees with %v", id, order, wantOrder)
		}
	}

	for id, p := range procs {
		if !p.TryDeliverHead() || !p.TryDeliverHead() {
			t.Errorf("%s: failed to deliver both messages", id)
		}
	}

	var wantDelivered []string
	for id, dl := range logs {
		got := dl.ids()
		if len(got) != 2 {
			t.Fatalf("%s: delivered %v, want 2 messages", id, got)
		}
		if wantDelivered == nil {
			wantDelivered = got
		} else if !reflect.DeepEqual(got, wantDelivered) {
			t.Errorf("%s: delivery order %v disagrees with %v", id, got, wantDelivered)
		}
	}
}

func TestEndToEnd_CustomIncrementStillOrders(t *testing.T) {
	grp := testGroup(t, "A", "B")

	optsA := DefaultOptions()
	optsA.Transport = fastTransportOptions()
	optsA.ClockIncrement = 3
	pA := startProcess(t, "A", grp, optsA)

	optsB := DefaultOptions()
	optsB.Transport = fastTransportOptions()
	pB := startProcess(t, "B", grp, optsB)

	if err := pA.SendMessage("uneven clocks"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	for _, p := range []*Process{pA, pB} {
		p := p
		waitUntil(t, 5*time.Second, "quorum with mixed increments", func() bool {
			return fullyAcked(p, 1)
		})
	}

	// A ticks by 3, so its first message is A_3 at both members.
	for _, p := range []*Process{pA, pB} {
		snap := p.QueueSnapshot()
		if snap.Entries[0].ID != "A_3" {
			t.Errorf("head = %s, want A_3", snap.Entries[0].ID)
		}
		if !p.TryDeliverHead() {
			t.Error("TryDeliverHead() = false, want true")
		}
	}
}

func TestEndToEnd_MetricsReflectTraffic(t *testing.T) {
	procs, _ := startGroup(t, "A", "B", "C")

	if err := procs["A"].SendMessage("count me"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	for id, p := range procs {
		p := p
		waitUntil(t, 5*time.Second, "quorum at "+id, func() bool {
			return fullyAcked(p, 1)
		})
	}

	procs["A"].TryDeliverHead()

	stats := procs["A"].Stats()
	if stats.Metrics.MulticastsSent != 1 {
		t.Errorf("MulticastsSent = %d, want 1", stats.Metrics.MulticastsSent)
	}
	if stats.Metrics.MulticastsReceived != 1 {
		t.Errorf("MulticastsReceived = %d, want 1", stats.Metrics.MulticastsReceived)
	}
	if stats.Metrics.AcksSent != 1 {
		t.Errorf("AcksSent = %d, want 1", stats.Metrics.AcksSent)
	}
	if stats.Metrics.Deliveries != 1 {
		t.Errorf("Deliveries = %d, want 1", stats.Metrics.Deliveries)
	}
	if stats.QueueLength != 0 {
		t.Errorf("QueueLength = %d, want 0 after delivery", stats.QueueLength)
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	grp := testGroup(t, "A", "B")

	opts := DefaultOptions()
	opts.Transport = fastTransportOptions()

	p, err := New("A", grp, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if p.Running() {
		t.Error("Running() = true before Start")
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(); err != ErrAlreadyRunning {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	p.Stop()
	if p.Running() {
		t.Error("Running() = true after Stop")
	}

	// Stop is idempotent.
	p.Stop()

	if err := p.SendMessage("late"); err != ErrNotRunning {
		t.Errorf("SendMessage() after Stop error = %v, want ErrNotRunning", err)
	}
}
