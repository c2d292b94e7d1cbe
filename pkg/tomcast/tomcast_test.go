package tomcast_test

import (
	"net"
	"testing"
	"time"

	"github.com/JoaoMesa/totally-ordered-multicast/pkg/tomcast"
)

// reserveAddrs picks n free loopback addresses.
func reserveAddrs(t *testing.T, n int) []string {
	t.Helper()

	listeners := make([]net.Listener, n)
	addrs := make([]string, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		listeners[i] = ln
		addrs[i] = ln.Addr().String()
	}
	for _, ln := range listeners {
		_ = ln.Close()
	}
	return addrs
}

func TestNewProcess_Validation(t *testing.T) {
	members := []tomcast.Member{
		{ID: "processo1", Addr: "127.0.0.1:1"},
	}

	if _, err := tomcast.NewProcess("stranger", members, nil); err == nil {
		t.Error("NewProcess() with non-member id should fail")
	}

	if _, err := tomcast.NewProcess("processo1", nil, nil); err == nil {
		t.Error("NewProcess() with empty group should fail")
	}
}

// TestPublicAPI_EndToEnd drives a two-member group through the full
// protocol using only the public API.
func TestPublicAPI_EndToEnd(t *testing.T) {
	addrs := reserveAddrs(t, 2)
	members := []tomcast.Member{
		{ID: "processo1", Addr: addrs[0]},
		{ID: "processo2", Addr: addrs[1]},
	}

	delivered := make(chan tomcast.Message, 4)

	opts1 := tomcast.DefaultOptions()
	opts1.OnDeliver = func(m tomcast.Message) { delivered <- m }

	p1, err := tomcast.NewProcess("processo1", members, opts1)
	if err != nil {
		t.Fatalf("NewProcess(processo1) error = %v", err)
	}
	p2, err := tomcast.NewProcess("processo2", members, nil)
	if err != nil {
		t.Fatalf("NewProcess(processo2) error = %v", err)
	}

	for _, p := range []*tomcast.Process{p1, p2} {
		if err := p.Start(); err != nil {
			t.Fatalf("Start(%s) error = %v", p.ID(), err)
		}
		t.Cleanup(p.Stop)
	}

	if err := p1.SendMessage("ola"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	// Wait for the full quorum at both members.
	deadline := time.Now().Add(5 * time.Second)
	for _, p := range []*tomcast.Process{p1, p2} {
		for {
			snap := p.QueueSnapshot()
			if len(snap.Entries) == 1 && snap.Entries[0].IsDeliverable {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("%s: head never became deliverable: %+v", p.ID(), snap.Entries)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	if !p1.TryDeliverHead() {
		t.Fatal("TryDeliverHead() = false, want true")
	}

	select {
	case m := <-delivered:
		if m.Content != "ola" || m.Sender != "processo1" || m.ID != "processo1_1" {
			t.Errorf("delivered %+v, want processo1_1/ola", m)
		}
	case <-time.After(time.Second):
		t.Fatal("OnDeliver callback never fired")
	}

	stats := p1.Stats()
	if stats.Metrics.Deliveries != 1 {
		t.Errorf("Deliveries = %d, want 1", stats.Metrics.Deliveries)
	}
	if stats.ClockValue == 0 {
		t.Error("ClockValue = 0, want > 0 after traffic")
	}
}
