package process

import (
	"net"
	"testing"
	"time"

	"github.com/JoaoMesa/totally-ordered-multicast/internal/group"
	"github.com/JoaoMesa/totally-ordered-multicast/internal/transport"
)

// reserveAddrs picks n free loopback addresses by binding and releasing
// ephemeral ports. The window between release and reuse is small enough
// for tests.
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

// testGroup builds a group with the given ids on freshly reserved ports.
func testGroup(t *testing.T, ids ...string) *group.Group {
	t.Helper()

	addrs := reserveAddrs(t, len(ids))
	members := make([]group.Member, len(ids))
	for i, id := range ids {
		members[i] = group.Member{ID: id, Addr: addrs[i]}
	}

	grp, err := group.New(members)
	if err != nil {
		t.Fatalf("group.New() error = %v", err)
	}
	return grp
}

// offlineGroup builds a group whose addresses refuse connections, for
// tests that drive the receive path directly.
func offlineGroup(t *testing.T, ids ...string) *group.Group {
	t.Helper()

	members := make([]group.Member, len(ids))
	for i, id := range ids {
		members[i] = group.Member{ID: id, Addr: "127.0.0.1:1"}
	}

	grp, err := group.New(members)
	if err != nil {
		t.Fatalf("group.New() error = %v", err)
	}
	return grp
}

// fastTransportOptions returns transport options tuned for tests.
func fastTransportOptions() *transport.Options {
	topts := transport.DefaultOptions()
	topts.DialTimeout = 500 * time.Millisecond
	topts.AcceptInterval = 50 * time.Millisecond
	return topts
}

// newOfflineProcess creates a process whose transport is never started and
// whose ack timers never fire, so tests can feed the receive path by hand.
func newOfflineProcess(t *testing.T, id string, grp *group.Group) *Process {
	t.Helper()

	opts := DefaultOptions()
	opts.AckDelay = time.Hour
	opts.Transport = fastTransportOptions()

	p, err := New(id, grp, opts)
	if err != nil {
		t.Fatalf("New(%s) error = %v", id, err)
	}
	return p
}

// startProcess creates and starts a process, stopping it on cleanup.
func startProcess(t *testing.T, id string, grp *group.Group, opts *Options) *Process {
	t.Helper()

	if opts == nil {
		opts = DefaultOptions()
		opts.Transport = fastTransportOptions()
	}

	p, err := New(id, grp, opts)
	if err != nil {
		t.Fatalf("New(%s) error = %v", id, err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start(%s) error = %v", id, err)
	}
	t.Cleanup(p.Stop)

	return p
}

// waitUntil polls cond until it holds or the timeout expires.
func waitUntil(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fullyAcked reports whether every queued entry at p has a full quorum.
func fullyAcked(p *Process, wantEntries int) bool {
	snap := p.QueueSnapshot()
	if len(snap.Entries) != wantEntries {
		return false
	}
	for _, e := range snap.Entries {
		if e.AckCount < e.RequiredAcks {
			return false
		}
	}
	return true
}
