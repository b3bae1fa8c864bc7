package engine

import (
	"testing"
	"time"

	"etherlink.dev/etherlink/frame"
)

// TestPresenceLifecycle covers the peer-table invariant: an online beacon
// adds a peer, an offline beacon removes it immediately rather than
// waiting for the timeout sweep.
func TestPresenceLifecycle(t *testing.T) {
	outbound := make(chan *frame.Frame, 8)
	myMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	peerMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	ids := newTransferIDAllocator()
	p := newPresenceManager("me", myMAC, outbound, ids, testLogger(t))

	online := &frame.Frame{Src: peerMAC, Type: frame.TypeBROADCAST, Payload: []byte("carol|online")}
	p.ingest(online)

	snap := p.snapshot()
	info, ok := snap[peerMAC]
	if !ok {
		t.Fatal("peer not present after online beacon")
	}
	if info.Username != "carol" || info.Status != "online" {
		t.Fatalf("peer info = %+v, want username carol, status online", info)
	}

	offline := &frame.Frame{Src: peerMAC, Type: frame.TypeBROADCAST, Payload: []byte("carol|offline")}
	p.ingest(offline)

	if _, ok := p.snapshot()[peerMAC]; ok {
		t.Fatal("peer still present after offline beacon")
	}
}

// TestPresenceCleanupExpiresStalePeers ensures cleanup only removes peers
// whose last beacon is older than peerTimeout, never a fresh one.
func TestPresenceCleanupExpiresStalePeers(t *testing.T) {
	outbound := make(chan *frame.Frame, 8)
	myMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	stale := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x03}
	fresh := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x04}
	ids := newTransferIDAllocator()
	p := newPresenceManager("me", myMAC, outbound, ids, testLogger(t))

	p.mu.Lock()
	p.peers.Add(stale, peerRecord{username: "old", lastSeen: time.Now().Add(-2 * peerTimeout), status: "online"})
	p.peers.Add(fresh, peerRecord{username: "new", lastSeen: time.Now(), status: "online"})
	p.mu.Unlock()

	if n := p.cleanup(); n != 1 {
		t.Fatalf("cleanup removed %d peers, want 1", n)
	}

	snap := p.snapshot()
	if _, ok := snap[stale]; ok {
		t.Fatal("stale peer survived cleanup")
	}
	if _, ok := snap[fresh]; !ok {
		t.Fatal("fresh peer incorrectly removed by cleanup")
	}
}
