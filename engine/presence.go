package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
)

// presenceManager owns periodic beacon emission and the peer table
// lifecycle (§4.7). The peer table is an LRU cache sized to
// maxTrackedPeers purely as a bound against unbounded growth from a noisy
// or hostile segment; the authoritative removal path is the explicit
// offline-beacon / PEER_TIMEOUT logic below, grounded on the teacher's
// ssh_agent.go use of the same library for a bounded callback cache.
type presenceManager struct {
	mu    sync.Mutex
	peers *lru.Cache

	username  string
	myMAC     frame.MAC
	outbound  chan<- *frame.Frame
	transfers *transferIDAllocator
	log       *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newPresenceManager(username string, myMAC frame.MAC, outbound chan<- *frame.Frame, ids *transferIDAllocator, log *logging.Logger) *presenceManager {
	peers, err := lru.New(maxTrackedPeers)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// maxTrackedPeers never is.
		panic(err)
	}
	return &presenceManager{
		peers:     peers,
		username:  username,
		myMAC:     myMAC,
		outbound:  outbound,
		transfers: ids,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

func (p *presenceManager) beaconFrame(status string) *frame.Frame {
	return &frame.Frame{
		Dst:        frame.Broadcast,
		Src:        p.myMAC,
		Type:       frame.TypeBROADCAST,
		TransferID: p.transfers.next(),
		FragmentNo: 1,
		TotalFrags: 1,
		Payload:    []byte(fmt.Sprintf("%s|%s", p.username, status)),
	}
}

// run emits a beacon every helloInterval. On a beacon tick, when more than
// peerCleanup has passed since the last sweep, it also sweeps expired
// peers; sweeps happen only on beacon ticks.
func (p *presenceManager) run(wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(helloInterval)
	defer ticker.Stop()

	lastCleanup := time.Now()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.outbound <- p.beaconFrame("online")
			if time.Since(lastCleanup) > peerCleanup {
				if n := p.cleanup(); n > 0 {
					p.log.Debugf("presence: expired %d peers", n)
				}
				lastCleanup = time.Now()
			}
		}
	}
}

func (p *presenceManager) stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		select {
		case p.outbound <- p.beaconFrame("offline"):
		default:
			p.log.Warning("presence: outbound queue full, dropped offline beacon")
		}
	})
}

// ingest applies an inbound BROADCAST frame's presence payload.
func (p *presenceManager) ingest(f *frame.Frame) {
	text := string(f.Payload)
	parts := strings.SplitN(text, "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		p.log.Debugf("presence: dropping malformed broadcast payload %q", text)
		return
	}
	username, status := parts[0], parts[1]

	p.mu.Lock()
	defer p.mu.Unlock()

	switch status {
	case "online":
		p.peers.Add(f.Src, peerRecord{username: username, lastSeen: time.Now(), status: "online"})
	case "offline":
		p.peers.Remove(f.Src)
	default:
		p.log.Debugf("presence: dropping broadcast with unknown status %q", status)
	}
}

// cleanup drops peers whose last beacon is older than peerTimeout.
func (p *presenceManager) cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range p.peers.Keys() {
		v, ok := p.peers.Peek(key)
		if !ok {
			continue
		}
		rec := v.(peerRecord)
		if now.Sub(rec.lastSeen) > peerTimeout {
			p.peers.Remove(key)
			removed++
		}
	}
	return removed
}

// snapshot returns a defensive copy of the peer table.
func (p *presenceManager) snapshot() map[frame.MAC]PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[frame.MAC]PeerInfo, p.peers.Len())
	for _, key := range p.peers.Keys() {
		v, ok := p.peers.Peek(key)
		if !ok {
			continue
		}
		mac := key.(frame.MAC)
		rec := v.(peerRecord)
		out[mac] = PeerInfo{Username: rec.username, LastSeen: rec.lastSeen, Status: rec.status}
	}
	return out
}
