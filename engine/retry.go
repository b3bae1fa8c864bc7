package engine

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
)

// transferIDAllocator hands out monotonic 16-bit transfer identifiers
// starting at a random offset, reducing collisions across restarts (§4.6).
// Seeded from crypto/rand rather than math/rand: the engine already pulls
// in a UUID library for instance identifiers, and the teacher's own
// pairing-secret generation is seeded from a cryptographic source even
// though, as here, the value itself carries no security property.
type transferIDAllocator struct {
	mu      sync.Mutex
	current uint16
}

func newTransferIDAllocator() *transferIDAllocator {
	var seed [2]byte
	if _, err := rand.Read(seed[:]); err != nil {
		// crypto/rand failing indicates a broken host; fall back to a
		// fixed offset rather than refusing to start.
		seed[0], seed[1] = 0x13, 0x37
	}
	return &transferIDAllocator{current: binary.BigEndian.Uint16(seed[:])}
}

func (a *transferIDAllocator) next() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current++
	return a.current
}

// retryManager maintains the pending-send table: per-frame registration,
// ACK matching, and timeout-bounded retransmission (§4.6). Stored as a
// plain mutex-guarded map rather than an LRU cache — the spec's invariant
// that the table shrinks only via explicit ACK or exhausted-retry removal
// rules out an eviction policy silently dropping a still-pending entry.
type retryManager struct {
	mu      sync.Mutex
	pending map[pendingKey]*pendingSend

	outbound chan<- *frame.Frame
	notify   chan<- string
	ids      *transferIDAllocator
	log      *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newRetryManager(outbound chan<- *frame.Frame, notify chan<- string, log *logging.Logger) *retryManager {
	return &retryManager{
		pending:  make(map[pendingKey]*pendingSend),
		outbound: outbound,
		notify:   notify,
		ids:      newTransferIDAllocator(),
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

func keyOf(f *frame.Frame) pendingKey {
	if f.Type == frame.TypeFILE {
		return pendingKey{TransferID: f.TransferID, FragmentNo: f.FragmentNo}
	}
	return pendingKey{TransferID: f.TransferID, FragmentNo: 0}
}

// register inserts f into the pending table and enqueues it for sending.
// Returns false without enqueueing if the key already has a pending entry.
func (r *retryManager) register(f *frame.Frame, description string) bool {
	key := keyOf(f)

	r.mu.Lock()
	if _, exists := r.pending[key]; exists {
		r.mu.Unlock()
		r.log.Debugf("retry: %v already pending, dropping duplicate registration", key)
		return false
	}
	r.pending[key] = &pendingSend{frame: f, firstSent: time.Now(), description: description}
	r.mu.Unlock()

	r.outbound <- f
	return true
}

// onAck removes the matching pending entry, if any, and emits a transfer-
// completed notification when the acknowledged fragment is the last one
// of a FILE transfer.
func (r *retryManager) onAck(transferID uint16, fragmentNo uint16) bool {
	key := pendingKey{TransferID: transferID, FragmentNo: fragmentNo}

	r.mu.Lock()
	entry, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Debugf("retry: ack for unknown key %v", key)
		return false
	}

	if entry.frame.Type == frame.TypeFILE && fragmentNo == entry.frame.TotalFrags {
		r.notify <- fmt.Sprintf("transfer %d completed: %s", transferID, entry.description)
	}
	return true
}

// sweep is invoked every checkInterval: entries past ackTimeout are
// retransmitted up to maxRetries times, then dropped with a failure
// notification.
func (r *retryManager) sweep() {
	now := time.Now()

	var toResend []*frame.Frame
	var toFail []*pendingSend

	r.mu.Lock()
	for key, entry := range r.pending {
		if now.Sub(entry.firstSent) <= ackTimeout {
			continue
		}
		if entry.retries < maxRetries {
			entry.retries++
			entry.firstSent = now
			toResend = append(toResend, entry.frame)
		} else {
			delete(r.pending, key)
			toFail = append(toFail, entry)
		}
	}
	r.mu.Unlock()

	for _, f := range toResend {
		r.outbound <- f
	}
	for _, entry := range toFail {
		r.notify <- fmt.Sprintf("failed to deliver %s to %s after %d retries", entry.description, entry.frame.Dst, maxRetries)
	}
}

func (r *retryManager) run(wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *retryManager) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
