package link

import (
	"sync"
	"time"

	"etherlink.dev/etherlink/frame"
)

// segment is a shared in-memory broadcast domain: every pipeSocket
// registered on it sees every frame sent by any other pipeSocket on it,
// mirroring a real Ethernet segment without requiring a raw socket or
// elevated privileges. Used by tests and by cmd/etherlinkd's -loopback
// mode, grounded on the teacher's code's own synchronous in-memory framing
// pipe (hayabusa-cloud-framer's framer.NewPipe).
type segment struct {
	mu      sync.Mutex
	members map[*pipeSocket]chan []byte
}

func newSegment() *segment {
	return &segment{members: make(map[*pipeSocket]chan []byte)}
}

func (s *segment) join(p *pipeSocket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[p] = p.inbox
}

func (s *segment) leave(p *pipeSocket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, p)
}

func (s *segment) broadcast(from *pipeSocket, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, inbox := range s.members {
		if p == from {
			continue
		}
		cp := append([]byte(nil), buf...)
		select {
		case inbox <- cp:
		default:
			// Slow receiver drops the frame, same as a real link under
			// congestion; nothing upstream retries an unreliable send.
		}
	}
}

// pipeSocket is an in-memory Socket implementation used wherever a real
// raw socket is unavailable or undesired (tests, non-Linux development,
// the loopback smoke-test binary).
type pipeSocket struct {
	seg     *segment
	mac     frame.MAC
	inbox   chan []byte
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewSegment creates a fresh in-memory broadcast domain. Sockets created
// with NewPipe against the same segment can exchange frames as if they
// shared an Ethernet link.
func NewSegment() *Segment {
	return (*Segment)(newSegment())
}

// Segment is the exported handle to an in-memory broadcast domain.
type Segment segment

// NewPipe attaches a new in-memory Socket with the given local MAC to seg.
func NewPipe(seg *Segment, mac frame.MAC, timeout time.Duration) Socket {
	s := (*segment)(seg)
	p := &pipeSocket{
		seg:     s,
		mac:     mac,
		inbox:   make(chan []byte, 64),
		timeout: timeout,
	}
	s.join(p)
	return p
}

func (p *pipeSocket) Send(buf []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()
	p.seg.broadcast(p, buf)
	return nil
}

func (p *pipeSocket) Receive() ([]byte, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.mu.Unlock()

	select {
	case buf, ok := <-p.inbox:
		if !ok {
			return nil, ErrClosed
		}
		return buf, nil
	case <-time.After(p.timeout):
		return nil, ErrTimeout
	}
}

func (p *pipeSocket) LocalMAC() frame.MAC {
	return p.mac
}

func (p *pipeSocket) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.seg.leave(p)
	close(p.inbox)
	return nil
}
