//go:build linux

package link

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"etherlink.dev/etherlink/frame"
)

// rawSocket is the AF_PACKET/SOCK_RAW implementation, grounded on the
// reference implementation's MySocket (core/socket.py), which binds the
// same address family and EtherType and sets a receive timeout the same
// way.
type rawSocket struct {
	mu      sync.Mutex
	fd      int
	closed  bool
	mac     frame.MAC
	timeout time.Duration
}

// Open binds a raw packet socket to iface, filtering on frame.Ethertype.
// Creating the socket requires CAP_NET_RAW (root on most distributions);
// that is a deployment concern, not one this package works around.
func Open(iface string, timeout time.Duration) (Socket, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("link: lookup interface %q: %w", iface, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(frame.Ethertype)))
	if err != nil {
		return nil, fmt.Errorf("link: open raw socket on %q (root required): %w", iface, err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(frame.Ethertype),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("link: bind %q: %w", iface, err)
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("link: set receive timeout on %q: %w", iface, err)
	}

	var mac frame.MAC
	copy(mac[:], ifi.HardwareAddr)

	return &rawSocket{fd: fd, mac: mac, timeout: timeout}, nil
}

func (s *rawSocket) Send(buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for {
		n, err := unix.Write(s.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("link: send: %w", err)
		}
		if n != len(buf) {
			return ErrShortWrite
		}
		return nil
	}
}

func (s *rawSocket) Receive() ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	fd := s.fd
	s.mu.Unlock()

	buf := make([]byte, 65536)
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, ErrTimeout
		}
		if err != nil {
			return nil, fmt.Errorf("link: receive: %w", err)
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

func (s *rawSocket) LocalMAC() frame.MAC {
	return s.mac
}

func (s *rawSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}
