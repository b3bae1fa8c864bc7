package engine

import (
	"errors"
	"sync"

	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
	"etherlink.dev/etherlink/link"
)

// listener pulls raw buffers off the socket, decodes them, and enqueues
// frames addressed to us or to the broadcast address (§4.3). Malformed
// frames are dropped at Debug level rather than reported: a single
// corrupted frame on a shared segment is routine, not exceptional.
type listener struct {
	sock    link.Socket
	myMAC   frame.MAC
	inbound chan<- *frame.Frame
	errCh   chan<- error
	log     *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newListener(sock link.Socket, myMAC frame.MAC, inbound chan<- *frame.Frame, errCh chan<- error, log *logging.Logger) *listener {
	return &listener{sock: sock, myMAC: myMAC, inbound: inbound, errCh: errCh, log: log, stopCh: make(chan struct{})}
}

func (l *listener) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		buf, err := l.sock.Receive()
		if err != nil {
			if errors.Is(err, link.ErrTimeout) {
				continue
			}
			if errors.Is(err, link.ErrClosed) {
				return
			}
			l.log.Errorf("listener: socket read failed: %v", err)
			select {
			case l.errCh <- err:
			default:
			}
			return
		}

		f, err := frame.Decode(buf)
		if err != nil {
			l.log.Debugf("listener: dropping malformed frame: %v", err)
			continue
		}

		if f.Dst != l.myMAC && !f.Dst.IsBroadcast() {
			continue
		}

		select {
		case l.inbound <- f:
		case <-l.stopCh:
			return
		}
	}
}

func (l *listener) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
