package engine

import (
	"sync"

	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
	"etherlink.dev/etherlink/link"
)

// sender drains the outbound queue and writes each frame to the socket.
// A transient send failure is logged and the worker keeps running; only
// the shutdown sentinel stops it (§4.4).
type sender struct {
	sock     link.Socket
	outbound <-chan *frame.Frame
	log      *logging.Logger
}

func newSender(sock link.Socket, outbound <-chan *frame.Frame, log *logging.Logger) *sender {
	return &sender{sock: sock, outbound: outbound, log: log}
}

func (s *sender) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for f := range s.outbound {
		if f == shutdownSentinel {
			return
		}
		if err := s.sock.Send(f.Encode()); err != nil {
			s.log.Warningf("sender: transmit failed: %v", err)
		}
	}
}
