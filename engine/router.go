package engine

import (
	"sync"

	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
)

// router is the central dispatch point for decoded inbound frames (§4.5).
type router struct {
	myMAC     frame.MAC
	inbound   <-chan *frame.Frame
	outbound  chan<- *frame.Frame
	presence  *presenceManager
	retry     *retryManager
	assembler *assembler
	appEvents chan<- AppEvent
	log       *logging.Logger
}

func newRouter(myMAC frame.MAC, inbound <-chan *frame.Frame, outbound chan<- *frame.Frame, presence *presenceManager, retry *retryManager, asm *assembler, appEvents chan<- AppEvent, log *logging.Logger) *router {
	return &router{
		myMAC:     myMAC,
		inbound:   inbound,
		outbound:  outbound,
		presence:  presence,
		retry:     retry,
		assembler: asm,
		appEvents: appEvents,
		log:       log,
	}
}

func (r *router) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for f := range r.inbound {
		if f == shutdownSentinel {
			return
		}
		r.dispatch(f)
	}
}

func (r *router) dispatch(f *frame.Frame) {
	switch f.Type {
	case frame.TypeBROADCAST:
		r.presence.ingest(f)

	case frame.TypeCTRL:
		r.handleCtrl(f)

	case frame.TypeFILE:
		r.handleFile(f)

	case frame.TypeMSG, frame.TypeHELLO:
		r.forwardToApp(f)

	default:
		r.log.Debugf("router: unhandled frame type %v from %s", f.Type, f.Src)
	}
}

func (r *router) handleCtrl(f *frame.Frame) {
	msg, ok := parseCtrl(f.Payload)
	if !ok {
		r.log.Debugf("router: malformed CTRL payload from %s: %q", f.Src, f.Payload)
		return
	}
	switch msg.cmd {
	case "ack":
		r.retry.onAck(msg.transferID, 0)
	case "file_ack":
		r.retry.onAck(msg.transferID, msg.fragmentNo)
	case "nack":
		r.log.Debugf("router: received nack for %d from %s", msg.transferID, f.Src)
	}
}

// handleFile acknowledges fragments addressed to us and, regardless of
// destination match, always hands the fragment to the assembler: a
// mis-sent or duplicated-destination fragment on a shared segment is
// still worth reassembling rather than silently discarding (§9).
func (r *router) handleFile(f *frame.Frame) {
	if f.Dst == r.myMAC {
		ack := &frame.Frame{
			Dst:        f.Src,
			Src:        r.myMAC,
			Type:       frame.TypeCTRL,
			TransferID: f.TransferID,
			FragmentNo: 1,
			TotalFrags: 1,
			Payload:    buildFileAckPayload(f.TransferID, f.FragmentNo),
		}
		select {
		case r.outbound <- ack:
		default:
			r.log.Warningf("router: outbound queue full, dropped file_ack for transfer %d", f.TransferID)
		}
	}

	select {
	case r.assembler.fragments <- f:
	default:
		r.log.Warningf("router: assembler queue full, dropped fragment %d of transfer %d", f.FragmentNo, f.TransferID)
	}
}

func (r *router) forwardToApp(f *frame.Frame) {
	event := AppEvent{Src: f.Src, Dst: f.Dst, Type: f.Type, Payload: f.Payload}
	select {
	case r.appEvents <- event:
	default:
		r.log.Warningf("router: app event queue full, dropped %v from %s", f.Type, f.Src)
	}
}
