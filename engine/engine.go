// Package engine wires together the link socket, the frame codec, and the
// protocol workers (listener, sender, router, retry, presence, assembler)
// into the external Engine façade described in SPEC_FULL.md §6.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"

	"etherlink.dev/etherlink/frame"
	"etherlink.dev/etherlink/internal/log"
	"etherlink.dev/etherlink/internal/version"
	"etherlink.dev/etherlink/link"
)

// shutdownGrace bounds how long Shutdown waits for workers to drain
// before giving up and returning anyway.
const shutdownGrace = 5 * time.Second

// Engine is one running instance of the protocol: a bound socket plus the
// worker pool that reads, writes, and routes frames over it.
type Engine struct {
	id      uuid.UUID
	cfg     Config
	sock    link.Socket
	myMAC   frame.MAC
	log     *logging.Logger
	ownSock bool

	inbound   chan *frame.Frame
	outbound  chan *frame.Frame
	appEvents chan AppEvent
	notify    chan string
	errCh     chan error

	presence *presenceManager
	retry    *retryManager
	asm      *assembler
	files    *fileSender
	listener *listener
	sender   *sender
	router   *router

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New constructs an Engine bound to a raw socket on cfg.Interface. Use
// NewWithSocket to supply a socket directly (tests, the loopback
// smoke-test binary).
func New(cfg Config, logger *logging.Logger) (*Engine, error) {
	sock, err := link.Open(cfg.Interface, socketTimeout)
	if err != nil {
		return nil, fmt.Errorf("engine: open link on %q: %w", cfg.Interface, err)
	}
	e, err := NewWithSocket(cfg, sock, logger)
	if err != nil {
		sock.Close()
		return nil, err
	}
	e.ownSock = true
	return e, nil
}

// NewWithSocket constructs an Engine over an already-open Socket.
func NewWithSocket(cfg Config, sock link.Socket, logger *logging.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()

	if logger == nil {
		logger = log.Setup(cfg.Username, defaultLevel(cfg.Debug), !cfg.Debug)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("engine: generate instance id: %w", err)
	}
	myMAC := sock.LocalMAC()

	e := &Engine{
		id:        id,
		cfg:       cfg,
		sock:      sock,
		myMAC:     myMAC,
		log:       logger,
		inbound:   make(chan *frame.Frame, inboundQueueSize),
		outbound:  make(chan *frame.Frame, outboundQueueSz),
		appEvents: make(chan AppEvent, appQueueSize),
		notify:    make(chan string, notifyQueueSize),
		errCh:     make(chan error, 1),
	}

	asm, err := newAssembler(cfg.DownloadDir, logger)
	if err != nil {
		return nil, err
	}
	e.asm = asm

	e.retry = newRetryManager(e.outbound, e.notify, logger)
	e.presence = newPresenceManager(cfg.Username, myMAC, e.outbound, e.retry.ids, logger)
	e.files = newFileSender(myMAC, e.outbound, e.retry, logger)
	e.listener = newListener(sock, myMAC, e.inbound, e.errCh, logger)
	e.sender = newSender(sock, e.outbound, logger)
	e.router = newRouter(myMAC, e.inbound, e.outbound, e.presence, e.retry, e.asm, e.appEvents, logger)

	logger.Infof("engine: instance %s starting (version %s, mac %s)", e.id, version.Current, myMAC)

	e.wg.Add(6)
	go e.listener.run(&e.wg)
	go e.sender.run(&e.wg)
	go e.router.run(&e.wg)
	go e.retry.run(&e.wg)
	go e.presence.run(&e.wg)
	go e.asm.run(&e.wg)

	select {
	case e.outbound <- e.presence.beaconFrame("online"):
	default:
	}

	return e, nil
}

func defaultLevel(debug bool) logging.Level {
	if debug {
		return logging.DEBUG
	}
	return logging.INFO
}

// SendReliableMessage transmits a MSG frame to dst, registering it with
// the retry manager for ACK-bounded retransmission.
func (e *Engine) SendReliableMessage(dst frame.MAC, text string) (uint16, error) {
	id := e.retry.ids.next()
	f := &frame.Frame{Dst: dst, Src: e.myMAC, Type: frame.TypeMSG, TransferID: id, FragmentNo: 1, TotalFrags: 1, Payload: []byte(text)}
	if !e.retry.register(f, fmt.Sprintf("message to %s", dst)) {
		return 0, fmt.Errorf("engine: message id %d already pending", id)
	}
	return id, nil
}

// SendUnreliableMessage transmits a MSG frame to dst without registering
// it for retry; delivery is best-effort.
func (e *Engine) SendUnreliableMessage(dst frame.MAC, text string) {
	f := &frame.Frame{Dst: dst, Src: e.myMAC, Type: frame.TypeMSG, TransferID: e.retry.ids.next(), FragmentNo: 1, TotalFrags: 1, Payload: []byte(text)}
	e.outbound <- f
}

// SendBroadcast transmits a BROADCAST frame with an arbitrary payload to
// the whole segment, outside the presence-beacon lifecycle.
func (e *Engine) SendBroadcast(payload []byte) {
	f := &frame.Frame{Dst: frame.Broadcast, Src: e.myMAC, Type: frame.TypeBROADCAST, TransferID: e.retry.ids.next(), FragmentNo: 1, TotalFrags: 1, Payload: payload}
	e.outbound <- f
}

// SendHello transmits a HELLO frame to dst.
func (e *Engine) SendHello(dst frame.MAC) {
	f := &frame.Frame{Dst: dst, Src: e.myMAC, Type: frame.TypeHELLO, TransferID: e.retry.ids.next(), FragmentNo: 1, TotalFrags: 1, Payload: []byte(e.cfg.Username)}
	e.outbound <- f
}

// SendFile fragments and transmits path to dst, returning the allocated
// transfer ID. path may name a directory, which is transparently
// archived first.
func (e *Engine) SendFile(path string, dst frame.MAC, reliable bool) (uint16, error) {
	return e.files.send(path, dst, reliable)
}

// PeersSnapshot returns a defensive copy of the current presence table.
func (e *Engine) PeersSnapshot() map[frame.MAC]PeerInfo {
	return e.presence.snapshot()
}

// TakeAppEvent returns the next MSG or HELLO frame delivered to the
// application layer, blocking until one arrives or ctx is done.
func (e *Engine) TakeAppEvent(ctx context.Context) (AppEvent, error) {
	select {
	case evt := <-e.appEvents:
		return evt, nil
	case <-ctx.Done():
		return AppEvent{}, ctx.Err()
	}
}

// PollAppEvent returns the next queued AppEvent without blocking, and
// false if none is available.
func (e *Engine) PollAppEvent() (AppEvent, bool) {
	select {
	case evt := <-e.appEvents:
		return evt, true
	default:
		return AppEvent{}, false
	}
}

// TakeNotification returns the next transfer-lifecycle notification
// (completion or failure), blocking until one arrives or ctx is done.
func (e *Engine) TakeNotification(ctx context.Context) (string, error) {
	select {
	case n := <-e.notify:
		return n, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InstanceID returns the UUID minted for this Engine instance, used only
// to disambiguate log lines when multiple engines run in one process.
func (e *Engine) InstanceID() uuid.UUID {
	return e.id
}

// Err returns a channel that receives at most one fatal worker error —
// currently only a listener socket failure that is not a clean close.
func (e *Engine) Err() <-chan error {
	return e.errCh
}

// Shutdown stops all workers in a fixed order so that no worker is left
// blocking on a channel nothing will ever drain again (§5): listener first
// (stop producing inbound work; a socket opened by New is closed right
// after it), then the retry and presence managers (presence enqueues its
// offline beacon as it stops), then the sender, whose shutdown sentinel is
// queued behind that beacon, then the assembler, and finally the router
// that depends on all of them. Bounded by shutdownGrace.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		e.log.Infof("engine: instance %s shutting down", e.id)

		e.listener.stop()
		if e.ownSock {
			e.sock.Close()
		}

		e.retry.stop()
		e.presence.stop()
		e.outbound <- shutdownSentinel
		e.asm.stop()
		e.inbound <- shutdownSentinel

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			e.log.Warningf("engine: instance %s shutdown timed out after %s", e.id, shutdownGrace)
		}

		e.log.Infof("engine: instance %s stopped (version %s)", e.id, version.Current)
	})
}
