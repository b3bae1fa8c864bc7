// Command etherlinkd is a minimal smoke-test binary for the engine. It is
// not a chat client. With -iface it binds one engine to the interface,
// sends a broadcast, and logs incoming app events for 30 seconds. With
// -loopback it runs two instances on an in-memory segment, checks that one
// reliable message gets from the first to the second, then exits. File
// transfer is not exercised.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/op/go-logging"

	"etherlink.dev/etherlink/engine"
	"etherlink.dev/etherlink/frame"
	"etherlink.dev/etherlink/internal/log"
	"etherlink.dev/etherlink/link"
)

func main() {
	iface := flag.String("iface", "", "network interface to bind (requires CAP_NET_RAW)")
	loopback := flag.Bool("loopback", false, "use an in-memory segment instead of a real interface")
	username := flag.String("username", "etherlinkd", "display name broadcast in presence beacons")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := log.Setup(*username, levelFor(*debug), !*debug)

	if *loopback {
		if err := runLoopback(logger, *debug); err != nil {
			logger.Fatalf("loopback run failed: %v", err)
		}
		return
	}

	if *iface == "" {
		fmt.Fprintln(os.Stderr, "etherlinkd: -iface is required unless -loopback is set")
		os.Exit(2)
	}

	e, err := engine.New(engine.Config{Interface: *iface, Username: *username, Debug: *debug}, logger)
	if err != nil {
		logger.Fatalf("start engine: %v", err)
	}
	defer e.Shutdown()

	e.SendBroadcast([]byte(*username + "|online"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for {
		evt, err := e.TakeAppEvent(ctx)
		if err != nil {
			return
		}
		logger.Infof("app event: %v from %s: %q", evt.Type, evt.Src, evt.Payload)
	}
}

func levelFor(debug bool) logging.Level {
	if debug {
		return logging.DEBUG
	}
	return logging.INFO
}

func runLoopback(logger *logging.Logger, debug bool) error {
	seg := link.NewSegment()
	aMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	bMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	sockA := link.NewPipe(seg, aMAC, time.Second)
	sockB := link.NewPipe(seg, bMAC, time.Second)

	a, err := engine.NewWithSocket(engine.Config{Username: "alice", Debug: debug}, sockA, logger)
	if err != nil {
		return fmt.Errorf("start alice: %w", err)
	}
	defer a.Shutdown()

	b, err := engine.NewWithSocket(engine.Config{Username: "bob", Debug: debug}, sockB, logger)
	if err != nil {
		return fmt.Errorf("start bob: %w", err)
	}
	defer b.Shutdown()

	if _, err := a.SendReliableMessage(bMAC, "hello from alice"); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	evt, err := b.TakeAppEvent(ctx)
	if err != nil {
		return fmt.Errorf("bob never received alice's message: %w", err)
	}
	logger.Infof("loopback ok: bob received %q from %s", evt.Payload, evt.Src)
	return nil
}
