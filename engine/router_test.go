package engine

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"etherlink.dev/etherlink/frame"
)

func newTestRouter(t *testing.T) (*router, chan *frame.Frame, chan *frame.Frame, chan AppEvent) {
	t.Helper()
	myMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	inbound := make(chan *frame.Frame, 8)
	outbound := make(chan *frame.Frame, 8)
	appEvents := make(chan AppEvent, 8)
	log := testLogger(t)

	presence := newPresenceManager("me", myMAC, outbound, newTransferIDAllocator(), log)
	retry := newRetryManager(outbound, make(chan string, 8), log)
	asm, err := newAssembler(t.TempDir(), log)
	if err != nil {
		t.Fatalf("newAssembler: %v", err)
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go asm.run(&wg)
	t.Cleanup(func() {
		asm.stop()
		wg.Wait()
	})

	r := newRouter(myMAC, inbound, outbound, presence, retry, asm, appEvents, log)
	return r, inbound, outbound, appEvents
}

func TestRouterForwardsMessageToApp(t *testing.T) {
	r, _, _, appEvents := newTestRouter(t)
	src := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x09}
	r.dispatch(&frame.Frame{Src: src, Dst: r.myMAC, Type: frame.TypeMSG, Payload: []byte("hi")})

	select {
	case evt := <-appEvents:
		if string(evt.Payload) != "hi" || evt.Src != src {
			t.Fatalf("unexpected app event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not forwarded to the app event queue")
	}
}

func TestRouterAcksFileAddressedToUs(t *testing.T) {
	r, _, outbound, _ := newTestRouter(t)
	src := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x0A}
	r.dispatch(&frame.Frame{
		Src: src, Dst: r.myMAC, Type: frame.TypeFILE,
		TransferID: 5, FragmentNo: 1, TotalFrags: 1, Payload: []byte("doc.txt|hello"),
	})

	select {
	case ack := <-outbound:
		if ack.Type != frame.TypeCTRL || ack.Dst != src {
			t.Fatalf("unexpected outbound frame: %+v", ack)
		}
		msg, ok := parseCtrl(ack.Payload)
		if !ok || msg.cmd != "file_ack" || msg.transferID != 5 || msg.fragmentNo != 1 {
			t.Fatalf("unexpected ctrl payload: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no file_ack was sent for a fragment addressed to us")
	}
}

// TestRouterAssemblesFileNotAddressedToUs covers §9's open question: a
// FILE fragment whose destination is a different host is still handed to
// the assembler, even though no ack is sent.
func TestRouterAssemblesFileNotAddressedToUs(t *testing.T) {
	r, _, outbound, _ := newTestRouter(t)
	src := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x0B}
	other := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x0C}

	r.dispatch(&frame.Frame{
		Src: src, Dst: other, Type: frame.TypeFILE,
		TransferID: 9, FragmentNo: 1, TotalFrags: 1, Payload: []byte("shared.txt|data"),
	})

	select {
	case <-outbound:
		t.Fatal("no ack should be sent for a fragment not addressed to us")
	case <-time.After(100 * time.Millisecond):
	}

	// A single-fragment transfer is written out as soon as the assembler
	// ingests it, so the file appearing proves the hand-off happened.
	path := filepath.Join(r.assembler.downloadDir, "shared.txt")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("fragment not addressed to us was never handed to the assembler")
}
