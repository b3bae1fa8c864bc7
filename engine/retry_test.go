package engine

import (
	"context"
	"testing"
	"time"

	"github.com/op/go-logging"

	"etherlink.dev/etherlink/frame"
	"etherlink.dev/etherlink/link"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.MustGetLogger("engine-test")
}

func startPair(t *testing.T) (a, b *Engine) {
	t.Helper()
	seg := link.NewSegment()
	aMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	bMAC := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	sockA := link.NewPipe(seg, aMAC, 100*time.Millisecond)
	sockB := link.NewPipe(seg, bMAC, 100*time.Millisecond)

	logger := testLogger(t)
	downloadsA := t.TempDir()
	downloadsB := t.TempDir()

	ea, err := NewWithSocket(Config{Username: "alice", DownloadDir: downloadsA}, sockA, logger)
	if err != nil {
		t.Fatalf("start alice: %v", err)
	}
	eb, err := NewWithSocket(Config{Username: "bob", DownloadDir: downloadsB}, sockB, logger)
	if err != nil {
		t.Fatalf("start bob: %v", err)
	}
	t.Cleanup(func() {
		ea.Shutdown()
		eb.Shutdown()
	})
	return ea, eb
}

// TestReliableMessageLosslessEcho covers the delivery half of scenario 1:
// a reliable message sent over a lossless segment reaches the receiver's
// app queue with its payload intact, and the sender raises no notification
// within the following 200ms.
func TestReliableMessageLosslessEcho(t *testing.T) {
	a, b := startPair(t)
	bMAC := b.myMAC

	if _, err := a.SendReliableMessage(bMAC, "hello"); err != nil {
		t.Fatalf("SendReliableMessage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	evt, err := b.TakeAppEvent(ctx)
	if err != nil {
		t.Fatalf("bob never received message: %v", err)
	}
	if string(evt.Payload) != "hello" {
		t.Fatalf("payload = %q, want %q", evt.Payload, "hello")
	}

	select {
	case n := <-a.notify:
		t.Fatalf("unexpected notification: %s", n)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestRetryExhaustionNotifiesFailure covers scenario 3: a message to a
// MAC nobody answers exhausts its retries and produces a failure
// notification rather than retrying forever.
func TestRetryExhaustionNotifiesFailure(t *testing.T) {
	a, _ := startPair(t)
	unreachable := frame.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x99}

	if _, err := a.SendReliableMessage(unreachable, "nobody home"); err != nil {
		t.Fatalf("SendReliableMessage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout*time.Duration(maxRetries+2))
	defer cancel()
	n, err := a.TakeNotification(ctx)
	if err != nil {
		t.Fatalf("never received failure notification: %v", err)
	}
	if !containsAll(n, "failed to deliver") {
		t.Fatalf("notification = %q, want a delivery-failure message", n)
	}
}

// TestFileAckDoesNotMatchPlainAck covers scenario 6: a file_ack and a
// plain ack sharing the same transfer_id are keyed independently and
// never satisfy each other's pending entry.
func TestFileAckDoesNotMatchPlainAck(t *testing.T) {
	outbound := make(chan *frame.Frame, 8)
	notify := make(chan string, 8)
	rm := newRetryManager(outbound, notify, testLogger(t))

	msg := &frame.Frame{Type: frame.TypeMSG, TransferID: 7, FragmentNo: 1, TotalFrags: 1}
	if !rm.register(msg, "plain message") {
		t.Fatal("register plain message failed")
	}
	<-outbound

	if rm.onAck(7, 3) {
		t.Fatal("file_ack for fragment 3 incorrectly matched the plain message's pending entry")
	}
	if !rm.onAck(7, 0) {
		t.Fatal("plain ack (fragment 0) should have matched the registered message")
	}
}

func containsAll(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
