package engine

import (
	"time"

	"etherlink.dev/etherlink/frame"
)

// PeerInfo is a defensive-copy snapshot of one entry in the presence
// table, exported for UI consumption.
type PeerInfo struct {
	Username string
	LastSeen time.Time
	Status   string
}

// AppEvent is a MSG or HELLO frame handed to the application layer. The
// app layer decides whether and how to acknowledge it (§6).
type AppEvent struct {
	Src     frame.MAC
	Dst     frame.MAC
	Type    frame.Type
	Payload []byte
}

// pendingKey identifies one outstanding send awaiting acknowledgement.
// FragmentNo is 0 for non-file messages, per the spec's keying rule.
type pendingKey struct {
	TransferID uint16
	FragmentNo uint16
}

// pendingSend is one entry in the retry manager's table.
type pendingSend struct {
	frame       *frame.Frame
	firstSent   time.Time
	retries     int
	description string
}

// transferKey identifies one active file transfer. Keyed by (src MAC,
// transfer_id) per §9's corrected keying rule — the reference
// implementation's transfer_id-only keying collides whenever two senders
// pick the same 16-bit id.
type transferKey struct {
	Src        frame.MAC
	TransferID uint16
}

// activeTransfer is one entry in the assembler's table.
type activeTransfer struct {
	filename   string
	totalFrags uint16
	fragments  map[uint16][]byte
	lastSeen   time.Time
	src        frame.MAC
}

// peerRecord is the presence manager's internal per-peer state.
type peerRecord struct {
	username string
	lastSeen time.Time
	status   string
}
