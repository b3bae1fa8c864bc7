package frame

import "errors"

// Decode error kinds, per the wire-format invariants. Callers distinguish
// these with errors.Is rather than string matching.
var (
	// ErrTooShort means the buffer is smaller than HeaderLen+CRCLen.
	ErrTooShort = errors.New("frame: buffer too short for header and crc")
	// ErrBadEthertype means the ethertype field did not match Ethertype.
	ErrBadEthertype = errors.New("frame: unrecognized ethertype")
	// ErrBadType means the type field is not a recognized Type value.
	ErrBadType = errors.New("frame: unrecognized frame type")
	// ErrLengthMismatch means the buffer is shorter than HeaderLen+payload_len+CRCLen.
	ErrLengthMismatch = errors.New("frame: buffer shorter than declared payload length")
	// ErrBadCRC means the trailing CRC-32 did not match the computed checksum.
	ErrBadCRC = errors.New("frame: crc mismatch")
)
