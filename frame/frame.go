// Package frame implements the wire format of a single EtherLink frame:
// a fixed header, an opaque payload, and a trailing CRC-32 (IEEE 802.3)
// checksum. All multi-byte integers are big-endian.
package frame

import (
	"encoding/binary"
	"hash/crc32"
)

// Ethertype identifies EtherLink traffic on the wire.
const Ethertype uint16 = 0x88B5

// Type is the frame's message type.
type Type uint8

const (
	TypeMSG       Type = 1
	TypeFILE      Type = 2
	TypeCTRL      Type = 3
	TypeHELLO     Type = 4
	TypeBROADCAST Type = 5
)

// IsValid reports whether t is one of the recognized frame types.
func (t Type) IsValid() bool {
	switch t {
	case TypeMSG, TypeFILE, TypeCTRL, TypeHELLO, TypeBROADCAST:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	switch t {
	case TypeMSG:
		return "MSG"
	case TypeFILE:
		return "FILE"
	case TypeCTRL:
		return "CTRL"
	case TypeHELLO:
		return "HELLO"
	case TypeBROADCAST:
		return "BROADCAST"
	default:
		return "UNKNOWN"
	}
}

const (
	// HeaderLen is the fixed header size: dst(6) + src(6) + ethertype(2) +
	// type(1) + transfer_id(2) + fragment_no(2) + total_frags(2) +
	// payload_len(2).
	HeaderLen = 6 + 6 + 2 + 1 + 2 + 2 + 2 + 2
	// CRCLen is the width of the trailing CRC-32 field.
	CRCLen = 4
	// MaxPayload is the largest payload_len the wire format can express.
	MaxPayload = 0xFFFF
)

// Frame is the atomic unit exchanged on the link.
type Frame struct {
	Dst        MAC
	Src        MAC
	Type       Type
	TransferID uint16
	FragmentNo uint16
	TotalFrags uint16
	Payload    []byte
}

// Encode serializes f into the wire format, appending the CRC-32 computed
// over the header and payload.
func (f *Frame) Encode() []byte {
	buf := make([]byte, HeaderLen+len(f.Payload)+CRCLen)
	encodeHeader(buf, f)
	copy(buf[HeaderLen:], f.Payload)
	crc := crc32.ChecksumIEEE(buf[:HeaderLen+len(f.Payload)])
	binary.BigEndian.PutUint32(buf[HeaderLen+len(f.Payload):], crc)
	return buf
}

func encodeHeader(buf []byte, f *Frame) {
	off := 0
	copy(buf[off:], f.Dst[:])
	off += 6
	copy(buf[off:], f.Src[:])
	off += 6
	binary.BigEndian.PutUint16(buf[off:], Ethertype)
	off += 2
	buf[off] = byte(f.Type)
	off += 1
	binary.BigEndian.PutUint16(buf[off:], f.TransferID)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], f.FragmentNo)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], f.TotalFrags)
	off += 2
	binary.BigEndian.PutUint16(buf[off:], uint16(len(f.Payload)))
}

// Decode parses a wire-format buffer into a Frame. Trailing bytes beyond
// HeaderLen+payload_len+CRCLen (Ethernet minimum-frame padding) are ignored.
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < HeaderLen+CRCLen {
		return nil, ErrTooShort
	}

	// payload_len is read before the CRC is verified purely to locate the
	// CRC field; every other header field is validated only after the CRC
	// check below, so that corrupting any single bit of header+payload is
	// caught as BadCRC rather than surfacing a more specific, misleading
	// error kind.
	payloadLen := int(binary.BigEndian.Uint16(buf[21:23]))
	end := HeaderLen + payloadLen
	if len(buf) < end+CRCLen {
		return nil, ErrLengthMismatch
	}

	want := binary.BigEndian.Uint32(buf[end : end+CRCLen])
	got := crc32.ChecksumIEEE(buf[:end])
	if want != got {
		return nil, ErrBadCRC
	}

	ethertype := binary.BigEndian.Uint16(buf[12:14])
	if ethertype != Ethertype {
		return nil, ErrBadEthertype
	}

	typ := Type(buf[14])
	if !typ.IsValid() {
		return nil, ErrBadType
	}

	f := &Frame{
		Type:       typ,
		TransferID: binary.BigEndian.Uint16(buf[15:17]),
		FragmentNo: binary.BigEndian.Uint16(buf[17:19]),
		TotalFrags: binary.BigEndian.Uint16(buf[19:21]),
	}
	copy(f.Dst[:], buf[0:6])
	copy(f.Src[:], buf[6:12])
	if payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		copy(f.Payload, buf[HeaderLen:end])
	}
	return f, nil
}
