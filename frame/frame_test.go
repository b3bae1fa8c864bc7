package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

func sampleFrame() *Frame {
	return &Frame{
		Dst:        Broadcast,
		Src:        MAC{0x02, 0x42, 0xac, 0x11, 0x00, 0x02},
		Type:       TypeMSG,
		TransferID: 4242,
		FragmentNo: 1,
		TotalFrags: 1,
		Payload:    []byte("hello etherlink"),
	}
}

func TestRoundTrip(t *testing.T) {
	f := sampleFrame()
	encoded := f.Encode()

	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Dst != f.Dst || got.Src != f.Src || got.Type != f.Type {
		t.Fatalf("header mismatch: %+v vs %+v", got, f)
	}
	if got.TransferID != f.TransferID || got.FragmentNo != f.FragmentNo || got.TotalFrags != f.TotalFrags {
		t.Fatalf("id fields mismatch: %+v vs %+v", got, f)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("payload mismatch: %q vs %q", got.Payload, f.Payload)
	}
}

func TestRoundTripEmptyPayload(t *testing.T) {
	f := sampleFrame()
	f.Payload = nil
	encoded := f.Encode()
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected empty payload, got %v", got.Payload)
	}
}

func TestBitFlipCausesBadCRC(t *testing.T) {
	f := sampleFrame()
	encoded := f.Encode()

	// payload_len lives at byte offsets 21-22; flipping a bit there changes
	// where the decoder looks for the CRC, which can legitimately surface
	// as LengthMismatch instead of BadCRC. Every other header+payload byte
	// must surface BadCRC.
	for bitIdx := 0; bitIdx < (len(encoded)-CRCLen)*8; bitIdx++ {
		corrupted := append([]byte(nil), encoded...)
		byteIdx := bitIdx / 8
		corrupted[byteIdx] ^= 1 << uint(bitIdx%8)

		_, err := Decode(corrupted)
		if err == nil {
			t.Fatalf("bit %d: expected decode failure after corruption", bitIdx)
		}
		if byteIdx == 21 || byteIdx == 22 {
			if !errors.Is(err, ErrBadCRC) && !errors.Is(err, ErrLengthMismatch) {
				t.Fatalf("bit %d (payload_len): unexpected error kind %v", bitIdx, err)
			}
			continue
		}
		if !errors.Is(err, ErrBadCRC) {
			t.Fatalf("bit %d: expected ErrBadCRC, got %v", bitIdx, err)
		}
	}
}

func TestTruncationBelowDeclaredLength(t *testing.T) {
	f := sampleFrame()
	encoded := f.Encode()

	truncated := encoded[:len(encoded)-1]
	_, err := Decode(truncated)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}

	tooShort := encoded[:HeaderLen+CRCLen-1]
	_, err = Decode(tooShort)
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestTrailingPaddingIgnored(t *testing.T) {
	f := sampleFrame()
	encoded := f.Encode()
	padded := append(encoded, make([]byte, 10)...)

	got, err := Decode(padded)
	if err != nil {
		t.Fatalf("Decode with trailing padding: %v", err)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("payload mismatch with padding present")
	}
}

func TestBadEthertype(t *testing.T) {
	f := sampleFrame()
	encoded := f.Encode()
	encoded[12] = 0x08
	encoded[13] = 0x00
	// Recompute CRC so the only defect is the ethertype.
	recrc := recomputeCRC(encoded)
	copy(encoded[len(encoded)-CRCLen:], recrc)

	_, err := Decode(encoded)
	if !errors.Is(err, ErrBadEthertype) {
		t.Fatalf("expected ErrBadEthertype, got %v", err)
	}
}

func TestBadType(t *testing.T) {
	f := sampleFrame()
	encoded := f.Encode()
	encoded[14] = 0x09
	recrc := recomputeCRC(encoded)
	copy(encoded[len(encoded)-CRCLen:], recrc)

	_, err := Decode(encoded)
	if !errors.Is(err, ErrBadType) {
		t.Fatalf("expected ErrBadType, got %v", err)
	}
}

func TestMACParsing(t *testing.T) {
	cases := []string{
		"aa:bb:cc:dd:ee:ff",
		"AA-BB-CC-DD-EE-FF",
		"Aa:bB-cC:Dd-Ee:fF",
	}
	for _, s := range cases {
		m, err := ParseMAC(s)
		if err != nil {
			t.Fatalf("ParseMAC(%q): %v", s, err)
		}
		if m.String() != "AA:BB:CC:DD:EE:FF" {
			t.Fatalf("ParseMAC(%q) = %s, want AA:BB:CC:DD:EE:FF", s, m.String())
		}
	}

	if _, err := ParseMAC("not-a-mac"); err == nil {
		t.Fatal("expected error for malformed MAC")
	}
}

func recomputeCRC(buf []byte) []byte {
	n := len(buf) - CRCLen
	sum := crc32.ChecksumIEEE(buf[:n])
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, sum)
	return out
}
