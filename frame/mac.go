package frame

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MAC is a fixed 6-byte link-layer address.
type MAC [6]byte

// Broadcast is the all-ones MAC address.
var Broadcast = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// String renders the MAC as upper-case colon-separated hex, e.g. "AA:BB:CC:DD:EE:FF".
func (m MAC) String() string {
	var b strings.Builder
	b.Grow(17)
	for i, octet := range m {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", octet)
	}
	return b.String()
}

// IsBroadcast reports whether m is the all-ones broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == Broadcast
}

// MarshalText implements encoding.TextMarshaler.
func (m MAC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MAC) UnmarshalText(text []byte) error {
	parsed, err := ParseMAC(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMAC parses a MAC address using ':' or '-' as the octet separator,
// case-insensitively.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	s = strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return m, fmt.Errorf("frame: malformed MAC address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return m, fmt.Errorf("frame: malformed MAC address %q", s)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return m, fmt.Errorf("frame: malformed MAC address %q: %w", s, err)
		}
		m[i] = b[0]
	}
	return m, nil
}
