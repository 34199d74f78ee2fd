package blesec

import (
	"encoding/hex"
	"strings"
)

// Addr is a Bluetooth device address in its printable "aa:bb:cc:dd:ee:ff"
// form. Bytes returns the six address octets in wire (little endian) order,
// which is what the pairing procedures consume.
type Addr interface {
	String() string
	Bytes() []byte
}

// NewAddr creates an Addr from a colon-separated hex string.
func NewAddr(s string) Addr {
	return addr(strings.ToLower(s))
}

type addr string

func (a addr) String() string {
	return string(a)
}

func (a addr) Bytes() []byte {
	hexStr := strings.Replace(a.String(), ":", "", -1)

	out, err := hex.DecodeString(hexStr)
	if err != nil || len(out) != 6 {
		return nil
	}

	// printable form is most significant octet first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out
}
