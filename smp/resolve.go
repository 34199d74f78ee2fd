package smp

import (
	"bytes"

	"github.com/parabit/blesec/smpcrypt"
)

// IsResolvableAddress reports whether a wire order random address is a
// resolvable private address: the two most significant bits are 01.
func IsResolvableAddress(addr []byte) bool {
	return len(addr) == 6 && addr[5]&0xC0 == 0x40
}

// ResolveAddress checks a resolvable private address against an identity
// resolving key. The address splits into hash (low 3 octets) and prand
// (high 3 octets); it resolves when ah(irk, prand) reproduces the hash.
func ResolveAddress(irk, addr []byte) (bool, error) {
	if len(irk) != 16 {
		return false, newError(ReasonInvalidParameters, "irk must be 16 octets")
	}
	if !IsResolvableAddress(addr) {
		return false, nil
	}

	hash, err := smpcrypt.Ah(irk, addr[3:6])
	if err != nil {
		return false, newErrorf(ReasonUnspecified, "ah: %v", err)
	}
	return bytes.Equal(hash, addr[:3]), nil
}
