// Package sliceops holds small byte-slice helpers shared by the security
// manager packages. Bluetooth transmits multi-octet crypto values least
// significant octet first while the underlying AES primitives operate on the
// most significant octet first, so buffers get reversed at every boundary.
package sliceops

// SwapBuf returns a reversed copy of in. The input is never modified.
func SwapBuf(in []byte) []byte {
	a := make([]byte, 0, len(in))
	a = append(a, in...)
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}

	return a
}

// XorBuf returns the octet-wise xor of a and b, which must be equal length.
func XorBuf(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
