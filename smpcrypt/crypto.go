// Package smpcrypt implements the Security Manager cryptographic toolbox:
// the confirm value generation functions f4/c1, the key generation functions
// f5/s1, the check value function f6, the numeric comparison function g2, the
// link key conversion functions h6/h7 and the random address hash ah.
//
// Every []byte parameter and result is in Bluetooth wire order, least
// significant octet first. The functions reverse buffers internally before
// running AES, so callers can pass values straight off the wire.
package smpcrypt

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"

	"github.com/aead/cmac"
	"github.com/parabit/blesec/sliceops"
)

// AesCMAC computes AES-CMAC over msg with the given 128-bit key, both in wire
// order. The returned MAC is in wire order as well.
func AesCMAC(key, msg []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("length error key")
	}

	mCipher, err := aes.NewCipher(sliceops.SwapBuf(key))
	if err != nil {
		return nil, err
	}

	mMac, err := cmac.New(mCipher)
	if err != nil {
		return nil, err
	}

	mMac.Write(sliceops.SwapBuf(msg))

	return sliceops.SwapBuf(mMac.Sum(nil)), nil
}

// E is the security function e: one AES-128 block encryption of a 16 octet
// plaintext, wire order in and out.
func E(key, msg []byte) ([]byte, error) {
	if len(key) != 16 || len(msg) != 16 {
		return nil, fmt.Errorf("length error")
	}

	mCipher, err := aes.NewCipher(sliceops.SwapBuf(key))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 16)
	mCipher.Encrypt(out, sliceops.SwapBuf(msg))
	return sliceops.SwapBuf(out), nil
}

// F4 generates a commitment over the two public key X coordinates and a
// nonce. z is 0 for numeric comparison and just works, 0x80|bit for the
// passkey entry rounds.
func F4(u, v, x []byte, z uint8) ([]byte, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 {
		return nil, fmt.Errorf("length error")
	}

	// AES-CMAC_X(U || V || Z), built least significant octet first
	m := []byte{z}
	m = append(m, v...)
	m = append(m, u...)

	return AesCMAC(x, m)
}

// F5 derives MacKey and LTK from the DH key, both nonces and both device
// addresses (7 octets each, address plus type octet).
func F5(w, n1, n2, a1, a2 []byte) ([]byte, []byte, error) {
	switch {
	case len(w) != 32:
		return nil, nil, fmt.Errorf("length error w")
	case len(n1) != 16:
		return nil, nil, fmt.Errorf("length error n1")
	case len(n2) != 16:
		return nil, nil, fmt.Errorf("length error n2")
	case len(a1) != 7:
		return nil, nil, fmt.Errorf("length error a1")
	case len(a2) != 7:
		return nil, nil, fmt.Errorf("length error a2")
	}

	btle := []byte{0x65, 0x6c, 0x74, 0x62}
	salt := []byte{0xbe, 0x83, 0x60, 0x5a, 0xdb, 0x0b, 0x37, 0x60,
		0x38, 0xa5, 0xf5, 0xaa, 0x91, 0x83, 0x88, 0x6c}
	length := []byte{0x00, 0x01}

	t, err := AesCMAC(salt, w)
	if err != nil {
		return nil, nil, err
	}

	m := length
	m = append(m, a2...)
	m = append(m, a1...)
	m = append(m, n2...)
	m = append(m, n1...)
	m = append(m, btle...)
	m = append(m, 0x00)

	macKey, err := AesCMAC(t, m)
	if err != nil {
		return nil, nil, err
	}

	// ltk generation counter
	m[52] = 0x01

	ltk, err := AesCMAC(t, m)
	if err != nil {
		return nil, nil, err
	}

	return macKey, ltk, nil
}

// F6 generates the DHKey check value.
func F6(w, n1, n2, r, ioCap, a1, a2 []byte) ([]byte, error) {
	if len(w) != 16 || len(n1) != 16 || len(n2) != 16 || len(r) != 16 ||
		len(ioCap) != 3 || len(a1) != 7 || len(a2) != 7 {
		return nil, fmt.Errorf("length error")
	}

	// f6(W, N1, N2, R, IOcap, A1, A2) = AES-CMAC_W(N1 || N2 || R || IOcap || A1 || A2)
	m := append(a2, a1...)
	m = append(m, ioCap...)
	m = append(m, r...)
	m = append(m, n2...)
	m = append(m, n1...)

	return AesCMAC(w, m)
}

// G2 computes the 6 digit numeric comparison value shown to the user.
func G2(u, v, x, y []byte) (uint32, error) {
	if len(u) != 32 || len(v) != 32 || len(x) != 16 || len(y) != 16 {
		return 0, fmt.Errorf("length error")
	}

	// g2(U, V, X, Y) = AES-CMAC_X(U || V || Y) mod 2^32
	m := append(y, v...)
	m = append(m, u...)

	h, err := AesCMAC(x, m)
	if err != nil {
		return 0, err
	}

	out := binary.LittleEndian.Uint32(h[:4])
	return out % 1000000, nil
}

// C1 generates the legacy pairing confirm value. preq and pres are the full
// 7 octet pairing request/response PDUs as transmitted, iat/rat the address
// types and ia/ra the addresses in wire order.
func C1(k, r, preq, pres []byte, iat, rat byte, ia, ra []byte) ([]byte, error) {
	if len(k) != 16 || len(r) != 16 || len(preq) != 7 || len(pres) != 7 ||
		len(ia) != 6 || len(ra) != 6 {
		return nil, fmt.Errorf("length error")
	}

	// p1 = pres || preq || rat || iat
	p1 := []byte{iat, rat}
	p1 = append(p1, preq...)
	p1 = append(p1, pres...)

	// p2 = padding || ia || ra
	p2 := append([]byte{}, ra...)
	p2 = append(p2, ia...)
	p2 = append(p2, 0x00, 0x00, 0x00, 0x00)

	// c1 = e(k, e(k, r xor p1) xor p2)
	inner, err := E(k, sliceops.XorBuf(r, p1))
	if err != nil {
		return nil, err
	}

	return E(k, sliceops.XorBuf(inner, p2))
}

// S1 generates the legacy short term key from the TK and the two pairing
// random values.
func S1(k, r1, r2 []byte) ([]byte, error) {
	if len(k) != 16 || len(r1) != 16 || len(r2) != 16 {
		return nil, fmt.Errorf("length error")
	}

	// r' = r1' || r2', the least significant 8 octets of each
	m := append([]byte{}, r2[:8]...)
	m = append(m, r1[:8]...)

	return E(k, m)
}

/// H6 is the link key conversion function: AES-CMAC_W(keyID) with a 4 octet
// ASCII key id such as "lebr" or "tmp1".
func H6(w []byte, keyID uint32) ([]byte, error) {
	if len(w) != 16 {
		return nil, fmt.Errorf("length error")
	}

	m := make([]byte, 4)
	binary.LittleEndian.PutUint32(m, keyID)

	return AesCMAC(w, m)
}

/// H7 is the salted link key conversion function: AES-CMAC_SALT(W).
func H7(salt, w []byte) ([]byte, error) {
	if len(salt) != 16 || len(w) != 16 {
		return nil, fmt.Errorf("length error")
	}

	return AesCMAC(salt, w)
}

// Ah is the random address hash used to resolve private addresses with an
// IRK. prand is the 3 octet random part, the 3 octet hash is returned.
func Ah(irk, prand []byte) ([]byte, error) {
	if len(irk) != 16 || len(prand) != 3 {
		return nil, fmt.Errorf("length error")
	}

	// r' = padding || r
	m := append([]byte{}, prand...)
	m = append(m, make([]byte, 13)...)

	out, err := E(irk, m)
	if err != nil {
		return nil, err
	}

	return out[:3], nil
}
