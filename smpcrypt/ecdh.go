package smpcrypt

import (
	"crypto"
	"crypto/elliptic"
	"io"

	"github.com/parabit/blesec/sliceops"
	ecdh "github.com/wsddn/go-ecdh"
)

// ECDHKeys is a P-256 key pair used for the Secure Connections DH exchange.
type ECDHKeys struct {
	public  crypto.PublicKey
	private crypto.PrivateKey
}

// Public returns the public half of the key pair.
func (k *ECDHKeys) Public() crypto.PublicKey {
	return k.public
}

// GenerateKeys creates a fresh P-256 key pair from the given entropy source.
func GenerateKeys(rng io.Reader) (*ECDHKeys, error) {
	var err error
	kp := ECDHKeys{}
	e := ecdh.NewEllipticECDH(elliptic.P256())

	kp.private, kp.public, err = e.GenerateKey(rng)
	if err != nil {
		return nil, err
	}

	return &kp, nil
}

// UnmarshalPublicKey parses a 64 octet X||Y public key in wire order. ok is
// false when the point is not on the curve.
func UnmarshalPublicKey(b []byte) (crypto.PublicKey, bool) {
	if len(b) != 64 {
		return nil, false
	}

	e := ecdh.NewEllipticECDH(elliptic.P256())
	xs := sliceops.SwapBuf(b[:32])
	ys := sliceops.SwapBuf(b[32:])

	// uncompressed point header
	r := append([]byte{0x04}, xs...)
	r = append(r, ys...)

	pk, ok := e.Unmarshal(r)

	return pk, ok
}

// ValidatePoint reports whether a 64 octet wire order public key describes a
// point on P-256. Off curve keys must be rejected before any DH computation.
func ValidatePoint(b []byte) bool {
	_, ok := UnmarshalPublicKey(b)
	return ok
}

// MarshalPublicKeyXY encodes a public key as X||Y in wire order.
func MarshalPublicKeyXY(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())

	ba := e.Marshal(k)
	ba = ba[1:] // strip the uncompressed point header
	x := sliceops.SwapBuf(ba[:32])
	y := sliceops.SwapBuf(ba[32:])

	return append(x, y...)
}

// MarshalPublicKeyX encodes only the X coordinate in wire order, as consumed
// by f4 and g2.
func MarshalPublicKeyX(k crypto.PublicKey) []byte {
	e := ecdh.NewEllipticECDH(elliptic.P256())

	ba := e.Marshal(k)
	ba = ba[1:]

	return sliceops.SwapBuf(ba[:32])
}

// GenerateSecret computes the shared DH key between the local private key and
// the peer public key, returned in wire order.
func (k *ECDHKeys) GenerateSecret(peer crypto.PublicKey) ([]byte, error) {
	e := ecdh.NewEllipticECDH(elliptic.P256())
	b, err := e.GenerateSharedSecret(k.private, peer)
	if err != nil {
		return nil, err
	}

	// the library strips leading zero octets off the big endian X coordinate
	if len(b) < 32 {
		b = append(make([]byte, 32-len(b)), b...)
	}
	return sliceops.SwapBuf(b), nil
}

// Wipe drops both halves of the key pair. The underlying scalar is opaque to
// this package, so releasing the reference is the strongest erasure
// available; a session must never hold a wiped key pair.
func (k *ECDHKeys) Wipe() {
	k.private = nil
	k.public = nil
}
