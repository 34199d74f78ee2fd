package smpcrypt

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func Test_ECDH_SharedSecret(t *testing.T) {
	a, err := GenerateKeys(rand.Reader)
	if err != nil {
		t.Fatal("generate a:", err)
	}
	b, err := GenerateKeys(rand.Reader)
	if err != nil {
		t.Fatal("generate b:", err)
	}

	sa, err := a.GenerateSecret(b.Public())
	if err != nil {
		t.Fatal("secret a:", err)
	}
	sb, err := b.GenerateSecret(a.Public())
	if err != nil {
		t.Fatal("secret b:", err)
	}

	if len(sa) != 32 {
		t.Fatal("unexpected secret length:", len(sa))
	}
	if !bytes.Equal(sa, sb) {
		t.Fatal("shared secrets differ")
	}
}

func Test_ECDH_MarshalRoundTrip(t *testing.T) {
	k, err := GenerateKeys(rand.Reader)
	if err != nil {
		t.Fatal("generate:", err)
	}

	xy := MarshalPublicKeyXY(k.Public())
	if len(xy) != 64 {
		t.Fatal("unexpected marshal length:", len(xy))
	}

	pk, ok := UnmarshalPublicKey(xy)
	if !ok {
		t.Fatal("round trip unmarshal failed")
	}
	if !bytes.Equal(MarshalPublicKeyXY(pk), xy) {
		t.Fatal("round trip changed the key")
	}
	if !bytes.Equal(MarshalPublicKeyX(pk), xy[:32]) {
		t.Fatal("x coordinate mismatch")
	}
}

func Test_ECDH_RejectsOffCurve(t *testing.T) {
	junk := make([]byte, 64)
	for i := range junk {
		junk[i] = 0xff
	}

	if _, ok := UnmarshalPublicKey(junk); ok {
		t.Fatal("accepted an off curve point")
	}
	if ValidatePoint(junk) {
		t.Fatal("validated an off curve point")
	}
	if _, ok := UnmarshalPublicKey(junk[:20]); ok {
		t.Fatal("accepted a truncated key")
	}
}

func Test_ECDH_Wipe(t *testing.T) {
	k, err := GenerateKeys(rand.Reader)
	if err != nil {
		t.Fatal("generate:", err)
	}
	k.Wipe()
	if k.Public() != nil {
		t.Fatal("public key survived wipe")
	}
}
