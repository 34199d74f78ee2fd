package smp

import (
	"bytes"
	"testing"

	"github.com/parabit/blesec/smpcrypt"
)

func Test_DeriveLinkKeyFromLTK(t *testing.T) {
	ltk := make([]byte, 16)
	for i := range ltk {
		ltk[i] = byte(i)
	}

	lk, err := DeriveLinkKeyFromLTK(ltk, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(lk) != 16 {
		t.Fatal("link key must be 16 octets, got", len(lk))
	}

	// h6 chain: lk = h6(h6(ltk, tmp1), lebr)
	ilk, err := smpcrypt.H6(ltk, keyIDTmp1)
	if err != nil {
		t.Fatal(err)
	}
	want, err := smpcrypt.H6(ilk, keyIDLebr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(lk, want) {
		t.Fatal("h6 chain mismatch")
	}

	// ct2 switches to the salted h7 intermediate
	lk2, err := DeriveLinkKeyFromLTK(ltk, true)
	if err != nil {
		t.Fatal(err)
	}
	iltk, err := smpcrypt.H7(ctkdSalt(keyIDTmp1), ltk)
	if err != nil {
		t.Fatal(err)
	}
	want2, err := smpcrypt.H6(iltk, keyIDLebr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(lk2, want2) {
		t.Fatal("h7 chain mismatch")
	}

	if bytes.Equal(lk, lk2) {
		t.Fatal("ct2 and legacy chains must produce different keys")
	}
}

func Test_DeriveLTKFromLinkKey(t *testing.T) {
	lk := make([]byte, 16)
	lk[15] = 0x42

	ltk, err := DeriveLTKFromLinkKey(lk, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(ltk) != 16 {
		t.Fatal("ltk must be 16 octets, got", len(ltk))
	}
	if bytes.Equal(ltk, lk) {
		t.Fatal("derivation returned its input")
	}

	// the two directions use different key ids and must not collide
	other, err := DeriveLinkKeyFromLTK(lk, true)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ltk, other) {
		t.Fatal("ltk and link key derivations collided")
	}
}

func Test_DeriveRejectsBadLength(t *testing.T) {
	if _, err := DeriveLinkKeyFromLTK(make([]byte, 8), false); ReasonOf(err) != ReasonLinkKeyDerivation {
		t.Fatal("short ltk must fail derivation, got:", err)
	}
	if _, err := DeriveLTKFromLinkKey(make([]byte, 17), true); ReasonOf(err) != ReasonLinkKeyDerivation {
		t.Fatal("long link key must fail derivation, got:", err)
	}
}

func Test_CtkdSalt(t *testing.T) {
	s := ctkdSalt(keyIDTmp1)
	if len(s) != 16 {
		t.Fatal("salt must be 16 octets")
	}
	// key id sits little endian in the low octets, the rest is zero
	want := []byte{0x31, 0x70, 0x6D, 0x74}
	if !bytes.Equal(s[:4], want) {
		t.Fatalf("salt prefix %x, want %x", s[:4], want)
	}
	for _, b := range s[4:] {
		if b != 0 {
			t.Fatal("salt padding must be zero")
		}
	}
}
