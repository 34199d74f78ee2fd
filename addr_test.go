package blesec

import (
	"bytes"
	"testing"
)

func Test_AddrBytes(t *testing.T) {
	a := NewAddr("C0:05:04:03:02:01")
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0xc0}
	if !bytes.Equal(a.Bytes(), want) {
		t.Fatalf("got %x, want %x", a.Bytes(), want)
	}
	if a.String() != "c0:05:04:03:02:01" {
		t.Fatal("printable form not normalized:", a.String())
	}
}

func Test_AddrBytesInvalid(t *testing.T) {
	for _, s := range []string{"", "c0:05", "zz:05:04:03:02:01", "c0050403020100"} {
		if b := NewAddr(s).Bytes(); b != nil {
			t.Errorf("%q: expected nil, got %x", s, b)
		}
	}
}
