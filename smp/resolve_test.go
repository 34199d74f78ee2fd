package smp

import "testing"

func Test_IsResolvableAddress(t *testing.T) {
	cases := []struct {
		name string
		addr []byte
		want bool
	}{
		{"resolvable private", []byte{0xaa, 0xfb, 0x0d, 0x94, 0x81, 0x70}, true},
		{"static random", []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0xc1}, false},
		{"non resolvable private", []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x31}, false},
		{"wrong length", []byte{0x01, 0x02, 0x03}, false},
	}
	for _, tc := range cases {
		if got := IsResolvableAddress(tc.addr); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func Test_ResolveAddress(t *testing.T) {
	// sample data from the ah reference vectors, in wire order
	irk := []byte{
		0x9b, 0x7d, 0x39, 0x0a, 0xa6, 0x10, 0x10, 0x34,
		0x05, 0xad, 0xc8, 0x57, 0xa3, 0x34, 0x02, 0xec,
	}
	// hash 0x0dfbaa, prand 0x708194
	rpa := []byte{0xaa, 0xfb, 0x0d, 0x94, 0x81, 0x70}

	ok, err := ResolveAddress(irk, rpa)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("address did not resolve against its irk")
	}

	wrongIRK := make([]byte, 16)
	ok, err = ResolveAddress(wrongIRK, rpa)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("address resolved against the wrong irk")
	}

	// a non resolvable address never resolves, without error
	ok, err = ResolveAddress(irk, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0xc1})
	if err != nil || ok {
		t.Fatal("static random address must not resolve")
	}

	if _, err := ResolveAddress(irk[:8], rpa); ReasonOf(err) != ReasonInvalidParameters {
		t.Fatal("short irk must be refused, got:", err)
	}
}
