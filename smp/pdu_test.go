package smp

import (
	"bytes"
	"testing"
)

func Test_FeatureExchangeRoundTrip(t *testing.T) {
	c := Config{
		IoCap:       IoCapKeyboardDisplay,
		OobFlag:     oobDataPresent,
		AuthReq:     AuthReqBond | AuthReqMITM | AuthReqSC | AuthReqCT2,
		MaxKeySize:  10,
		InitKeyDist: keyDistEncKey | keyDistSignKey,
		RespKeyDist: keyDistIdKey | keyDistLinkKey,
	}

	req := buildPairingReq(c)
	if len(req) != 7 || req[0] != pairingRequest {
		t.Fatalf("malformed pairing request %x", req)
	}

	got, err := parseFeatureExchange(req[1:])
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Fatalf("got %+v, want %+v", got, c)
	}

	rsp := buildPairingRsp(c)
	if rsp[0] != pairingResponse || !bytes.Equal(rsp[1:], req[1:]) {
		t.Fatal("request and response must share the feature layout")
	}
}

func Test_FeatureExchangeTooShort(t *testing.T) {
	if _, err := parseFeatureExchange(pdu{0x01, 0x00, 0x01}); ReasonOf(err) != ReasonInvalidParameters {
		t.Fatal("short feature pdu must be refused, got:", err)
	}
}

func Test_BuildCentralIdentification(t *testing.T) {
	b := buildCentralIdentification(0x1234, 0x0102030405060708)
	want := []byte{centralIdentification,
		0x34, 0x12,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytes.Equal(b, want) {
		t.Fatalf("got %x, want %x", b, want)
	}
}

func Test_BuildIdentityAddr(t *testing.T) {
	addr := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	b := buildIdentityAddr(0x01, addr)
	if b[0] != identityAddrInformation || b[1] != 0x01 || !bytes.Equal(b[2:], addr) {
		t.Fatalf("got %x", b)
	}
}

func Test_SetLocalIdentity(t *testing.T) {
	m := NewManager(DefaultConfig(), DefaultPolicy(), newMemStore())

	if err := m.SetLocalIdentity(make([]byte, 8), make([]byte, 6), 0); ReasonOf(err) != ReasonInvalidParameters {
		t.Fatal("short irk accepted")
	}
	if err := m.SetLocalIdentity(make([]byte, 16), make([]byte, 4), 0); ReasonOf(err) != ReasonInvalidParameters {
		t.Fatal("short identity address accepted")
	}

	irk := make([]byte, 16)
	irk[0] = 0x42
	if err := m.SetLocalIdentity(irk, make([]byte, 6), 0); err != nil {
		t.Fatal(err)
	}
	got, err := m.LocalIRK()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, irk) {
		t.Fatal("installed irk not returned")
	}
}

func Test_LocalIRKGeneratedOnce(t *testing.T) {
	m := NewManager(DefaultConfig(), DefaultPolicy(), newMemStore())

	a, err := m.LocalIRK()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 16 {
		t.Fatal("generated irk must be 16 octets")
	}
	b, err := m.LocalIRK()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("irk must be stable across calls")
	}
}
