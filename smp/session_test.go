package smp

import "testing"

func Test_ZeroSecretsWipesBackingArrays(t *testing.T) {
	mk := func(v byte) []byte {
		b := make([]byte, 16)
		for i := range b {
			b[i] = v
		}
		return b
	}

	s := newSession()
	s.tempKey = mk(0x11)
	s.shortTermKey = mk(0x22)
	s.longTermKey = mk(0x33)
	s.dhKey = mk(0x44)
	s.macKey = mk(0x55)
	s.localRandom = mk(0x66)
	s.peerRandom = mk(0x77)
	s.oobData = mk(0x88)
	s.passkey = 123456
	s.passkeySet = true

	// hold onto the backing arrays: wiping the session must not leave the
	// key material alive in previously shared slices
	refs := [][]byte{
		s.tempKey, s.shortTermKey, s.longTermKey,
		s.dhKey, s.macKey, s.localRandom, s.peerRandom, s.oobData,
	}

	s.zeroSecrets()

	for i, b := range refs {
		for _, v := range b {
			if v != 0 {
				t.Fatalf("secret %d not wiped", i)
			}
		}
	}
	if s.tempKey != nil || s.dhKey != nil || s.oobData != nil {
		t.Fatal("secret slices must be dropped")
	}
	if s.passkey != 0 || s.passkeySet {
		t.Fatal("passkey must be cleared")
	}
}

func Test_SecretsGoneAfterFailedSession(t *testing.T) {
	d := newDuo(t, scCfg(IoCapNoInputNoOutput, false), scCfg(IoCapNoInputNoOutput, false), DefaultPolicy())

	if err := d.central.StartInitiator(); err != nil {
		t.Fatal("start:", err)
	}

	// run up to the public key exchange, then kill the session mid phase 2
	req, _ := d.tc.pop()
	d.peripheral.HandlePDU(req)
	rsp, _ := d.tp.pop()
	d.central.HandlePDU(rsp)

	d.central.mu.Lock()
	if d.central.s.localKeys == nil {
		d.central.mu.Unlock()
		t.Fatal("expected an ecdh key pair mid session")
	}
	d.central.mu.Unlock()

	d.central.Cancel()

	d.central.mu.Lock()
	defer d.central.mu.Unlock()
	s := d.central.s
	if s.localKeys != nil || s.dhKey != nil || s.macKey != nil ||
		s.tempKey != nil || s.shortTermKey != nil || s.longTermKey != nil ||
		s.localRandom != nil || s.peerRandom != nil {
		t.Fatal("session still holds key material after failure")
	}
	if s.state != StateIdle {
		t.Fatal("session must return to idle, got:", s.state)
	}
}

func Test_AddrOrderFollowsRole(t *testing.T) {
	s := newSession()
	s.localAddr = testAddrA
	s.localAddrType = 0x00
	s.peerAddr = testAddrB
	s.peerAddrType = 0x01

	s.role = RoleCentral
	a, b := s.addrA(), s.addrB()
	if a[6] != 0x00 || b[6] != 0x01 {
		t.Fatal("central: initiator address must be the local one")
	}
	if a[0] != testAddrA[0] || b[0] != testAddrB[0] {
		t.Fatal("central: address octets misassigned")
	}

	s.role = RolePeripheral
	a, b = s.addrA(), s.addrB()
	if a[0] != testAddrB[0] || b[0] != testAddrA[0] {
		t.Fatal("peripheral: initiator address must be the peer's")
	}
}
