package smp

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/parabit/blesec/smpcrypt"
)

// Legacy pairing phase 2: TK selection, the c1 confirm exchange and the s1
// short term key.

func legacyPasskeyTK(passkey uint32) []byte {
	tk := make([]byte, 16)
	binary.LittleEndian.PutUint32(tk[:4], passkey)
	return tk
}

// legacyEnterPhase2 resolves the temporary key for the association model and
// starts the confirm exchange as soon as it is available.
func (m *Manager) legacyEnterPhase2() error {
	s := m.s
	switch s.model {
	case ModelJustWorks:
		s.tempKey = make([]byte, 16)
		return m.legacyTKReady()
	case ModelPasskeyEntry:
		m.acquireUserInput()
		if s.passkeySet {
			s.tempKey = legacyPasskeyTK(s.passkey)
			return m.legacyTKReady()
		}
		m.transition(StateWaitAppDecision)
		return nil
	case ModelOob:
		if len(s.oobData) > 0 {
			s.tempKey = append([]byte{}, s.oobData...)
			return m.legacyTKReady()
		}
		m.transition(StateWaitAppDecision)
		m.requestOOB()
		return nil
	}
	return newErrorf(ReasonAuthenticationRequirements, "no legacy model resolved")
}

// legacyTKReady runs once the TK exists. The initiator commits first; the
// responder may already be holding the initiator's confirm value.
func (m *Manager) legacyTKReady() error {
	s := m.s

	r, err := m.sessionRandom(16)
	if err != nil {
		return err
	}
	s.localRandom = r

	conf, err := m.legacyConfirmValue(r)
	if err != nil {
		return err
	}
	s.localConfirm = conf

	if s.role == RoleCentral {
		if err := m.sendPDU(append([]byte{pairingConfirm}, conf...)); err != nil {
			return err
		}
		m.transition(StateWaitConfirm)
		return nil
	}

	if s.peerConfirm != nil {
		if err := m.sendPDU(append([]byte{pairingConfirm}, conf...)); err != nil {
			return err
		}
		m.transition(StateWaitNonce)
		return nil
	}
	m.transition(StateWaitConfirm)
	return nil
}

// legacyConfirmValue computes c1 over the exchanged feature PDUs and the
// connection addresses for the given pairing random.
func (m *Manager) legacyConfirmValue(r []byte) ([]byte, error) {
	s := m.s
	preq := buildPairingReq(s.request)
	pres := buildPairingRsp(s.response)
	a, b := s.addrA(), s.addrB()

	conf, err := smpcrypt.C1(s.tempKey, r, preq, pres, a[6], b[6], a[:6], b[:6])
	if err != nil {
		return nil, newErrorf(ReasonUnspecified, "c1: %v", err)
	}
	return conf, nil
}

func (m *Manager) legacyOnConfirm() error {
	s := m.s
	if s.role == RoleCentral {
		// responder committed, reveal Mrand
		if err := m.sendPDU(append([]byte{pairingRandom}, s.localRandom...)); err != nil {
			return err
		}
		m.transition(StateWaitNonce)
		return nil
	}

	if s.localConfirm == nil {
		// TK still pending on the user; reply once it lands
		return nil
	}
	if err := m.sendPDU(append([]byte{pairingConfirm}, s.localConfirm...)); err != nil {
		return err
	}
	m.transition(StateWaitNonce)
	return nil
}

func (m *Manager) legacyOnRandom() error {
	s := m.s

	calc, err := m.legacyConfirmValue(s.peerRandom)
	if err != nil {
		return err
	}
	if !bytes.Equal(calc, s.peerConfirm) {
		return newErrorf(ReasonConfirmValueFailed, "confirm mismatch, exp %v got %v",
			hex.EncodeToString(s.peerConfirm), hex.EncodeToString(calc))
	}

	if s.role == RoleCentral {
		// STK = s1(TK, Srand, Mrand)
		stk, err := smpcrypt.S1(s.tempKey, s.peerRandom, s.localRandom)
		if err != nil {
			return newErrorf(ReasonUnspecified, "s1: %v", err)
		}
		s.shortTermKey = truncateKey(stk, s.keySize)
		return m.startLinkEncryption()
	}

	if err := m.sendPDU(append([]byte{pairingRandom}, s.localRandom...)); err != nil {
		return err
	}
	stk, err := smpcrypt.S1(s.tempKey, s.localRandom, s.peerRandom)
	if err != nil {
		return newErrorf(ReasonUnspecified, "s1: %v", err)
	}
	s.shortTermKey = truncateKey(stk, s.keySize)
	m.transition(StateEncryptionPending)
	return nil
}
