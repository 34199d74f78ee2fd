package smp

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/parabit/blesec/smpcrypt"
)

// Secure Connections phase 2: public key exchange, the per-model
// commitment/nonce rounds, and the DHKey check.

func (m *Manager) sendPublicKey() error {
	s := m.s
	if s.localKeys == nil {
		keys, err := smpcrypt.GenerateKeys(randReader{m})
		if err != nil {
			return newErrorf(ReasonUnspecified, "generate ecdh keys: %v", err)
		}
		s.localKeys = keys
	}

	k := smpcrypt.MarshalPublicKeyXY(s.localKeys.Public())
	return m.sendPDU(append([]byte{pairingPublicKey}, k...))
}

// randReader adapts the Rand service to io.Reader for key generation.
type randReader struct{ m *Manager }

func (r randReader) Read(p []byte) (int, error) {
	b, err := r.m.sessionRandom(len(p))
	if err != nil {
		return 0, err
	}
	copy(p, b)
	return len(p), nil
}

func (m *Manager) secureOnPublicKey(in pdu) error {
	s := m.s

	if s.localKeys == nil {
		keys, err := smpcrypt.GenerateKeys(randReader{m})
		if err != nil {
			return newErrorf(ReasonUnspecified, "generate ecdh keys: %v", err)
		}
		s.localKeys = keys
	}

	// a reflected public key is an attack, not a coincidence
	// CVE-2020-26558
	local := smpcrypt.MarshalPublicKeyXY(s.localKeys.Public())
	if bytes.Equal(local, in) {
		return newError(ReasonAuthenticationFailure,
			"remote public key cannot match local public key")
	}

	pk, ok := smpcrypt.UnmarshalPublicKey(in)
	if !ok {
		return newError(ReasonAuthenticationFailure, "remote public key not on curve")
	}
	s.peerPubKey = pk

	if s.role == RoleCentral {
		return m.centralAfterKeyExchange()
	}
	return m.peripheralAfterKeyExchange()
}

func (m *Manager) centralAfterKeyExchange() error {
	s := m.s
	switch s.model {
	case ModelJustWorks, ModelNumericComparison:
		// responder commits first
		m.transition(StateWaitConfirm)
	case ModelPasskeyEntry:
		if !s.passkeySet {
			m.transition(StateWaitAppDecision)
			return nil
		}
		return m.startPasskeyRound()
	case ModelOob:
		// commitments traveled out of band; reveal nonces directly
		r, err := m.sessionRandom(16)
		if err != nil {
			return err
		}
		s.localRandom = r
		if err := m.sendPDU(append([]byte{pairingRandom}, r...)); err != nil {
			return err
		}
		m.transition(StateWaitNonce)
	}
	return nil
}

func (m *Manager) peripheralAfterKeyExchange() error {
	s := m.s
	if err := m.sendPublicKey(); err != nil {
		return err
	}

	switch s.model {
	case ModelJustWorks, ModelNumericComparison:
		return m.sendResponderCommit(0)
	case ModelPasskeyEntry:
		if !s.passkeySet {
			m.transition(StateWaitAppDecision)
			return nil
		}
		if s.peerConfirm != nil {
			// initiator's first round commit arrived while keys were going out
			return m.respondPasskeyCommit()
		}
		m.transition(StateWaitConfirm)
	case ModelOob:
		if len(s.oobData) != 16 {
			// the OOBRequest is already outstanding; phase 2 resumes once
			// the data arrives
			m.transition(StateWaitAppDecision)
			return nil
		}
		m.transition(StateWaitNonce)
	}
	return nil
}

// sendResponderCommit sends Cb = f4(PKbx, PKax, Nb, z) and starts waiting
// for the initiator nonce.
func (m *Manager) sendResponderCommit(z byte) error {
	s := m.s
	r, err := m.sessionRandom(16)
	if err != nil {
		return err
	}
	s.localRandom = r

	kbx := smpcrypt.MarshalPublicKeyX(s.localKeys.Public())
	kax := smpcrypt.MarshalPublicKeyX(s.peerPubKey)
	conf, err := smpcrypt.F4(kbx, kax, r, z)
	if err != nil {
		return newErrorf(ReasonUnspecified, "f4: %v", err)
	}
	s.localConfirm = conf

	if err := m.sendPDU(append([]byte{pairingConfirm}, conf...)); err != nil {
		return err
	}
	m.transition(StateWaitNonce)
	return nil
}

func (m *Manager) secureOnConfirm() error {
	s := m.s
	if s.role == RoleCentral {
		switch s.model {
		case ModelJustWorks, ModelNumericComparison:
			// got Cb, reveal Na
			r, err := m.sessionRandom(16)
			if err != nil {
				return err
			}
			s.localRandom = r
			if err := m.sendPDU(append([]byte{pairingRandom}, r...)); err != nil {
				return err
			}
			m.transition(StateWaitNonce)
			return nil
		case ModelPasskeyEntry:
			// got Cbi, reveal Nai
			if err := m.sendPDU(append([]byte{pairingRandom}, s.localRandom...)); err != nil {
				return err
			}
			m.transition(StateWaitNonce)
			return nil
		}
		return newError(ReasonInvalidParameters, "unexpected confirm")
	}

	// peripheral: only the passkey rounds deliver initiator commits
	if s.model != ModelPasskeyEntry {
		return newError(ReasonInvalidParameters, "unexpected confirm")
	}
	if !s.passkeySet {
		// hold Cai until the user finishes typing
		return nil
	}
	return m.respondPasskeyCommit()
}

func (m *Manager) secureOnRandom() error {
	s := m.s
	if s.model == ModelPasskeyEntry {
		return m.passkeyOnRandom()
	}

	if s.role == RoleCentral {
		if s.model != ModelOob {
			if err := m.checkPeerCommit(0); err != nil {
				return err
			}
		}
		if s.model == ModelNumericComparison {
			return m.showComparisonValue()
		}
		return m.centralFinishPhase2()
	}

	// peripheral: initiator nonce arrived, reveal ours
	if s.model == ModelOob && len(s.oobData) != 16 {
		// nonce before the out of band data; hold it for oobReady
		return nil
	}
	if s.localRandom == nil {
		r, err := m.sessionRandom(16)
		if err != nil {
			return err
		}
		s.localRandom = r
	}
	if err := m.sendPDU(append([]byte{pairingRandom}, s.localRandom...)); err != nil {
		return err
	}

	if err := m.computeMacLtk(); err != nil {
		return err
	}

	if s.model == ModelNumericComparison {
		if err := m.showComparisonValue(); err != nil {
			return err
		}
		m.transition(StateDhKeyCheckPending)
		return nil
	}

	s.userConfirmed = true
	m.transition(StateDhKeyCheckPending)
	return nil
}

// checkPeerCommit verifies the stored peer commitment against the revealed
// peer nonce.
func (m *Manager) checkPeerCommit(z byte) error {
	s := m.s
	kpx := smpcrypt.MarshalPublicKeyX(s.peerPubKey)
	klx := smpcrypt.MarshalPublicKeyX(s.localKeys.Public())

	calc, err := smpcrypt.F4(kpx, klx, s.peerRandom, z)
	if err != nil {
		return newErrorf(ReasonUnspecified, "f4: %v", err)
	}
	if !bytes.Equal(calc, s.peerConfirm) {
		return newErrorf(ReasonConfirmValueFailed, "confirm mismatch, exp %v got %v",
			hex.EncodeToString(s.peerConfirm), hex.EncodeToString(calc))
	}
	return nil
}

func (m *Manager) showComparisonValue() error {
	s := m.s

	var u, v []byte
	if s.role == RoleCentral {
		u = smpcrypt.MarshalPublicKeyX(s.localKeys.Public())
		v = smpcrypt.MarshalPublicKeyX(s.peerPubKey)
	} else {
		u = smpcrypt.MarshalPublicKeyX(s.peerPubKey)
		v = smpcrypt.MarshalPublicKeyX(s.localKeys.Public())
	}

	na, nb := s.nonceA(), s.nonceB()
	val, err := smpcrypt.G2(u, v, na, nb)
	if err != nil {
		return newErrorf(ReasonUnspecified, "g2: %v", err)
	}

	d := m.delegate
	m.enqueue(func() {
		if d != nil {
			d.NumericComparison(val)
		}
	})

	if s.role == RoleCentral {
		m.transition(StateWaitAppDecision)
	}
	return nil
}

// comparisonConfirmed continues after the user accepted the numeric
// comparison value.
func (m *Manager) comparisonConfirmed() error {
	s := m.s
	if s.role == RoleCentral {
		return m.centralFinishPhase2()
	}
	return m.peripheralMaybeReply()
}

// passkeyReady continues after the passkey became available, wherever the
// exchange had advanced to in the meantime.
func (m *Manager) passkeyReady() error {
	s := m.s
	if s.legacy {
		s.tempKey = legacyPasskeyTK(s.passkey)
		return m.legacyTKReady()
	}

	if s.peerPubKey == nil {
		// still exchanging public keys; the rounds start afterwards
		return nil
	}
	if s.role == RoleCentral {
		return m.startPasskeyRound()
	}
	if s.peerConfirm != nil {
		return m.respondPasskeyCommit()
	}
	m.transition(StateWaitConfirm)
	return nil
}

// oobReady continues once the out of band data is present.
func (m *Manager) oobReady() error {
	s := m.s
	if s.legacy {
		s.tempKey = append([]byte{}, s.oobData...)
		return m.legacyTKReady()
	}

	// central entered WaitAppDecision right after the feature exchange
	if s.role == RoleCentral && s.peerPubKey == nil {
		if err := m.sendPublicKey(); err != nil {
			return err
		}
		m.transition(StatePublicKeyExchange)
		return nil
	}

	if s.role == RolePeripheral && s.peerPubKey != nil {
		if s.peerRandom != nil {
			// the initiator nonce was held while the user supplied the data
			return m.secureOnRandom()
		}
		m.transition(StateWaitNonce)
	}
	return nil
}

func (m *Manager) passkeyZ() byte {
	s := m.s
	bit := (s.passkey >> uint(s.passkeyIteration)) & 1
	return 0x80 | byte(bit)
}

// startPasskeyRound has the central commit to the current passkey bit.
func (m *Manager) startPasskeyRound() error {
	s := m.s
	r, err := m.sessionRandom(16)
	if err != nil {
		return err
	}
	s.localRandom = r
	s.peerConfirm = nil

	kax := smpcrypt.MarshalPublicKeyX(s.localKeys.Public())
	kbx := smpcrypt.MarshalPublicKeyX(s.peerPubKey)
	conf, err := smpcrypt.F4(kax, kbx, r, m.passkeyZ())
	if err != nil {
		return newErrorf(ReasonUnspecified, "f4: %v", err)
	}
	s.localConfirm = conf

	if err := m.sendPDU(append([]byte{pairingConfirm}, conf...)); err != nil {
		return err
	}
	m.transition(StateWaitConfirm)
	return nil
}

// respondPasskeyCommit has the peripheral answer the initiator commit for
// the current round.
func (m *Manager) respondPasskeyCommit() error {
	return m.sendResponderCommitPasskey()
}

func (m *Manager) sendResponderCommitPasskey() error {
	s := m.s
	r, err := m.sessionRandom(16)
	if err != nil {
		return err
	}
	s.localRandom = r

	kbx := smpcrypt.MarshalPublicKeyX(s.localKeys.Public())
	kax := smpcrypt.MarshalPublicKeyX(s.peerPubKey)
	conf, err := smpcrypt.F4(kbx, kax, r, m.passkeyZ())
	if err != nil {
		return newErrorf(ReasonUnspecified, "f4: %v", err)
	}
	s.localConfirm = conf

	if err := m.sendPDU(append([]byte{pairingConfirm}, conf...)); err != nil {
		return err
	}
	m.transition(StateWaitNonce)
	return nil
}

func (m *Manager) passkeyOnRandom() error {
	s := m.s

	if err := m.checkPeerCommit(m.passkeyZ()); err != nil {
		return err
	}

	if s.role == RoleCentral {
		s.passkeyIteration++
		if s.passkeyIteration < passkeyIterationCount {
			return m.startPasskeyRound()
		}
		return m.centralFinishPhase2()
	}

	// peripheral reveals its nonce for the round
	if err := m.sendPDU(append([]byte{pairingRandom}, s.localRandom...)); err != nil {
		return err
	}
	s.passkeyIteration++
	if s.passkeyIteration < passkeyIterationCount {
		s.peerConfirm = nil
		m.transition(StateWaitConfirm)
		return nil
	}

	if err := m.computeMacLtk(); err != nil {
		return err
	}
	s.userConfirmed = true
	m.transition(StateDhKeyCheckPending)
	return nil
}

// nonceA/nonceB are the initiator and responder nonces of the final round.
func (s *session) nonceA() []byte {
	if s.role == RoleCentral {
		return s.localRandom
	}
	return s.peerRandom
}

func (s *session) nonceB() []byte {
	if s.role == RoleCentral {
		return s.peerRandom
	}
	return s.localRandom
}

// computeMacLtk runs the DH computation and f5. It is the point of no
// return for phase 2: after it both sides hold MacKey and LTK.
func (m *Manager) computeMacLtk() error {
	s := m.s

	dh, err := s.localKeys.GenerateSecret(s.peerPubKey)
	if err != nil {
		return newErrorf(ReasonDHKeyCheckFailed, "dh key: %v", err)
	}
	s.dhKey = dh

	mk, ltk, err := smpcrypt.F5(dh, s.nonceA(), s.nonceB(), s.addrA(), s.addrB())
	if err != nil {
		return newErrorf(ReasonUnspecified, "f5: %v", err)
	}
	s.macKey = mk
	s.longTermKey = ltk
	return nil
}

// checkR is the r value folded into f6: zero for just works and numeric
// comparison, the passkey for passkey entry, the OOB data otherwise.
func (s *session) checkR() []byte {
	switch s.model {
	case ModelPasskeyEntry:
		r := make([]byte, 16)
		binary.LittleEndian.PutUint32(r[:4], s.passkey)
		return r
	case ModelOob:
		if len(s.oobData) == 16 {
			return append([]byte{}, s.oobData...)
		}
	}
	return make([]byte, 16)
}

// centralFinishPhase2 derives the keys and sends Ea.
func (m *Manager) centralFinishPhase2() error {
	s := m.s
	if err := m.computeMacLtk(); err != nil {
		return err
	}

	ea, err := smpcrypt.F6(s.macKey, s.nonceA(), s.nonceB(), s.checkR(),
		s.ioCapOctetsA(), s.addrA(), s.addrB())
	if err != nil {
		return newErrorf(ReasonUnspecified, "f6: %v", err)
	}
	s.localDHKeyCheckSent = true

	if err := m.sendPDU(append([]byte{pairingDHKeyCheck}, ea...)); err != nil {
		return err
	}
	m.transition(StateDhKeyCheckPending)
	return nil
}

func (m *Manager) secureOnDHKeyCheck(in pdu) error {
	s := m.s
	s.peerDHKeyCheck = append([]byte{}, in...)

	if s.role == RoleCentral {
		// Eb = f6(MacKey, Nb, Na, ra, IOcapB, B, A)
		exp, err := smpcrypt.F6(s.macKey, s.nonceB(), s.nonceA(), s.checkR(),
			s.ioCapOctetsB(), s.addrB(), s.addrA())
		if err != nil {
			return newErrorf(ReasonUnspecified, "f6: %v", err)
		}
		if !bytes.Equal(exp, in) {
			return newError(ReasonDHKeyCheckFailed, "dhkey check mismatch")
		}
		m.log.Debugf("dhkey check: ok")
		return m.startLinkEncryption()
	}

	return m.peripheralMaybeReply()
}

// peripheralMaybeReply completes the responder side of the DHKey check once
// both the peer check value and, for numeric comparison, the user's consent
// are in.
func (m *Manager) peripheralMaybeReply() error {
	s := m.s
	if s.peerDHKeyCheck == nil || (s.model == ModelNumericComparison && !s.userConfirmed) {
		return nil
	}

	// Ea = f6(MacKey, Na, Nb, rb, IOcapA, A, B)
	exp, err := smpcrypt.F6(s.macKey, s.nonceA(), s.nonceB(), s.checkR(),
		s.ioCapOctetsA(), s.addrA(), s.addrB())
	if err != nil {
		return newErrorf(ReasonUnspecified, "f6: %v", err)
	}
	if !bytes.Equal(exp, s.peerDHKeyCheck) {
		return newError(ReasonDHKeyCheckFailed, "dhkey check mismatch")
	}

	eb, err := smpcrypt.F6(s.macKey, s.nonceB(), s.nonceA(), s.checkR(),
		s.ioCapOctetsB(), s.addrB(), s.addrA())
	if err != nil {
		return newErrorf(ReasonUnspecified, "f6: %v", err)
	}
	s.localDHKeyCheckSent = true
	if err := m.sendPDU(append([]byte{pairingDHKeyCheck}, eb...)); err != nil {
		return err
	}

	// the central starts encryption with the new LTK
	m.transition(StateEncryptionPending)
	return nil
}
