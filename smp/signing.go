package smp

import (
	"bytes"
	"encoding/binary"

	"github.com/parabit/blesec/smpcrypt"
)

// Data signing for unencrypted writes: an 8 octet CMAC over the message and
// a monotonically increasing sign counter. The counters live in the peer's
// security record so replay protection survives restarts.

const signatureLength = 12

func signMAC(csrk, msg []byte, counter uint32) ([]byte, error) {
	in := make([]byte, 0, len(msg)+4)
	in = append(in, msg...)
	in = binary.LittleEndian.AppendUint32(in, counter)

	mac, err := smpcrypt.AesCMAC(csrk, in)
	if err != nil {
		return nil, err
	}
	return mac[:8], nil
}

// SignMessage signs msg with the local CSRK distributed to the current peer
// and advances the persisted local sign counter. The 12 octet signature is
// the counter followed by the MAC.
func (m *Manager) SignMessage(msg []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil, newError(ReasonUnspecified, "no record store")
	}
	rec, err := m.store.Find(m.peerKey())
	if err != nil {
		return nil, newErrorf(ReasonUnspecified, "signing record: %v", err)
	}
	if len(rec.LocalSigningKey) != 16 {
		return nil, newError(ReasonUnspecified, "no local signing key for peer")
	}

	counter := rec.LocalSignCounter
	mac, err := signMAC(rec.LocalSigningKey, msg, counter)
	if err != nil {
		return nil, newErrorf(ReasonUnspecified, "sign: %v", err)
	}

	rec.LocalSignCounter++
	if err := m.store.Save(rec.Addr, rec); err != nil {
		return nil, newErrorf(ReasonUnspecified, "persist sign counter: %v", err)
	}

	sig := make([]byte, 0, signatureLength)
	sig = binary.LittleEndian.AppendUint32(sig, counter)
	return append(sig, mac...), nil
}

// VerifySignedMessage checks a peer signature and its counter. A counter
// behind the persisted watermark is a replay and is rejected before any MAC
// work; an accepted signature advances the watermark.
func (m *Manager) VerifySignedMessage(msg, sig []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(sig) != signatureLength {
		return newError(ReasonInvalidParameters, "signature must be 12 octets")
	}
	if m.store == nil {
		return newError(ReasonUnspecified, "no record store")
	}
	rec, err := m.store.Find(m.peerKey())
	if err != nil {
		return newErrorf(ReasonUnspecified, "signing record: %v", err)
	}
	if len(rec.SigningKey) != 16 {
		return newError(ReasonUnspecified, "no signing key from peer")
	}

	counter := binary.LittleEndian.Uint32(sig[:4])
	if counter < rec.PeerSignCounter {
		return newErrorf(ReasonAuthenticationFailure,
			"sign counter replay: got %d, watermark %d", counter, rec.PeerSignCounter)
	}

	mac, err := signMAC(rec.SigningKey, msg, counter)
	if err != nil {
		return newErrorf(ReasonUnspecified, "verify: %v", err)
	}
	if !bytes.Equal(mac, sig[4:]) {
		return newError(ReasonAuthenticationFailure, "signature mismatch")
	}

	rec.PeerSignCounter = counter + 1
	if err := m.store.Save(rec.Addr, rec); err != nil {
		return newErrorf(ReasonUnspecified, "persist sign counter: %v", err)
	}
	return nil
}
