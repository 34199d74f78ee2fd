package smp

import (
	"encoding/binary"
	"fmt"

	"github.com/parabit/blesec/keystore"
)

// Key distribution walks the negotiated masks in a fixed priority order.
// The responder distributes first; the initiator sends its own keys only
// after the responder's set is complete. Every completed key unit is
// persisted individually so a torn session leaves a usable partial bond.

var keyDistOrder = []byte{keyDistEncKey, keyDistIdKey, keyDistSignKey, keyDistLinkKey}

var keyUnitSenders = map[byte]func(*Manager) error{
	keyDistEncKey:  (*Manager).sendEncryptionKey,
	keyDistIdKey:   (*Manager).sendIdentityKey,
	keyDistSignKey: (*Manager).sendSigningKey,
	keyDistLinkKey: (*Manager).deriveLinkKeyUnit,
}

// truncateKey reduces a 16 octet key to the negotiated size by zeroing the
// most significant octets.
func truncateKey(k []byte, size byte) []byte {
	for i := int(size); i < len(k); i++ {
		k[i] = 0
	}
	return k
}

/// addrString renders an address in the B1:B2:B3:B4:B5:B6 printable form from
// its wire order octets, tagged with the address type.
func addrString(addr []byte, addrType byte) string {
	kind := "public"
	if addrType != 0 {
		kind = "random"
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X/%s",
		addr[5], addr[4], addr[3], addr[2], addr[1], addr[0], kind)
}

// ensurePendingRec lazily creates the security record under construction.
func (m *Manager) ensurePendingRec() *keystore.SecurityRecord {
	s := m.s
	if s.pendingRec == nil {
		s.pendingRec = &keystore.SecurityRecord{
			Addr:          m.peerKey(),
			KeySize:       int(s.keySize),
			Legacy:        s.legacy,
			Authenticated: s.model.Authenticated(),
		}
	}
	return s.pendingRec
}

func (m *Manager) saveKeyUnit() error {
	if m.store == nil {
		return nil
	}
	rec := m.ensurePendingRec()
	if err := m.store.Save(rec.Addr, rec); err != nil {
		return newErrorf(ReasonUnspecified, "save security record: %v", err)
	}
	m.s.savedAny = true
	return nil
}

func (m *Manager) startKeyDistribution() error {
	s := m.s
	m.log.Debugf("key distribution: local mask %#x, peer mask %#x",
		s.localKeyMask, s.peerKeyMask)

	bonded := s.request.bonding() && s.response.bonding()

	if !s.legacy && bonded {
		// the secure connections LTK never crosses the wire; it is a key
		// unit of its own, completed the moment encryption is up
		rec := m.ensurePendingRec()
		rec.LongTermKey = truncateKey(append([]byte{}, s.longTermKey...), s.keySize)
		rec.LocalLongTermKey = append([]byte{}, rec.LongTermKey...)
		if err := m.saveKeyUnit(); err != nil {
			return err
		}
	}

	if s.role == RolePeripheral {
		if err := m.sendLocalKeys(); err != nil {
			return err
		}
	} else if s.peerKeyMask == 0 {
		if err := m.sendLocalKeys(); err != nil {
			return err
		}
	}
	return m.finishIfDone(bonded)
}

// peerKeyUnitDone marks one inbound key unit complete and persists it.
func (m *Manager) peerKeyUnitDone(bit byte) error {
	s := m.s
	if s.peerKeyMask&bit == 0 {
		return newErrorf(ReasonInvalidParameters, "unexpected key unit %#x", bit)
	}
	s.peerKeyMask &^= bit

	if err := m.saveKeyUnit(); err != nil {
		return err
	}

	if s.peerKeyMask == 0 && s.role == RoleCentral {
		if err := m.sendLocalKeys(); err != nil {
			return err
		}
	}
	return m.finishIfDone(s.request.bonding() && s.response.bonding())
}

// sendLocalKeys distributes every key unit left in the local mask, in
// priority order, persisting each as it goes out.
func (m *Manager) sendLocalKeys() error {
	s := m.s
	for _, bit := range keyDistOrder {
		if s.localKeyMask&bit == 0 {
			continue
		}
		if err := keyUnitSenders[bit](m); err != nil {
			return err
		}
		s.localKeyMask &^= bit
	}
	return nil
}

// sendEncryptionKey generates and distributes the legacy LTK with its
// EDiv/Rand identification pair.
func (m *Manager) sendEncryptionKey() error {
	s := m.s
	ltk, err := m.sessionRandom(16)
	if err != nil {
		return err
	}
	ltk = truncateKey(ltk, s.keySize)

	idb, err := m.sessionRandom(10)
	if err != nil {
		return err
	}
	ediv := binary.LittleEndian.Uint16(idb[:2])
	randVal := binary.LittleEndian.Uint64(idb[2:])

	rec := m.ensurePendingRec()
	rec.LocalLongTermKey = append([]byte{}, ltk...)
	rec.LocalEDiv = ediv
	rec.LocalRand = randVal
	if err := m.saveKeyUnit(); err != nil {
		return err
	}

	if err := m.sendPDU(buildKeyPDU(encryptionInformation, ltk)); err != nil {
		return err
	}
	return m.sendPDU(buildCentralIdentification(ediv, randVal))
}

func (m *Manager) sendIdentityKey() error {
	irk, err := m.localIRKLocked()
	if err != nil {
		return err
	}
	if err := m.saveKeyUnit(); err != nil {
		return err
	}
	if err := m.sendPDU(buildKeyPDU(identityInformation, irk)); err != nil {
		return err
	}
	s := m.s
	addr, addrType := s.localAddr, s.localAddrType
	if len(m.identityAddr) == 6 {
		addr, addrType = m.identityAddr, m.identityAddrType
	}
	return m.sendPDU(buildIdentityAddr(addrType, addr))
}

func (m *Manager) sendSigningKey() error {
	csrk, err := m.localCSRKLocked()
	if err != nil {
		return err
	}
	rec := m.ensurePendingRec()
	rec.LocalSigningKey = append([]byte{}, csrk...)
	rec.LocalSignCounter = 0
	if err := m.saveKeyUnit(); err != nil {
		return err
	}
	return m.sendPDU(buildKeyPDU(signingInformation, csrk))
}

// deriveLinkKeyUnit computes the BR/EDR link key from the LE LTK. There is
// no PDU; both sides derive it independently. A derivation problem costs
// only the cross transport bridge, never the LE bond.
func (m *Manager) deriveLinkKeyUnit() error {
	s := m.s
	ct2 := s.request.ct2() && s.response.ct2()
	lk, err := DeriveLinkKeyFromLTK(s.longTermKey, ct2)
	if err != nil {
		m.log.Errorf("link key derivation: %v", err)
		return nil
	}
	rec := m.ensurePendingRec()
	rec.LinkKey = lk
	return m.saveKeyUnit()
}

// finishIfDone completes the session once both masks drained: flush the
// transport so the peer holds everything we sent, then report the bond.
func (m *Manager) finishIfDone(bonded bool) error {
	s := m.s
	if s.localKeyMask != 0 || s.peerKeyMask != 0 {
		return nil
	}

	if m.transport != nil {
		if err := m.transport.Flush(); err != nil {
			return newErrorf(ReasonUnspecified, "flush: %v", err)
		}
	}
	m.transition(StateBondPending)

	if bonded && !s.savedAny {
		// a bond with empty masks still keeps the session LTK
		rec := m.ensurePendingRec()
		key := s.longTermKey
		if s.legacy {
			key = s.shortTermKey
		}
		rec.LongTermKey = truncateKey(append([]byte{}, key...), s.keySize)
		if err := m.saveKeyUnit(); err != nil {
			return err
		}
	}

	m.succeed(s.pendingRec)
	return nil
}

// startLinkEncryption has the central encrypt the link with the phase 2 key.
func (m *Manager) startLinkEncryption() error {
	s := m.s
	key := s.longTermKey
	legacy := s.legacy
	if legacy {
		key = s.shortTermKey
	} else {
		key = truncateKey(append([]byte{}, key...), s.keySize)
	}

	if m.transport == nil {
		return newError(ReasonUnspecified, "no transport")
	}
	rec := &keystore.SecurityRecord{
		Addr:          m.peerKey(),
		LongTermKey:   key,
		KeySize:       int(s.keySize),
		Legacy:        legacy,
		Authenticated: s.model.Authenticated(),
	}
	if err := m.transport.StartEncryption(rec); err != nil {
		return newErrorf(ReasonEncryptionFailed, "start encryption: %v", err)
	}
	m.transition(StateEncryptionPending)
	return nil
}
