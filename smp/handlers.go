package smp

// negotiate runs once both feature sets are known: key size, legacy vs
// secure connections, association model and the key distribution masks.
func (m *Manager) negotiate() error {
	s := m.s
	req, rsp := s.request, s.response

	if req.MaxKeySize > maxKeySize || req.MaxKeySize == 0 ||
		rsp.MaxKeySize > maxKeySize || rsp.MaxKeySize == 0 {
		return newErrorf(ReasonInvalidParameters,
			"encryption key size out of range: req %d rsp %d", req.MaxKeySize, rsp.MaxKeySize)
	}

	// responder masks must be a subset of what the initiator offered
	if rsp.InitKeyDist&^req.InitKeyDist != 0 || rsp.RespKeyDist&^req.RespKeyDist != 0 {
		return newError(ReasonInvalidParameters, "responder widened key distribution masks")
	}

	ks := req.MaxKeySize
	if rsp.MaxKeySize < ks {
		ks = rsp.MaxKeySize
	}
	if ks < m.pol.keySizeFloor() {
		return newErrorf(ReasonEncryptionKeySize,
			"negotiated key size %d below floor %d", ks, m.pol.keySizeFloor())
	}
	s.keySize = ks

	s.legacy = !(req.secureConnections() && rsp.secureConnections())

	model, serr := selectModel(s.legacy, req, rsp, m.pol)
	if serr != nil {
		return serr
	}
	if err := checkModelPolicy(model, s.legacy, m.pol); err != nil {
		return err
	}
	s.model = model
	s.modelFixed = true
	m.log.Infof("association model '%v' (legacy=%v, key size %d)", model, s.legacy, ks)

	initMask := rsp.InitKeyDist
	respMask := rsp.RespKeyDist
	if !(req.bonding() && rsp.bonding()) {
		initMask, respMask = 0, 0
	}
	if s.legacy {
		// link key derivation needs secure connections on both sides
		initMask &^= keyDistLinkKey
		respMask &^= keyDistLinkKey
	} else {
		// the secure connections LTK comes out of f5, nothing crosses the wire
		initMask &^= keyDistEncKey
		respMask &^= keyDistEncKey
	}

	if s.role == RoleCentral {
		s.localKeyMask, s.peerKeyMask = initMask, respMask
	} else {
		s.localKeyMask, s.peerKeyMask = respMask, initMask
	}

	return nil
}

func smpOnPairingRequest(m *Manager, in pdu) error {
	req, err := parseFeatureExchange(in)
	if err != nil {
		return err
	}

	if err := m.checkAttempts(); err != nil {
		return err
	}

	s := m.s
	s.role = RolePeripheral
	s.request = req

	rsp := m.cfg
	rsp.InitKeyDist &= req.InitKeyDist
	rsp.RespKeyDist &= req.RespKeyDist
	rsp.OobFlag = oobDataNotPresent
	if len(s.oobData) > 0 {
		rsp.OobFlag = oobDataPresent
	}
	s.response = rsp

	if err := m.negotiate(); err != nil {
		return err
	}

	if err := m.sendPDU(buildPairingRsp(rsp)); err != nil {
		return err
	}

	if s.legacy {
		return m.legacyEnterPhase2()
	}

	// wait for the initiator's public key
	m.transition(StatePublicKeyExchange)
	m.acquireUserInput()
	return nil
}

func smpOnPairingResponse(m *Manager, in pdu) error {
	rsp, err := parseFeatureExchange(in)
	if err != nil {
		return err
	}

	s := m.s
	s.response = rsp

	if err := m.negotiate(); err != nil {
		return err
	}

	if s.model == ModelOob && len(s.oobData) == 0 {
		// the decision to advertise OOB was ours or the peer's; either way
		// the data has to exist before phase 2 can run
		m.transition(StateWaitAppDecision)
		m.requestOOB()
		return nil
	}

	if s.legacy {
		return m.legacyEnterPhase2()
	}

	if err := m.sendPublicKey(); err != nil {
		return err
	}
	m.transition(StatePublicKeyExchange)
	m.acquireUserInput()
	return nil
}

// acquireUserInput kicks off the passkey display/entry for the resolved
// model ahead of the commitment rounds.
func (m *Manager) acquireUserInput() {
	s := m.s
	switch s.model {
	case ModelPasskeyEntry:
		if s.passkeySet {
			return
		}
		if passkeyLocalDisplays(s.role, s.localCfg().IoCap, s.peerCfg().IoCap) {
			pk, err := m.generatePasskey()
			if err != nil {
				m.failFromError(err)
				return
			}
			s.passkey = pk
			s.passkeySet = true
			d := m.delegate
			m.enqueue(func() {
				if d != nil {
					d.PasskeyDisplay(pk)
				}
			})
			return
		}
		d := m.delegate
		m.enqueue(func() {
			if d != nil {
				d.PasskeyRequest()
			}
		})
	case ModelOob:
		if len(s.oobData) == 0 {
			m.requestOOB()
		}
	}
}

func (m *Manager) requestOOB() {
	d := m.delegate
	m.enqueue(func() {
		if d != nil {
			d.OOBRequest()
		}
	})
}

func (m *Manager) generatePasskey() (uint32, error) {
	b, err := m.sessionRandom(4)
	if err != nil {
		return 0, err
	}
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return v % 1000000, nil
}

func smpOnPairingConfirm(m *Manager, in pdu) error {
	if len(in) != 16 {
		return newError(ReasonInvalidParameters, "confirm length")
	}

	s := m.s
	s.peerConfirm = append([]byte{}, in...)

	if s.legacy {
		return m.legacyOnConfirm()
	}
	return m.secureOnConfirm()
}

func smpOnPairingRandom(m *Manager, in pdu) error {
	if len(in) != 16 {
		return newError(ReasonInvalidParameters, "random length")
	}

	s := m.s
	s.peerRandom = append([]byte{}, in...)

	if s.legacy {
		return m.legacyOnRandom()
	}
	return m.secureOnRandom()
}

func smpOnPairingPublicKey(m *Manager, in pdu) error {
	if len(in) != 64 {
		return newError(ReasonInvalidParameters, "public key length")
	}
	if m.s.legacy {
		return newError(ReasonCommandNotSupported, "public key during legacy pairing")
	}
	return m.secureOnPublicKey(in)
}

func smpOnDHKeyCheck(m *Manager, in pdu) error {
	if len(in) != 16 {
		return newError(ReasonInvalidParameters, "dhkey check length")
	}
	if m.s.legacy {
		return newError(ReasonCommandNotSupported, "dhkey check during legacy pairing")
	}
	return m.secureOnDHKeyCheck(in)
}

func smpOnPairingFailed(m *Manager, in pdu) error {
	reason := ReasonUnspecified
	if len(in) > 0 {
		reason = reasonFromWire(in[0])
	}
	m.log.Errorf("peer reported pairing failed: %v", reason)
	return m.failRemote(reason, "reported by peer")
}

func smpOnSecurityRequest(m *Manager, in pdu) error {
	if len(in) < 1 {
		return newError(ReasonInvalidParameters, "security request length")
	}

	s := m.s
	s.role = RoleCentral
	peerAuthReq := in[0]

	if peerAuthReq&authReqBondMask == AuthReqBond && m.store != nil {
		if rec, err := m.store.Find(m.peerKey()); err == nil {
			// bonded already: just bring encryption back up
			s.reEncrypt = true
			s.storedRec = rec
			m.transition(StateEncryptionPending)
			if m.transport == nil {
				return newError(ReasonUnspecified, "no transport")
			}
			if err := m.transport.StartEncryption(rec); err != nil {
				return newErrorf(ReasonEncryptionFailed, "start encryption: %v", err)
			}
			return nil
		}
	}

	// no usable bond: fold the request into ours and pair from scratch
	s.request = m.cfg
	s.request.AuthReq |= peerAuthReq & (AuthReqMITM | authReqBondMask)
	if len(s.oobData) > 0 {
		s.request.OobFlag = oobDataPresent
	}

	if err := m.sendPDU(buildPairingReq(s.request)); err != nil {
		return err
	}
	m.transition(StateWaitIoCapRsp)
	return nil
}

func smpOnKeypress(m *Manager, in pdu) error {
	if len(in) < 1 {
		return newError(ReasonInvalidParameters, "keypress length")
	}
	m.log.Debugf("peer keypress notification %#x", in[0])
	return nil
}

func smpOnEncryptionInformation(m *Manager, in pdu) error {
	if len(in) != 16 {
		return newError(ReasonInvalidParameters, "encryption information length")
	}
	rec := m.ensurePendingRec()
	rec.LongTermKey = truncateKey(append([]byte{}, in...), m.s.keySize)
	return nil
}

func smpOnCentralIdentification(m *Manager, in pdu) error {
	if len(in) != 10 {
		return newError(ReasonInvalidParameters, "central identification length")
	}
	rec := m.ensurePendingRec()
	if len(rec.LongTermKey) == 0 {
		return newError(ReasonInvalidParameters, "central identification before encryption information")
	}
	rec.EDiv = uint16(in[0]) | uint16(in[1])<<8
	var r uint64
	for i := 0; i < 8; i++ {
		r |= uint64(in[2+i]) << (8 * uint(i))
	}
	rec.Rand = r
	return m.peerKeyUnitDone(keyDistEncKey)
}

func smpOnIdentityInformation(m *Manager, in pdu) error {
	if len(in) != 16 {
		return newError(ReasonInvalidParameters, "identity information length")
	}
	rec := m.ensurePendingRec()
	rec.IdentityResolvingKey = append([]byte{}, in...)
	return nil
}

func smpOnIdentityAddrInformation(m *Manager, in pdu) error {
	if len(in) != 7 {
		return newError(ReasonInvalidParameters, "identity address length")
	}
	rec := m.ensurePendingRec()
	if len(rec.IdentityResolvingKey) == 0 {
		return newError(ReasonInvalidParameters, "identity address before identity information")
	}
	rec.IdentityAddr = addrString(in[1:7], in[0])
	return m.peerKeyUnitDone(keyDistIdKey)
}

func smpOnSigningInformation(m *Manager, in pdu) error {
	if len(in) != 16 {
		return newError(ReasonInvalidParameters, "signing information length")
	}
	rec := m.ensurePendingRec()
	rec.SigningKey = append([]byte{}, in...)
	rec.PeerSignCounter = 0
	return m.peerKeyUnitDone(keyDistSignKey)
}
