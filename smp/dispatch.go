package smp

type smpDispatcher struct {
	desc string
	// valid gates the opcode on the current session state; nil accepts any.
	// Out of order PDUs fail the session, they are never silently dropped.
	valid   func(s *session) bool
	handler func(m *Manager, in pdu) error
}

var dispatcher = map[byte]smpDispatcher{
	pairingRequest: {"pairing request",
		func(s *session) bool {
			return s.state == StateIdle || s.state == StateSecurityRequestPending
		},
		smpOnPairingRequest},
	pairingResponse: {"pairing response",
		func(s *session) bool {
			return s.role == RoleCentral && s.state == StateWaitIoCapRsp
		},
		smpOnPairingResponse},
	pairingConfirm: {"pairing confirm",
		func(s *session) bool {
			// a responder may still be waiting on its user when the
			// initiator's confirm arrives
			return s.state == StateWaitConfirm ||
				(s.role == RolePeripheral && s.state == StateWaitAppDecision)
		},
		smpOnPairingConfirm},
	pairingRandom: {"pairing random",
		func(s *session) bool {
			// an OOB responder may still be waiting on its user when the
			// initiator reveals its nonce
			return s.state == StateWaitNonce ||
				(s.role == RolePeripheral && s.state == StateWaitAppDecision &&
					s.model == ModelOob)
		},
		smpOnPairingRandom},
	pairingFailed: {"pairing failed",
		nil,
		smpOnPairingFailed},
	encryptionInformation: {"encryption info",
		func(s *session) bool { return s.state == StateKeyDistribution },
		smpOnEncryptionInformation},
	centralIdentification: {"central id",
		func(s *session) bool { return s.state == StateKeyDistribution },
		smpOnCentralIdentification},
	identityInformation: {"id info",
		func(s *session) bool { return s.state == StateKeyDistribution },
		smpOnIdentityInformation},
	identityAddrInformation: {"id addr info",
		func(s *session) bool { return s.state == StateKeyDistribution },
		smpOnIdentityAddrInformation},
	signingInformation: {"signing info",
		func(s *session) bool { return s.state == StateKeyDistribution },
		smpOnSigningInformation},
	securityRequest: {"security req",
		func(s *session) bool { return s.state == StateIdle },
		smpOnSecurityRequest},
	pairingPublicKey: {"pairing pub key",
		func(s *session) bool { return s.state == StatePublicKeyExchange },
		smpOnPairingPublicKey},
	pairingDHKeyCheck: {"pairing dhkey check",
		func(s *session) bool {
			// NC responder may get the check before its user confirms
			return s.state == StateDhKeyCheckPending ||
				(s.role == RolePeripheral && s.state == StateWaitAppDecision)
		},
		smpOnDHKeyCheck},
	pairingKeypress: {"pairing keypress",
		nil,
		smpOnKeypress},
}
