package smp

import (
	"crypto"

	"github.com/parabit/blesec/keystore"
	"github.com/parabit/blesec/smpcrypt"
)

// State enumerates the pairing state machine states.
type State int

const (
	StateIdle State = iota
	StateSecurityRequestPending
	StateWaitIoCapRsp
	StateWaitAppDecision
	StatePublicKeyExchange
	StateWaitConfirm
	StateWaitNonce
	StateDhKeyCheckPending
	StateEncryptionPending
	StateKeyDistribution
	StateBondPending
	StateFailed
)

var stateStrings = map[State]string{
	StateIdle:                   "idle",
	StateSecurityRequestPending: "security request pending",
	StateWaitIoCapRsp:           "wait io cap response",
	StateWaitAppDecision:        "wait app decision",
	StatePublicKeyExchange:      "public key exchange",
	StateWaitConfirm:            "wait confirm",
	StateWaitNonce:              "wait nonce",
	StateDhKeyCheckPending:      "dhkey check pending",
	StateEncryptionPending:      "encryption pending",
	StateKeyDistribution:        "key distribution",
	StateBondPending:            "bond pending",
	StateFailed:                 "failed",
}

func (s State) String() string {
	if v, ok := stateStrings[s]; ok {
		return v
	}
	return "unknown"
}

// session is the single mutable pairing session. One exists per Manager and
// it is reset, secrets first, on every terminal transition.
type session struct {
	role  Role
	state State

	localAddr     []byte
	localAddrType byte
	peerAddr      []byte
	peerAddrType  byte

	// request is always the initiator's feature set, response the
	// responder's, regardless of our role.
	request  Config
	response Config

	legacy     bool
	model      Model
	modelFixed bool

	// exchangeStarted gates whether a local failure is reported to the peer
	// with a Pairing Failed PDU.
	exchangeStarted bool

	keySize byte

	passkey    uint32
	passkeySet bool
	oobData    []byte

	localKeys  *smpcrypt.ECDHKeys
	peerPubKey crypto.PublicKey
	dhKey      []byte
	macKey     []byte

	localRandom  []byte
	peerRandom   []byte
	localConfirm []byte
	peerConfirm  []byte

	passkeyIteration int

	tempKey      []byte
	shortTermKey []byte
	longTermKey  []byte

	localDHKeyCheckSent bool
	peerDHKeyCheck      []byte
	userConfirmed       bool

	// key distribution bitmasks; narrowed over the session, never widened
	localKeyMask byte
	peerKeyMask  byte
	pendingRec   *keystore.SecurityRecord
	savedAny     bool

	// reEncrypt marks a session that skips pairing entirely because a
	// stored key answered the peer's security request
	reEncrypt bool
	storedRec *keystore.SecurityRecord

	failureReason Reason
	completed     bool
}

func newSession() *session {
	return &session{state: StateIdle}
}

// terminal reports whether the session can accept no further protocol input.
func (s *session) terminal() bool {
	return s.state == StateIdle || s.state == StateFailed
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// zeroSecrets erases every piece of key material the session ever held.
// Called on both success and failure before anything else observes the
// terminal state.
func (s *session) zeroSecrets() {
	wipe(s.tempKey)
	wipe(s.shortTermKey)
	wipe(s.longTermKey)
	wipe(s.dhKey)
	wipe(s.macKey)
	wipe(s.localRandom)
	wipe(s.peerRandom)
	s.tempKey = nil
	s.shortTermKey = nil
	s.longTermKey = nil
	s.dhKey = nil
	s.macKey = nil
	s.localRandom = nil
	s.peerRandom = nil
	if s.localKeys != nil {
		s.localKeys.Wipe()
		s.localKeys = nil
	}
	s.peerPubKey = nil
	s.passkey = 0
	s.passkeySet = false
	wipe(s.oobData)
	s.oobData = nil
}

// reset returns the session to idle defaults. zeroSecrets must have run.
func (s *session) reset() {
	*s = session{state: StateIdle}
}

// awaitsInput reports whether the state waits on a peer PDU or a user
// decision, which is exactly when the pairing timer runs.
func (s *session) awaitsInput() bool {
	switch s.state {
	case StateSecurityRequestPending, StateWaitIoCapRsp, StateWaitAppDecision,
		StatePublicKeyExchange, StateWaitConfirm, StateWaitNonce,
		StateDhKeyCheckPending, StateEncryptionPending, StateKeyDistribution:
		return true
	}
	return false
}

// initiatorCfg and responderCfg give the feature sets by protocol role.
func (s *session) localCfg() Config {
	if s.role == RoleCentral {
		return s.request
	}
	return s.response
}

func (s *session) peerCfg() Config {
	if s.role == RoleCentral {
		return s.response
	}
	return s.request
}

// ioCapOctets returns the 3 octet IOcap value (AuthReq || OOB flag || IoCap)
// folded into the DHKey check, for the initiator (a) and responder (b).
func (s *session) ioCapOctetsA() []byte {
	return []byte{s.request.IoCap, s.request.OobFlag, s.request.AuthReq}
}

func (s *session) ioCapOctetsB() []byte {
	return []byte{s.response.IoCap, s.response.OobFlag, s.response.AuthReq}
}

// addrA/addrB return the 7 octet initiator and responder addresses consumed
// by f5 and f6.
func (s *session) addrA() []byte {
	if s.role == RoleCentral {
		return append(append([]byte{}, s.localAddr...), s.localAddrType)
	}
	return append(append([]byte{}, s.peerAddr...), s.peerAddrType)
}

func (s *session) addrB() []byte {
	if s.role == RoleCentral {
		return append(append([]byte{}, s.peerAddr...), s.peerAddrType)
	}
	return append(append([]byte{}, s.localAddr...), s.localAddrType)
}
