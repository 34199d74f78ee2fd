package smp

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/parabit/blesec"
	"github.com/parabit/blesec/keystore"
)

// Manager owns the single pairing session of an adapter and serializes every
// operation on it: PDU arrivals, user decisions, encryption results and the
// timer all run to completion under one lock before the next is admitted.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	pol       Policy
	transport Transport
	store     keystore.Store
	delegate  Delegate
	rng       Rand
	log       blesec.Logger

	// adapter wide identity material, stable across sessions
	localIRK         []byte
	identityAddr     []byte
	identityAddrType byte
	localCSRK        []byte

	s        *session
	timer    *time.Timer
	timerGen uint64

	attempts map[string]*attemptRecord

	// delegate callbacks queued during an operation, invoked after unlock
	calls []func()

	lastFailure Reason
}

type attemptRecord struct {
	failures     int
	blockedUntil time.Time
}

// NewManager builds a Manager with the given pairing features, policy and
// record store. Transport and Delegate must be set before the first
// operation.
func NewManager(cfg Config, pol Policy, store keystore.Store) *Manager {
	return &Manager{
		cfg:      cfg,
		pol:      pol,
		store:    store,
		rng:      DefaultRand(),
		log:      blesec.GetLogger().ChildLogger(map[string]interface{}{"pkg": "smp"}),
		s:        newSession(),
		attempts: make(map[string]*attemptRecord),
	}
}

func (m *Manager) SetTransport(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transport = t
}

func (m *Manager) SetDelegate(d Delegate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegate = d
}

func (m *Manager) SetRand(r Rand) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r != nil {
		m.rng = r
	}
}

// InitContext records the two link addresses in wire order plus their
// address types. It must run before pairing starts in either role.
func (m *Manager) InitContext(localAddr, peerAddr []byte, localAddrType, peerAddrType byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.localAddr = append([]byte{}, localAddr...)
	m.s.localAddrType = localAddrType
	m.s.peerAddr = append([]byte{}, peerAddr...)
	m.s.peerAddrType = peerAddrType

	m.log = m.log.ChildLogger(map[string]interface{}{
		"peer": hex.EncodeToString(peerAddr),
	})
}

// State returns the current state machine state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.state
}

// LastFailure returns the reason of the most recent failed session, or
// ReasonNone.
func (m *Manager) LastFailure() Reason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFailure
}

// run executes op under the manager lock and then fires any delegate
// callbacks the operation queued, with the lock released.
func (m *Manager) run(op func() error) error {
	m.mu.Lock()
	err := op()
	calls := m.calls
	m.calls = nil
	m.mu.Unlock()

	for _, c := range calls {
		c()
	}
	return err
}

func (m *Manager) enqueue(f func()) {
	m.calls = append(m.calls, f)
}

// StartInitiator begins pairing as the central. The peer address must have
// been set via InitContext.
func (m *Manager) StartInitiator() error {
	return m.run(func() error {
		if m.s.state != StateIdle {
			return newErrorf(ReasonUnspecified, "pairing already in progress (%v)", m.s.state)
		}
		if err := m.checkAttempts(); err != nil {
			return err
		}

		m.s.role = RoleCentral
		m.s.request = m.cfg
		if len(m.s.oobData) > 0 {
			m.s.request.OobFlag = oobDataPresent
		}

		if err := m.sendPDU(buildPairingReq(m.s.request)); err != nil {
			return m.failLocal(ReasonUnspecified, err.Error())
		}

		m.transition(StateWaitIoCapRsp)
		return nil
	})
}

// RequestSecurity sends a Security Request as the peripheral, asking the
// central to either re-encrypt with a stored key or start pairing.
func (m *Manager) RequestSecurity() error {
	return m.run(func() error {
		if m.s.state != StateIdle {
			return newErrorf(ReasonUnspecified, "pairing already in progress (%v)", m.s.state)
		}

		m.s.role = RolePeripheral
		if err := m.sendPDU([]byte{securityRequest, m.cfg.AuthReq}); err != nil {
			return m.failLocal(ReasonUnspecified, err.Error())
		}

		m.transition(StateSecurityRequestPending)
		return nil
	})
}

// HandlePDU feeds one received SMP PDU (opcode plus payload) into the state
// machine.
func (m *Manager) HandlePDU(in []byte) error {
	return m.run(func() error {
		if len(in) == 0 {
			return m.failLocal(ReasonInvalidParameters, "empty pdu")
		}

		code := in[0]
		payload := pdu(in[1:])

		d, ok := dispatcher[code]
		if !ok || d.handler == nil {
			m.log.Warnf("unhandled smp opcode %#x", code)
			// C.5.1 Pairing Not Supported
			m.writeRaw([]byte{pairingFailed, 0x05})
			return nil
		}

		m.s.exchangeStarted = true

		if d.valid != nil && !d.valid(m.s) {
			if code == securityRequest && m.pol.SecurityRequestDuringPairing == DiscardDuringPairing {
				// documented race: a peripheral may fire a security request
				// while pairing is already running
				m.log.Debugf("discarding security request in state %v", m.s.state)
				return nil
			}
			return m.failLocal(ReasonInvalidParameters,
				"pdu "+d.desc+" not valid in state "+m.s.state.String())
		}

		if err := d.handler(m, payload); err != nil {
			if e, ok := err.(*Error); ok {
				return m.failLocal(e.Reason, e.detail)
			}
			return m.failLocal(ReasonUnspecified, err.Error())
		}
		return nil
	})
}

// ProvidePasskey answers a PasskeyRequest delegate call.
func (m *Manager) ProvidePasskey(passkey uint32) error {
	return m.run(func() error {
		if m.s.terminal() {
			return newError(ReasonUnspecified, "no pairing in progress")
		}
		if passkey > 999999 {
			return m.failLocal(ReasonPasskeyEntryFailed, "passkey out of range")
		}
		if m.s.model != ModelPasskeyEntry || m.s.passkeySet {
			return newError(ReasonUnspecified, "passkey not expected now")
		}

		m.s.passkey = passkey
		m.s.passkeySet = true
		if err := m.passkeyReady(); err != nil {
			return m.failFromError(err)
		}
		return nil
	})
}

// Confirm answers a NumericComparison delegate call.
func (m *Manager) Confirm(accept bool) error {
	return m.run(func() error {
		if m.s.terminal() {
			return newError(ReasonUnspecified, "no pairing in progress")
		}
		if m.s.model != ModelNumericComparison || m.s.userConfirmed {
			return newError(ReasonUnspecified, "confirmation not expected now")
		}
		if !accept {
			return m.failLocal(ReasonNumericComparisonFailed, "user rejected comparison value")
		}

		m.s.userConfirmed = true
		if err := m.comparisonConfirmed(); err != nil {
			return m.failFromError(err)
		}
		return nil
	})
}

// ProvideOOB supplies out of band data, either ahead of StartInitiator or in
// answer to an OOBRequest delegate call.
func (m *Manager) ProvideOOB(data []byte) error {
	return m.run(func() error {
		if len(data) != 16 {
			return newError(ReasonOobNotAvailable, "oob data must be 16 octets")
		}

		if m.s.terminal() {
			// stash for the next session
			m.s.oobData = append([]byte{}, data...)
			return nil
		}

		m.s.oobData = append([]byte{}, data...)
		if m.s.state == StateWaitAppDecision && m.s.model == ModelOob {
			if err := m.oobReady(); err != nil {
				return m.failFromError(err)
			}
		}
		return nil
	})
}

// EncryptionChanged reports the outcome of the link encryption the engine
// requested (or, for a peripheral, that the central started encryption with
// the session key).
func (m *Manager) EncryptionChanged(ok bool) error {
	return m.run(func() error {
		if m.s.state == StateSecurityRequestPending {
			// the central answered our security request by re-encrypting
			// with a stored key instead of pairing
			if !ok {
				return m.failLocal(ReasonEncryptionFailed, "link encryption rejected")
			}
			var rec *keystore.SecurityRecord
			if m.store != nil {
				if r, err := m.store.Find(m.peerKey()); err == nil {
					rec = r
				}
			}
			m.succeed(rec)
			return nil
		}
		if m.s.state != StateEncryptionPending {
			if m.s.terminal() {
				return nil
			}
			return m.failLocal(ReasonInvalidParameters,
				"encryption result in state "+m.s.state.String())
		}
		if !ok {
			return m.failLocal(ReasonEncryptionFailed, "link encryption rejected")
		}

		if m.s.reEncrypt {
			// encrypted with a stored key, no distribution to run
			m.succeed(m.s.storedRec)
			return nil
		}

		m.transition(StateKeyDistribution)
		if err := m.startKeyDistribution(); err != nil {
			return m.failFromError(err)
		}
		return nil
	})
}

// Cancel aborts the session. Calling it when no session is active, or a
// second time, is a no-op.
func (m *Manager) Cancel() error {
	return m.run(func() error {
		if m.s.terminal() {
			return nil
		}
		return m.failLocal(ReasonUserCancelled, "")
	})
}

// NotifyKeypress forwards a keypress notification during passkey entry when
// both sides negotiated them.
func (m *Manager) NotifyKeypress(kind byte) error {
	return m.run(func() error {
		if m.s.terminal() || m.s.model != ModelPasskeyEntry {
			return newError(ReasonUnspecified, "keypress not expected now")
		}
		if m.s.request.AuthReq&AuthReqKeypress == 0 || m.s.response.AuthReq&AuthReqKeypress == 0 {
			return nil
		}
		return m.sendPDU([]byte{pairingKeypress, kind})
	})
}

// transition moves to the next state and keeps the pairing timer in step:
// armed while the state awaits peer or user input, stopped otherwise.
func (m *Manager) transition(next State) {
	m.s.state = next
	m.timerGen++

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if m.s.awaitsInput() {
		gen := m.timerGen
		m.timer = time.AfterFunc(m.pol.timeout(), func() {
			m.timerExpired(gen)
		})
	}
}

func (m *Manager) timerExpired(gen uint64) {
	m.run(func() error {
		if gen != m.timerGen || m.s.terminal() {
			return nil
		}
		m.log.Warnf("pairing timed out in state %v", m.s.state)
		return m.failLocal(ReasonTimeout, "")
	})
}

func (m *Manager) writeRaw(b []byte) {
	if m.transport == nil {
		return
	}
	if _, err := m.transport.WritePDU(b); err != nil {
		m.log.Errorf("write pdu: %v", err)
	}
}

func (m *Manager) sendPDU(b []byte) error {
	if m.transport == nil {
		return newError(ReasonUnspecified, "no transport")
	}
	m.s.exchangeStarted = true
	if _, err := m.transport.WritePDU(b); err != nil {
		return newErrorf(ReasonUnspecified, "write pdu: %v", err)
	}
	return nil
}

func (m *Manager) failFromError(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return m.failLocal(e.Reason, e.detail)
	}
	return m.failLocal(ReasonUnspecified, err.Error())
}

// failLocal is the single terminal failure path: it reports the failure to
// the peer when the exchange already began, erases secrets, notifies the
// bonding controller exactly once and resets the session to idle.
func (m *Manager) failLocal(reason Reason, detail string) error {
	return m.terminate(reason, detail, true)
}

// failRemote handles a Pairing Failed PDU from the peer; no PDU goes back.
func (m *Manager) failRemote(reason Reason, detail string) error {
	return m.terminate(reason, detail, false)
}

func (m *Manager) terminate(reason Reason, detail string, tellPeer bool) error {
	if m.s.completed {
		return nil
	}
	m.s.completed = true
	m.s.failureReason = reason
	m.lastFailure = reason

	err := newError(reason, detail)
	m.log.Errorf("pairing failed: %v", err)

	if tellPeer && m.s.exchangeStarted {
		if code, ok := reason.wireCode(); ok {
			m.writeRaw([]byte{pairingFailed, code})
		}
	}

	if reason != ReasonUserCancelled {
		m.noteFailure()
	}
	m.s.zeroSecrets()
	m.s.state = StateFailed

	d := m.delegate
	m.enqueue(func() {
		if d != nil {
			d.PairingComplete(err, nil)
		}
	})

	// Failed is observable only through the callback; the session itself
	// returns to idle so the controller can start over
	addrs := [2][]byte{m.s.localAddr, m.s.peerAddr}
	types := [2]byte{m.s.localAddrType, m.s.peerAddrType}
	m.s.reset()
	m.s.localAddr, m.s.peerAddr = addrs[0], addrs[1]
	m.s.localAddrType, m.s.peerAddrType = types[0], types[1]
	m.transition(StateIdle)

	return err
}

// succeed finishes a bonded session: the record is already persisted, the
// secrets are wiped and the controller hears about it once.
func (m *Manager) succeed(rec *keystore.SecurityRecord) {
	if m.s.completed {
		return
	}
	m.s.completed = true
	m.lastFailure = ReasonNone
	delete(m.attempts, m.peerKey())

	d := m.delegate
	m.enqueue(func() {
		if d != nil {
			d.PairingComplete(nil, rec)
		}
	})

	m.s.zeroSecrets()
	addrs := [2][]byte{m.s.localAddr, m.s.peerAddr}
	types := [2]byte{m.s.localAddrType, m.s.peerAddrType}
	m.s.reset()
	m.s.localAddr, m.s.peerAddr = addrs[0], addrs[1]
	m.s.localAddrType, m.s.peerAddrType = types[0], types[1]
	m.transition(StateIdle)
}

func (m *Manager) peerKey() string {
	return hex.EncodeToString(m.s.peerAddr)
}

func (m *Manager) checkAttempts() *Error {
	a, ok := m.attempts[m.peerKey()]
	if !ok {
		return nil
	}
	if time.Now().Before(a.blockedUntil) {
		return newError(ReasonRepeatedAttempts, "cooldown after repeated failures")
	}
	return nil
}

func (m *Manager) noteFailure() {
	if m.pol.MaxRepeatedAttempts <= 0 {
		return
	}
	key := m.peerKey()
	a, ok := m.attempts[key]
	if !ok {
		a = &attemptRecord{}
		m.attempts[key] = a
	}
	a.failures++
	if a.failures >= m.pol.MaxRepeatedAttempts {
		a.blockedUntil = time.Now().Add(m.pol.AttemptCooldown)
		a.failures = 0
	}
}

// sessionRandom assembles an n octet random value from the 8 octet quanta
// the controller RNG hands out.
func (m *Manager) sessionRandom(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		want := n - len(out)
		if want > 8 {
			want = 8
		}
		b, err := m.rng.RandomOctets(want)
		if err != nil {
			return nil, newErrorf(ReasonUnspecified, "rng: %v", err)
		}
		out = append(out, b...)
	}
	return out, nil
}
