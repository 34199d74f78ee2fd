package smp

import "time"

// Config mirrors the pairing feature exchange fields: what this device puts
// into its Pairing Request (or Response) PDU.
type Config struct {
	IoCap       byte
	OobFlag     byte
	AuthReq     byte
	MaxKeySize  byte
	InitKeyDist byte
	RespKeyDist byte
}

// DefaultConfig pairs with bonding and Secure Connections, no IO, and asks
// for encryption plus identity keys in both directions.
func DefaultConfig() Config {
	return Config{
		IoCap:       IoCapNoInputNoOutput,
		OobFlag:     oobDataNotPresent,
		AuthReq:     AuthReqBond | AuthReqSC,
		MaxKeySize:  maxKeySize,
		InitKeyDist: keyDistEncKey | keyDistIdKey,
		RespKeyDist: keyDistEncKey | keyDistIdKey,
	}
}

func (c Config) bonding() bool {
	return c.AuthReq&authReqBondMask == AuthReqBond
}

func (c Config) mitm() bool {
	return c.AuthReq&AuthReqMITM != 0
}

func (c Config) secureConnections() bool {
	return c.AuthReq&AuthReqSC != 0
}

func (c Config) ct2() bool {
	return c.AuthReq&AuthReqCT2 != 0
}

// SecurityRequestConduct selects how a peripheral's Security Request is
// handled when it arrives while a pairing is already running. The dominant
// behavior is to discard it; failing the session instead is kept as a policy
// switch for stacks that treat it as a protocol violation.
type SecurityRequestConduct int

const (
	DiscardDuringPairing SecurityRequestConduct = iota
	FailDuringPairing
)

// Policy carries the adapter-wide security policy the state machine enforces.
type Policy struct {
	// MinKeySize is the encryption key size floor. A negotiated size below
	// it fails the session.
	MinKeySize byte

	// SecureConnectionsOnly refuses any session whose resolved association
	// model would be unauthenticated Just Works under Secure Connections,
	// and refuses legacy pairing outright.
	SecureConnectionsOnly bool

	// AllowLegacy permits legacy (non Secure Connections) pairing when the
	// peer does not support SC.
	AllowLegacy bool

	// OOB data may be disallowed even when the peer advertises it.
	AllowOOB bool

	SecurityRequestDuringPairing SecurityRequestConduct

	// MaxRepeatedAttempts failed pairings with the same peer start a
	// cooldown during which further attempts are refused.
	MaxRepeatedAttempts int
	AttemptCooldown     time.Duration

	// Timeout covers every wait for a peer PDU or a user decision.
	Timeout time.Duration
}

// DefaultPolicy matches the common adapter defaults: 7 octet key floor,
// legacy permitted, three strikes with a 30 second cooldown.
func DefaultPolicy() Policy {
	return Policy{
		MinKeySize:          minKeySize,
		AllowLegacy:         true,
		AllowOOB:            true,
		MaxRepeatedAttempts: 3,
		AttemptCooldown:     30 * time.Second,
		Timeout:             defaultTimeout * time.Second,
	}
}

func (p Policy) keySizeFloor() byte {
	if p.MinKeySize == 0 {
		return minKeySize
	}
	return p.MinKeySize
}

func (p Policy) timeout() time.Duration {
	if p.Timeout <= 0 {
		return defaultTimeout * time.Second
	}
	return p.Timeout
}
