package smp

import (
	"crypto/rand"

	"github.com/parabit/blesec/keystore"
)

// Transport carries SMP PDUs to the peer and drives link encryption. The
// engine owns no framing below the SMP opcode; WritePDU receives the opcode
// plus payload and the implementation wraps it for its channel.
type Transport interface {
	WritePDU([]byte) (int, error)

	// StartEncryption asks the link layer to encrypt with the session key in
	// rec. The outcome arrives later through Manager.EncryptionChanged.
	StartEncryption(rec *keystore.SecurityRecord) error

	// Flush blocks until every previously written PDU has been acknowledged
	// by the link layer. Bonding is not declared complete before this
	// returns.
	Flush() error
}

// Rand is the random number service. The link controller hands out entropy
// in 8 octet quanta, so implementations may be called repeatedly to assemble
// larger values.
type Rand interface {
	RandomOctets(n int) ([]byte, error)
}

type cryptoRand struct{}

func (cryptoRand) RandomOctets(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DefaultRand reads from crypto/rand.
func DefaultRand() Rand { return cryptoRand{} }

// Delegate is the bonding controller surface. Calls arrive with the manager
// lock released and each fires at most once per session; the *Request calls
// are answered asynchronously through the corresponding Manager method.
type Delegate interface {
	// PasskeyRequest asks the user to type the passkey shown on the peer.
	// Answer with Manager.ProvidePasskey.
	PasskeyRequest()

	// PasskeyDisplay shows a locally generated 6 digit passkey.
	PasskeyDisplay(passkey uint32)

	// NumericComparison shows the 6 digit comparison value. Answer with
	// Manager.Confirm.
	NumericComparison(value uint32)

	// OOBRequest asks for the out of band data. Answer with
	// Manager.ProvideOOB.
	OOBRequest()

	// PairingComplete reports the terminal outcome. rec is non-nil only on
	// success and is already persisted.
	PairingComplete(err error, rec *keystore.SecurityRecord)
}
