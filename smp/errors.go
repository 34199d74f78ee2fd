package smp

import "fmt"

// Reason classifies why a pairing session failed. The zero value means no
// failure. Reasons are terminal for the session; retry decisions belong to
// the bonding controller.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonPasskeyEntryFailed
	ReasonOobNotAvailable
	ReasonAuthenticationRequirements
	ReasonConfirmValueFailed
	ReasonPairingNotSupported
	ReasonEncryptionKeySize
	ReasonCommandNotSupported
	ReasonUnspecified
	ReasonRepeatedAttempts
	ReasonInvalidParameters
	ReasonDHKeyCheckFailed
	ReasonNumericComparisonFailed
	ReasonBREDRPairingInProgress
	ReasonCTKDNotAllowed

	// local only reasons, never carried by a Pairing Failed PDU
	ReasonUnsupportedIoCapability
	ReasonAuthenticationFailure
	ReasonLinkKeyDerivation
	ReasonTimeout
	ReasonUserCancelled
	ReasonEncryptionFailed
)

// core spec v5.2, Vol 3, Part H, 3.5.5, Table 3.7
var reasonStrings = map[Reason]string{
	ReasonNone:                       "no failure",
	ReasonPasskeyEntryFailed:         "passkey entry failed",
	ReasonOobNotAvailable:            "oob not available",
	ReasonAuthenticationRequirements: "authentication requirements",
	ReasonConfirmValueFailed:         "confirm value failed",
	ReasonPairingNotSupported:        "pairing not supported",
	ReasonEncryptionKeySize:          "encryption key size",
	ReasonCommandNotSupported:        "command not supported",
	ReasonUnspecified:                "unspecified reason",
	ReasonRepeatedAttempts:           "repeated attempts",
	ReasonInvalidParameters:          "invalid parameters",
	ReasonDHKeyCheckFailed:           "dhkey check failed",
	ReasonNumericComparisonFailed:    "numeric comparison failed",
	ReasonBREDRPairingInProgress:     "BR/EDR pairing in progress",
	ReasonCTKDNotAllowed:             "cross-transport key derivation not allowed",
	ReasonUnsupportedIoCapability:    "unsupported io capability combination",
	ReasonAuthenticationFailure:      "authentication failure",
	ReasonLinkKeyDerivation:          "link key derivation failed",
	ReasonTimeout:                    "pairing timed out",
	ReasonUserCancelled:              "cancelled by user",
	ReasonEncryptionFailed:           "link encryption failed",
}

func (r Reason) String() string {
	if s, ok := reasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// wireCode returns the Pairing Failed reason octet for a Reason, collapsing
// the local-only reasons onto their closest wire representation. ok is false
// for reasons that must not produce a Pairing Failed PDU at all.
func (r Reason) wireCode() (byte, bool) {
	switch r {
	case ReasonPasskeyEntryFailed:
		return 0x01, true
	case ReasonOobNotAvailable:
		return 0x02, true
	case ReasonAuthenticationRequirements, ReasonUnsupportedIoCapability:
		return 0x03, true
	case ReasonConfirmValueFailed:
		return 0x04, true
	case ReasonPairingNotSupported:
		return 0x05, true
	case ReasonEncryptionKeySize:
		return 0x06, true
	case ReasonCommandNotSupported:
		return 0x07, true
	case ReasonUnspecified, ReasonUserCancelled, ReasonEncryptionFailed:
		return 0x08, true
	case ReasonRepeatedAttempts:
		return 0x09, true
	case ReasonInvalidParameters:
		return 0x0a, true
	case ReasonDHKeyCheckFailed, ReasonAuthenticationFailure:
		return 0x0b, true
	case ReasonNumericComparisonFailed:
		return 0x0c, true
	case ReasonBREDRPairingInProgress:
		return 0x0d, true
	case ReasonCTKDNotAllowed, ReasonLinkKeyDerivation:
		return 0x0e, true
	default:
		// ReasonTimeout: the timer expiring forbids further SMP traffic
		return 0, false
	}
}

// reasonFromWire maps a received Pairing Failed reason octet onto the
// taxonomy. Unknown codes collapse to ReasonUnspecified.
func reasonFromWire(code byte) Reason {
	switch code {
	case 0x01:
		return ReasonPasskeyEntryFailed
	case 0x02:
		return ReasonOobNotAvailable
	case 0x03:
		return ReasonAuthenticationRequirements
	case 0x04:
		return ReasonConfirmValueFailed
	case 0x05:
		return ReasonPairingNotSupported
	case 0x06:
		return ReasonEncryptionKeySize
	case 0x07:
		return ReasonCommandNotSupported
	case 0x08:
		return ReasonUnspecified
	case 0x09:
		return ReasonRepeatedAttempts
	case 0x0a:
		return ReasonInvalidParameters
	case 0x0b:
		return ReasonDHKeyCheckFailed
	case 0x0c:
		return ReasonNumericComparisonFailed
	case 0x0d:
		return ReasonBREDRPairingInProgress
	case 0x0e:
		return ReasonCTKDNotAllowed
	default:
		return ReasonUnspecified
	}
}

// MapControllerStatus translates an HCI-level status reported for the
// encryption step into a Reason, plus whether the bonding controller may
// reasonably retry with a fresh session. Only timeout-class transport errors
// are retry eligible; every crypto-level failure is final.
func MapControllerStatus(status byte) (Reason, bool) {
	switch status {
	case 0x00:
		return ReasonNone, false
	case 0x04: // page timeout
		return ReasonTimeout, true
	case 0x08: // connection timeout
		return ReasonTimeout, true
	case 0x05: // authentication failure
		return ReasonAuthenticationFailure, false
	case 0x06: // PIN or key missing
		return ReasonEncryptionFailed, false
	case 0x0e: // rejected due to security reasons
		return ReasonAuthenticationRequirements, false
	case 0x16: // connection terminated by local host
		return ReasonUserCancelled, false
	case 0x22: // LMP/LL response timeout
		return ReasonTimeout, true
	case 0x25: // encryption mode not acceptable
		return ReasonEncryptionFailed, false
	case 0x26: // link key cannot be changed
		return ReasonEncryptionFailed, false
	case 0x3d: // connection failed to be established
		return ReasonTimeout, true
	default:
		return ReasonEncryptionFailed, false
	}
}

// Error is the failure type surfaced through PairingComplete and returned by
// the public operations.
type Error struct {
	Reason Reason
	detail string
}

func newError(r Reason, detail string) *Error {
	return &Error{Reason: r, detail: detail}
}

func newErrorf(r Reason, format string, args ...interface{}) *Error {
	return &Error{Reason: r, detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.detail == "" {
		return "smp: " + e.Reason.String()
	}
	return "smp: " + e.Reason.String() + ": " + e.detail
}

// Is lets errors.Is match on the Reason alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// ReasonOf extracts the Reason from an error produced by this package,
// returning ReasonUnspecified for foreign errors and ReasonNone for nil.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	if e, ok := err.(*Error); ok {
		return e.Reason
	}
	return ReasonUnspecified
}
