package smp

const (
	pairingRequest          = 0x01 // Pairing Request LE-U, ACL-U
	pairingResponse         = 0x02 // Pairing Response LE-U, ACL-U
	pairingConfirm          = 0x03 // Pairing Confirm LE-U
	pairingRandom           = 0x04 // Pairing Random LE-U
	pairingFailed           = 0x05 // Pairing Failed LE-U, ACL-U
	encryptionInformation   = 0x06 // Encryption Information LE-U
	centralIdentification   = 0x07 // Central Identification LE-U
	identityInformation     = 0x08 // Identity Information LE-U, ACL-U
	identityAddrInformation = 0x09 // Identity Address Information LE-U, ACL-U
	signingInformation      = 0x0A // Signing Information LE-U, ACL-U
	securityRequest         = 0x0B // Security Request LE-U
	pairingPublicKey        = 0x0C // Pairing Public Key LE-U
	pairingDHKeyCheck       = 0x0D // Pairing DHKey Check LE-U
	pairingKeypress         = 0x0E // Pairing Keypress Notification LE-U

	passkeyIterationCount = 20

	oobDataNotPresent = 0x00
	oobDataPresent    = 0x01

	// AuthReq bits, core spec Vol 3, Part H, 3.5.1
	AuthReqBond     = byte(0x01)
	AuthReqMITM     = byte(0x04)
	AuthReqSC       = byte(0x08)
	AuthReqKeypress = byte(0x10)
	AuthReqCT2      = byte(0x20)

	authReqBondMask = byte(0x03)

	// IO capabilities, core spec Vol 3, Part H, 2.3.2
	IoCapDisplayOnly     = byte(0x00)
	IoCapDisplayYesNo    = byte(0x01)
	IoCapKeyboardOnly    = byte(0x02)
	IoCapNoInputNoOutput = byte(0x03)
	IoCapKeyboardDisplay = byte(0x04)
	ioCapReservedStart   = byte(0x05)

	// key distribution bits, core spec Vol 3, Part H, 3.6.1
	keyDistEncKey  = byte(0x01)
	keyDistIdKey   = byte(0x02)
	keyDistSignKey = byte(0x04)
	keyDistLinkKey = byte(0x08)

	minKeySize     = 7
	maxKeySize     = 16
	defaultTimeout = 30 // seconds
)

// Role says which side of the pairing this device is on.
type Role int

const (
	RoleCentral Role = iota
	RolePeripheral
)

func (r Role) String() string {
	if r == RoleCentral {
		return "central"
	}
	return "peripheral"
}

// Keypress notification types carried by the Pairing Keypress PDU.
const (
	KeypressEntryStarted   = byte(0x00)
	KeypressDigitEntered   = byte(0x01)
	KeypressDigitErased    = byte(0x02)
	KeypressCleared        = byte(0x03)
	KeypressEntryCompleted = byte(0x04)
)
