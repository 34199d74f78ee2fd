package smp

import "github.com/parabit/blesec/smpcrypt"

// Cross transport key derivation bridges an LE bond onto BR/EDR and back.
// With CT2 on both sides the salted h7 path is used, otherwise the older h6
// chain.

const (
	keyIDTmp1 = 0x746D7031 // "tmp1"
	keyIDTmp2 = 0x746D7032 // "tmp2"
	keyIDLebr = 0x6C656272 // "lebr"
	keyIDBrle = 0x62726C65 // "brle"
)

func ctkdSalt(keyID uint32) []byte {
	s := make([]byte, 16)
	s[0] = byte(keyID)
	s[1] = byte(keyID >> 8)
	s[2] = byte(keyID >> 16)
	s[3] = byte(keyID >> 24)
	return s
}

// DeriveLinkKeyFromLTK converts an LE long term key into a BR/EDR link key.
func DeriveLinkKeyFromLTK(ltk []byte, ct2 bool) ([]byte, error) {
	if len(ltk) != 16 {
		return nil, newError(ReasonLinkKeyDerivation, "ltk must be 16 octets")
	}

	var ilk []byte
	var err error
	if ct2 {
		ilk, err = smpcrypt.H7(ctkdSalt(keyIDTmp1), ltk)
	} else {
		ilk, err = smpcrypt.H6(ltk, keyIDTmp1)
	}
	if err != nil {
		return nil, newErrorf(ReasonLinkKeyDerivation, "intermediate key: %v", err)
	}

	lk, err := smpcrypt.H6(ilk, keyIDLebr)
	if err != nil {
		return nil, newErrorf(ReasonLinkKeyDerivation, "link key: %v", err)
	}
	return lk, nil
}

// DeriveLTKFromLinkKey converts a BR/EDR link key into an LE long term key.
func DeriveLTKFromLinkKey(linkKey []byte, ct2 bool) ([]byte, error) {
	if len(linkKey) != 16 {
		return nil, newError(ReasonLinkKeyDerivation, "link key must be 16 octets")
	}

	var iltk []byte
	var err error
	if ct2 {
		iltk, err = smpcrypt.H7(ctkdSalt(keyIDTmp2), linkKey)
	} else {
		iltk, err = smpcrypt.H6(linkKey, keyIDTmp2)
	}
	if err != nil {
		return nil, newErrorf(ReasonLinkKeyDerivation, "intermediate key: %v", err)
	}

	ltk, err := smpcrypt.H6(iltk, keyIDBrle)
	if err != nil {
		return nil, newErrorf(ReasonLinkKeyDerivation, "long term key: %v", err)
	}
	return ltk, nil
}
