package smp

import (
	"encoding/binary"
	"encoding/hex"
)

// pdu is a raw SMP PDU payload, opcode stripped.
type pdu []byte

func buildPairingReq(c Config) []byte {
	return []byte{pairingRequest, c.IoCap, c.OobFlag, c.AuthReq, c.MaxKeySize, c.InitKeyDist, c.RespKeyDist}
}

func buildPairingRsp(c Config) []byte {
	return []byte{pairingResponse, c.IoCap, c.OobFlag, c.AuthReq, c.MaxKeySize, c.InitKeyDist, c.RespKeyDist}
}

func parseFeatureExchange(in pdu) (Config, error) {
	if len(in) < 6 {
		return Config{}, newErrorf(ReasonInvalidParameters,
			"%v, invalid length %v", hex.EncodeToString(in), len(in))
	}

	return Config{
		IoCap:       in[0],
		OobFlag:     in[1],
		AuthReq:     in[2],
		MaxKeySize:  in[3],
		InitKeyDist: in[4],
		RespKeyDist: in[5],
	}, nil
}

func buildCentralIdentification(ediv uint16, randVal uint64) []byte {
	out := make([]byte, 11)
	out[0] = centralIdentification
	binary.LittleEndian.PutUint16(out[1:3], ediv)
	binary.LittleEndian.PutUint64(out[3:], randVal)
	return out
}

func buildKeyPDU(opcode byte, key []byte) []byte {
	return append([]byte{opcode}, key...)
}

func buildIdentityAddr(addrType byte, addr []byte) []byte {
	out := []byte{identityAddrInformation, addrType}
	return append(out, addr...)
}
