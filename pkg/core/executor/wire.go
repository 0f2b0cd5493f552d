package executor

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
)

// decryptWireRequest/Response carry a single partial-decryption round trip
// over transport.Request/Response's opaque []byte payload. Points and
// scalars cross the wire as their fixed-width Serialize() encodings rather
// than native circl types, since circl's group elements don't implement
// gob.GobEncoder.
type decryptWireRequest struct {
	C1, C2 []byte
}

type decryptWireResponse struct {
	Index  int
	D      []byte
	ProofA1, ProofA2 []byte
	ProofC, ProofS   []byte
}

type signWireRequest struct {
	Commitment []byte
}

type signWireResponse struct {
	Index     int
	Signature []byte
}

func encodeCiphertext(c elgamal.Ciphertext) decryptWireRequest {
	return decryptWireRequest{C1: c.C1.Serialize(), C2: c.C2.Serialize()}
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("executor: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return fmt.Errorf("executor: gob decode: %w", err)
	}
	return nil
}
