// Package wallet implements the verify_signature collaborator spec.md
// treats as an opaque external interface: secp256k1 ECDSA keypairs and
// signing, used to authenticate order submissions and cancellations before
// they ever reach OrderPool.
//
// Adapted directly from the teacher's pkg/crypto/signer.go — same
// go-ethereum-backed key handling and [R||S||V] signature format — trimmed
// to the operations PhantomPool's order-signing flow actually needs.
package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer manages a secp256k1 keypair for signing order submissions.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	address    common.Address
}

// GenerateKey creates a new random signer, used by cmd/sign-order when no
// existing key is supplied.
func GenerateKey() (*Signer, error) {
	privateKey, err := gethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return signerFromKey(privateKey)
}

// FromPrivateKeyHex loads a signer from a hex-encoded private key, allowing
// a trader to reuse the same address across sessions.
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	privateKey, err := gethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse private key: %w", err)
	}
	return signerFromKey(privateKey)
}

func signerFromKey(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("wallet: failed to cast public key to ECDSA")
	}
	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKeyECDSA,
		address:    gethcrypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// Address returns the owner address this signer submits orders as — the
// `owner` field every OrderPool entry is bound to.
func (s *Signer) Address() common.Address { return s.address }

// PrivateKeyHex returns the private key as hex (without 0x prefix).
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", gethcrypto.FromECDSA(s.privateKey))
}

// Sign signs a 32-byte digest and returns a 65-byte [R||S||V] signature.
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("wallet: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := gethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign: %w", err)
	}
	return sig, nil
}

// RecoverAddress recovers the address that produced a signature over a
// digest. This is the primitive VerifySignature and VerifyOrderSignature
// build on, and is also what an external settlement bridge calls directly
// when it only has a raw digest rather than a typed order/cancel struct.
func RecoverAddress(digest []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("wallet: invalid signature length: %d", len(signature))
	}
	if len(digest) != 32 {
		return common.Address{}, fmt.Errorf("wallet: invalid digest length: %d", len(digest))
	}
	pubKeyBytes, err := gethcrypto.Ecrecover(digest, signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("wallet: recover public key: %w", err)
	}
	pubKey, err := gethcrypto.UnmarshalPubkey(pubKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("wallet: unmarshal public key: %w", err)
	}
	return gethcrypto.PubkeyToAddress(*pubKey), nil
}

// VerifySignature implements the verify_signature(address, message, sig)
// interface spec.md §5 names as an opaque collaborator: it recovers the
// signer from a raw Keccak256 digest of message and compares against addr.
func VerifySignature(addr common.Address, message []byte, signature []byte) bool {
	digest := gethcrypto.Keccak256Hash(message)
	recovered, err := RecoverAddress(digest.Bytes(), signature)
	if err != nil {
		return false
	}
	return recovered == addr
}
