package wallet

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain is the EIP-712 domain separator, binding every signature to this
// deployment so a signature captured on testnet can't replay on mainnet.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain is PhantomPool's EIP-712 domain for off-chain order signing.
func DefaultDomain() Domain {
	return Domain{
		Name:              "PhantomPool",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

// OrderEIP712 is the typed-data structure a trader's wallet signs before
// submission. CommitmentX/CommitmentY are the affine coordinates of the
// order's ElGamal ciphertext first component — spec.md §3's "signature
// binding (owner, market, side, commitment, nonce, submit_time)" in EIP-712
// typed-data form, mirroring the teacher's OrderEIP712 shape field-for-field
// with PhantomPool's encrypted fields in place of plaintext price/qty.
type OrderEIP712 struct {
	Market           string
	Side             uint8
	CommitmentX      *big.Int
	CommitmentY      *big.Int
	Nonce            *big.Int
	SubmitTimeUnixMs *big.Int
	Owner            common.Address
}

// CancelEIP712 is the typed-data structure for a cancellation request.
type CancelEIP712 struct {
	Market string
	Nonce  *big.Int
	Owner  common.Address
}

// Signer712 binds a Domain to the hashing/signing/verification operations.
type Signer712 struct {
	domain Domain
}

func NewSigner712(domain Domain) *Signer712 { return &Signer712{domain: domain} }

func (e *Signer712) domainTypes() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
	}
}

func (e *Signer712) domainMap() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              e.domain.Name,
		Version:           e.domain.Version,
		ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
		VerifyingContract: e.domain.VerifyingContract.Hex(),
	}
}

// HashOrder computes the EIP-712 digest a trader's wallet must sign.
func (e *Signer712) HashOrder(order *OrderEIP712) ([]byte, error) {
	types := e.domainTypes()
	types["Order"] = []apitypes.Type{
		{Name: "market", Type: "string"},
		{Name: "side", Type: "uint8"},
		{Name: "commitmentX", Type: "uint256"},
		{Name: "commitmentY", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "submitTimeUnixMs", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
	typedData := apitypes.TypedData{
		Types:       types,
		PrimaryType: "Order",
		Domain:      e.domainMap(),
		Message: apitypes.TypedDataMessage{
			"market":           order.Market,
			"side":             fmt.Sprintf("%d", order.Side),
			"commitmentX":      order.CommitmentX.String(),
			"commitmentY":      order.CommitmentY.String(),
			"nonce":            order.Nonce.String(),
			"submitTimeUnixMs": order.SubmitTimeUnixMs.String(),
			"owner":            order.Owner.Hex(),
		},
	}
	return hashTypedData(typedData)
}

// HashCancel computes the EIP-712 digest for a cancellation request.
func (e *Signer712) HashCancel(cancel *CancelEIP712) ([]byte, error) {
	types := e.domainTypes()
	types["CancelOrder"] = []apitypes.Type{
		{Name: "market", Type: "string"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
	typedData := apitypes.TypedData{
		Types:       types,
		PrimaryType: "CancelOrder",
		Domain:      e.domainMap(),
		Message: apitypes.TypedDataMessage{
			"market": cancel.Market,
			"nonce":  cancel.Nonce.String(),
			"owner":  cancel.Owner.Hex(),
		},
	}
	return hashTypedData(typedData)
}

func hashTypedData(typedData apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("wallet: hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("wallet: hash message: %w", err)
	}
	raw := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(messageHash)))
	return gethcrypto.Keccak256Hash(raw).Bytes(), nil
}

// SignOrder signs an order on behalf of s.
func (e *Signer712) SignOrder(s *Signer, order *OrderEIP712) ([]byte, error) {
	digest, err := e.HashOrder(order)
	if err != nil {
		return nil, err
	}
	return s.Sign(digest)
}

// VerifyOrderSignature implements the signature-binding check submit_order
// runs before an order ever touches OrderPool.
func (e *Signer712) VerifyOrderSignature(order *OrderEIP712, signature []byte) (bool, error) {
	digest, err := e.HashOrder(order)
	if err != nil {
		return false, err
	}
	recovered, err := RecoverAddress(digest, signature)
	if err != nil {
		return false, err
	}
	return recovered == order.Owner, nil
}

// SignCancel signs a cancellation on behalf of s.
func (e *Signer712) SignCancel(s *Signer, cancel *CancelEIP712) ([]byte, error) {
	digest, err := e.HashCancel(cancel)
	if err != nil {
		return nil, err
	}
	return s.Sign(digest)
}

// VerifyCancelSignature implements the signature-binding check cancel_order
// runs before OrderPool.Cancel is invoked.
func (e *Signer712) VerifyCancelSignature(cancel *CancelEIP712, signature []byte) (bool, error) {
	digest, err := e.HashCancel(cancel)
	if err != nil {
		return false, err
	}
	recovered, err := RecoverAddress(digest, signature)
	if err != nil {
		return false, err
	}
	return recovered == cancel.Owner, nil
}

// SideToUint8 maps a market side string to the EIP-712 wire encoding.
func SideToUint8(side string) uint8 {
	switch side {
	case "buy", "BUY":
		return 1
	case "sell", "SELL":
		return 2
	default:
		return 0
	}
}
