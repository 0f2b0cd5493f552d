package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/phantompool/phantompool/pkg/wallet"
)

// walletVerifier adapts pkg/wallet's free VerifySignature function to
// orderpool.SignatureVerifier's interface, keeping OrderPool itself free of
// any wallet import (spec.md §1's "wallet signature verification (an
// opaque interface)").
type walletVerifier struct{}

func (walletVerifier) VerifyOwner(owner string, message []byte, signature []byte) bool {
	if !common.IsHexAddress(owner) {
		return false
	}
	return wallet.VerifySignature(common.HexToAddress(owner), message, signature)
}
