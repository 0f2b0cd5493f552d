package wallet

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressFromUncompressedPub derives an EIP-55 checksummed address from a
// 65-byte uncompressed secp256k1 public key (0x04 || X || Y), copied in
// spirit from the teacher's pkg/crypto/ethaddr.go.
func AddressFromUncompressedPub(pub []byte) string {
	if len(pub) != 65 || pub[0] != 0x04 {
		return ""
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(pub[1:])
	sum := h.Sum(nil)
	return EIP55(sum[12:])
}

// EIP55 computes the mixed-case checksummed hex address for a 20-byte
// address, per https://eips.ethereum.org/EIPS/eip-55.
func EIP55(addr20 []byte) string {
	hexAddr := hex.EncodeToString(addr20)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexAddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexAddr))
	out[0], out[1] = '0', 'x'
	for i, c := range []byte(hexAddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		hb := hash[i>>1]
		var nibble byte
		if i%2 == 0 {
			nibble = (hb >> 4) & 0x0f
		} else {
			nibble = hb & 0x0f
		}
		if nibble >= 8 {
			out[2+i] = byte(strings.ToUpper(string(c))[0])
		} else {
			out[2+i] = c
		}
	}
	return string(out)
}
