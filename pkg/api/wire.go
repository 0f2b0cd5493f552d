package api

import (
	"bytes"
	"crypto/elliptic"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
)

// marshalTuple renders its arguments as a JSON array rather than an object,
// matching spec.md §6's `[buy_id, sell_id, amount_u64]` pair encoding.
func marshalTuple(values ...interface{}) ([]byte, error) {
	return json.Marshal(values)
}

// Coord is a curve point split into its affine x/y coordinates, each
// 32-byte big-endian hex, per spec.md §6's bit-exact serialized format.
// pkg/crypto/curve deliberately stops at a single SEC1-compressed byte
// string (curve.Point.Serialize); splitting it into {x, y} is an API-
// boundary concern, done here via the standard library's NIST P-256
// implementation rather than guessing at circl/group's curve-specific
// accessors.
type Coord struct {
	X string `json:"x"`
	Y string `json:"y"`
}

func pointToCoord(p curve.Point) (Coord, error) {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), p.Serialize())
	if x == nil {
		return Coord{}, fmt.Errorf("api: point does not decode as a P-256 coordinate")
	}
	return Coord{X: hexPad32(x), Y: hexPad32(y)}, nil
}

func coordToPoint(c Coord) (curve.Point, error) {
	xb, err := hex.DecodeString(c.X)
	if err != nil {
		return curve.Point{}, fmt.Errorf("api: decode x: %w", err)
	}
	yb, err := hex.DecodeString(c.Y)
	if err != nil {
		return curve.Point{}, fmt.Errorf("api: decode y: %w", err)
	}
	b := elliptic.MarshalCompressed(elliptic.P256(), new(big.Int).SetBytes(xb), new(big.Int).SetBytes(yb))
	return curve.DeserializePoint(b)
}

func hexPad32(n *big.Int) string {
	var buf [32]byte
	n.FillBytes(buf[:])
	return hex.EncodeToString(buf[:])
}

func scalarToHex(s curve.Scalar) string { return hex.EncodeToString(s.Serialize()) }

func hexToScalar(s string) (curve.Scalar, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return curve.Scalar{}, fmt.Errorf("api: decode scalar: %w", err)
	}
	return curve.DeserializeScalar(b)
}

// CiphertextJSON is the `{ c1: {x,y}, c2: {x,y} }` wire shape.
type CiphertextJSON struct {
	C1 Coord `json:"c1"`
	C2 Coord `json:"c2"`
}

func ciphertextToJSON(ct elgamal.Ciphertext) (CiphertextJSON, error) {
	c1, err := pointToCoord(ct.C1)
	if err != nil {
		return CiphertextJSON{}, fmt.Errorf("c1: %w", err)
	}
	c2, err := pointToCoord(ct.C2)
	if err != nil {
		return CiphertextJSON{}, fmt.Errorf("c2: %w", err)
	}
	return CiphertextJSON{C1: c1, C2: c2}, nil
}

func jsonToCiphertext(c CiphertextJSON) (elgamal.Ciphertext, error) {
	c1, err := coordToPoint(c.C1)
	if err != nil {
		return elgamal.Ciphertext{}, fmt.Errorf("c1: %w", err)
	}
	c2, err := coordToPoint(c.C2)
	if err != nil {
		return elgamal.Ciphertext{}, fmt.Errorf("c2: %w", err)
	}
	return elgamal.Ciphertext{C1: c1, C2: c2}, nil
}

// VRFProofJSON is the `{ gamma: {x,y}, c: scalar, s: scalar }` wire shape.
type VRFProofJSON struct {
	Gamma Coord  `json:"gamma"`
	C     string `json:"c"`
	S     string `json:"s"`
}

func vrfProofToJSON(proof vrf.Proof) (VRFProofJSON, error) {
	g, err := pointToCoord(proof.Gamma)
	if err != nil {
		return VRFProofJSON{}, fmt.Errorf("gamma: %w", err)
	}
	return VRFProofJSON{Gamma: g, C: scalarToHex(proof.C), S: scalarToHex(proof.S)}, nil
}

// dleqProofToHex encodes a DLEqProof as hex(gob(...)), the same opaque-bytes
// convention used for the solvency proof: its four curve fields have no
// bit-exact wire shape of their own in spec.md §6, only the containing
// "proof (bytes)" field does.
func dleqProofToHex(proof curve.DLEqProof) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(proof); err != nil {
		return "", fmt.Errorf("api: encode dleq proof: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// decryptionTranscriptToJSON converts a round result's decryption log into
// spec.md §6's `decryption_transcript: [{index, proof, partial: {x,y}}]`.
func decryptionTranscriptToJSON(entries []round.DecryptionTranscriptEntry) ([]DecryptionTranscriptEntry, error) {
	out := make([]DecryptionTranscriptEntry, len(entries))
	for i, e := range entries {
		proofHex, err := dleqProofToHex(e.Proof)
		if err != nil {
			return nil, err
		}
		partial, err := pointToCoord(e.Partial)
		if err != nil {
			return nil, fmt.Errorf("partial: %w", err)
		}
		out[i] = DecryptionTranscriptEntry{Index: e.ExecutorIndex, Proof: proofHex, Partial: partial}
	}
	return out, nil
}

// bulletproofFromHex decodes an order's solvency_proof field: hex(gob(...))
// over BulletProof, the same opaque-bytes convention as dleqProofToHex.
func bulletproofFromHex(s string) (bulletproof.BulletProof, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return bulletproof.BulletProof{}, fmt.Errorf("api: decode solvency proof: %w", err)
	}
	var proof bulletproof.BulletProof
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&proof); err != nil {
		return bulletproof.BulletProof{}, fmt.Errorf("api: decode solvency proof: %w", err)
	}
	return proof, nil
}

// matchingResultToJSON converts a completed round result into the full
// MatchingResult wire shape spec.md §6 names.
func matchingResultToJSON(res *round.Result) (MatchingResult, error) {
	pairs := make([]Pair, len(res.Pairs))
	for i, p := range res.Pairs {
		pairs[i] = Pair{BuyID: p.BuyID, SellID: p.SellID, Amount: p.Amount}
	}
	vrfJSON, err := vrfProofToJSON(vrf.Proof{Gamma: res.VRFGamma, C: res.VRFProofC, S: res.VRFProofS})
	if err != nil {
		return MatchingResult{}, fmt.Errorf("vrf: %w", err)
	}
	transcript, err := decryptionTranscriptToJSON(res.DecryptionLog)
	if err != nil {
		return MatchingResult{}, fmt.Errorf("decryption_transcript: %w", err)
	}
	return MatchingResult{
		RoundID:              res.RoundID,
		ClearingPrice:        res.ClearingPrice,
		MatchedVolume:        res.TotalMatchedVolume,
		Pairs:                pairs,
		VRF:                  vrfJSON,
		DecryptionTranscript: transcript,
	}, nil
}
