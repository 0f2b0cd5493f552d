package curve

// DLEqProof is a non-interactive Schnorr-style proof of equality of discrete
// logs: given bases (G1, G2) and images (Y1, Y2), it proves knowledge of a
// scalar x such that Y1 = x*G1 and Y2 = x*G2, without revealing x.
//
// Both spec.md §4.2's partial-decryption proof (G1=G, Y1=PK_i, G2=C1,
// Y2=D_i) and §4.4's VRF proof (G1=G, Y1=PK, G2=H, Y2=gamma) are instances
// of this one Sigma protocol, following the Chaum-Pedersen construction
// shown by the wider example pack's elgamal decryption-proof implementation.
type DLEqProof struct {
	// Commitments to the prover's randomness under each base.
	A1, A2 Point
	// Fiat-Shamir challenge.
	C Scalar
	// Linear response.
	S Scalar
}

// ProveDLEq builds a DLEqProof that x is the discrete log of both y1 (wrt
// g1) and y2 (wrt g2). dst domain-separates the Fiat-Shamir hash so proofs
// built for one purpose (e.g. VRF) can't be confused with another (e.g.
// partial decryption).
func ProveDLEq(dst string, g1, g2, y1, y2 Point, x Scalar) (DLEqProof, error) {
	k, err := RandomScalar()
	if err != nil {
		return DLEqProof{}, err
	}
	a1 := g1.Mul(k)
	a2 := g2.Mul(k)
	c := HashToScalar(dst, g1.Serialize(), g2.Serialize(), y1.Serialize(), y2.Serialize(), a1.Serialize(), a2.Serialize())
	s := k.Add(c.Mul(x))
	return DLEqProof{A1: a1, A2: a2, C: c, S: s}, nil
}

// VerifyDLEq checks a DLEqProof against the claimed bases and images.
func VerifyDLEq(dst string, g1, g2, y1, y2 Point, proof DLEqProof) bool {
	c := HashToScalar(dst, g1.Serialize(), g2.Serialize(), y1.Serialize(), y2.Serialize(), proof.A1.Serialize(), proof.A2.Serialize())
	if !c.Equal(proof.C) {
		return false
	}
	// s*G1 == A1 + c*Y1
	lhs1 := g1.Mul(proof.S)
	rhs1 := proof.A1.Add(y1.Mul(proof.C))
	if !lhs1.Equal(rhs1) {
		return false
	}
	// s*G2 == A2 + c*Y2
	lhs2 := g2.Mul(proof.S)
	rhs2 := proof.A2.Add(y2.Mul(proof.C))
	return lhs2.Equal(rhs2)
}
