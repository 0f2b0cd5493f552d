package bulletproof

import (
	"testing"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
)

func TestProveVerifyRoundTrip(t *testing.T) {
	params, err := Setup(16)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	gamma, err := curve.RandomScalar()
	if err != nil {
		t.Fatalf("gamma: %v", err)
	}
	proof, err := Prove(params, 12345, gamma)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if !Verify(params, proof) {
		t.Fatalf("valid range proof rejected")
	}
}

func TestProveVerifyZeroAndMax(t *testing.T) {
	params, err := Setup(8)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	for _, v := range []uint64{0, 1, 255} {
		gamma, _ := curve.RandomScalar()
		proof, err := Prove(params, v, gamma)
		if err != nil {
			t.Fatalf("prove(%d): %v", v, err)
		}
		if !Verify(params, proof) {
			t.Fatalf("valid range proof for v=%d rejected", v)
		}
	}
}

func TestProveRejectsOutOfRangeValue(t *testing.T) {
	params, err := Setup(8)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	gamma, _ := curve.RandomScalar()
	if _, err := Prove(params, 256, gamma); err == nil {
		t.Fatalf("expected error proving a value that does not fit in 8 bits")
	}
}

func TestVerifyRejectsTamperedCommitment(t *testing.T) {
	params, err := Setup(16)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	gamma, _ := curve.RandomScalar()
	proof, err := Prove(params, 42, gamma)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	proof.V = proof.V.Add(params.G)
	if Verify(params, proof) {
		t.Fatalf("proof verified against a tampered commitment")
	}
}

func TestVerifyRejectsWrongBitWidth(t *testing.T) {
	small, err := Setup(8)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	large, err := Setup(16)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	gamma, _ := curve.RandomScalar()
	proof, err := Prove(small, 7, gamma)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if Verify(large, proof) {
		t.Fatalf("proof built for one bit width verified under another")
	}
}

func TestBatchVerifyAcceptsAllValid(t *testing.T) {
	params, err := Setup(16)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	var proofs []BulletProof
	for _, v := range []uint64{1, 99, 1000, 65535} {
		gamma, _ := curve.RandomScalar()
		proof, err := Prove(params, v, gamma)
		if err != nil {
			t.Fatalf("prove(%d): %v", v, err)
		}
		proofs = append(proofs, proof)
	}
	if !BatchVerify(params, proofs) {
		t.Fatalf("batch verify rejected an all-valid proof set")
	}
}

func TestBatchVerifyRejectsOneTamperedProof(t *testing.T) {
	params, err := Setup(16)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	var proofs []BulletProof
	for _, v := range []uint64{1, 99, 1000} {
		gamma, _ := curve.RandomScalar()
		proof, err := Prove(params, v, gamma)
		if err != nil {
			t.Fatalf("prove(%d): %v", v, err)
		}
		proofs = append(proofs, proof)
	}
	proofs[1].THat = proofs[1].THat.Add(curve.NewScalarFromUint64(1))
	if BatchVerify(params, proofs) {
		t.Fatalf("batch verify accepted a set containing a tampered proof")
	}
}

func TestSetupRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := Setup(40); err != ErrInvalidBitWidth {
		t.Fatalf("expected ErrInvalidBitWidth for n_bits=40, got %v", err)
	}
}
