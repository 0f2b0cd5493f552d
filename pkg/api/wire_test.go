package api

import (
	"testing"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
)

func TestCoordRoundTripsPoint(t *testing.T) {
	p := curve.MulGen(curve.NewScalarFromUint64(42))
	c, err := pointToCoord(p)
	if err != nil {
		t.Fatalf("pointToCoord: %v", err)
	}
	got, err := coordToPoint(c)
	if err != nil {
		t.Fatalf("coordToPoint: %v", err)
	}
	if !got.Equal(p) {
		t.Fatalf("point did not round-trip through Coord")
	}
}

func TestCiphertextJSONRoundTrips(t *testing.T) {
	kp, err := elgamal.KeyGen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	ct, err := elgamal.Encrypt(kp.PK, 17, 1<<20)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	wire, err := ciphertextToJSON(ct)
	if err != nil {
		t.Fatalf("ciphertextToJSON: %v", err)
	}
	got, err := jsonToCiphertext(wire)
	if err != nil {
		t.Fatalf("jsonToCiphertext: %v", err)
	}
	if !got.C1.Equal(ct.C1) || !got.C2.Equal(ct.C2) {
		t.Fatalf("ciphertext did not round-trip through JSON")
	}
}

func TestVRFProofToJSONIncludesGamma(t *testing.T) {
	sk, _ := curve.RandomScalar()
	_, proof, err := vrf.Prove(sk, []byte("round-seed"))
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	wire, err := vrfProofToJSON(proof)
	if err != nil {
		t.Fatalf("vrfProofToJSON: %v", err)
	}
	gotGamma, err := coordToPoint(wire.Gamma)
	if err != nil {
		t.Fatalf("coordToPoint: %v", err)
	}
	if !gotGamma.Equal(proof.Gamma) {
		t.Fatalf("gamma did not round-trip through VRFProofJSON")
	}
}

func TestScalarHexRoundTrips(t *testing.T) {
	s, _ := curve.RandomScalar()
	got, err := hexToScalar(scalarToHex(s))
	if err != nil {
		t.Fatalf("hexToScalar: %v", err)
	}
	if !got.Equal(s) {
		t.Fatalf("scalar did not round-trip through hex")
	}
}

func TestPairMarshalsAsJSONArray(t *testing.T) {
	p := Pair{BuyID: "b1", SellID: "s1", Amount: 42}
	b, err := p.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `["b1","s1",42]`
	if string(b) != want {
		t.Fatalf("pair json = %s, want %s", b, want)
	}
}
