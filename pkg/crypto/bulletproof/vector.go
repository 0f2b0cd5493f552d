package bulletproof

import "github.com/phantompool/phantompool/pkg/crypto/curve"

func vecAdd(a, b []curve.Scalar) []curve.Scalar {
	out := make([]curve.Scalar, len(a))
	for i := range a {
		out[i] = a[i].Add(b[i])
	}
	return out
}

func vecSub(a, b []curve.Scalar) []curve.Scalar {
	out := make([]curve.Scalar, len(a))
	for i := range a {
		out[i] = a[i].Sub(b[i])
	}
	return out
}

// vecHadamard is the componentwise (Hadamard) product a ∘ b.
func vecHadamard(a, b []curve.Scalar) []curve.Scalar {
	out := make([]curve.Scalar, len(a))
	for i := range a {
		out[i] = a[i].Mul(b[i])
	}
	return out
}

func vecScale(a []curve.Scalar, s curve.Scalar) []curve.Scalar {
	out := make([]curve.Scalar, len(a))
	for i := range a {
		out[i] = a[i].Mul(s)
	}
	return out
}

func vecAddScalar(a []curve.Scalar, s curve.Scalar) []curve.Scalar {
	out := make([]curve.Scalar, len(a))
	for i := range a {
		out[i] = a[i].Add(s)
	}
	return out
}

// innerProduct computes <a, b> = Σ a_i * b_i.
func innerProduct(a, b []curve.Scalar) curve.Scalar {
	acc := curve.ZeroScalar()
	for i := range a {
		acc = acc.Add(a[i].Mul(b[i]))
	}
	return acc
}

// powers returns (x^0, x^1, ..., x^{n-1}).
func powers(x curve.Scalar, n int) []curve.Scalar {
	out := make([]curve.Scalar, n)
	cur := curve.NewScalarFromUint64(1)
	for i := 0; i < n; i++ {
		out[i] = cur
		cur = cur.Mul(x)
	}
	return out
}

// multiScalarMul computes Σ scalars[i] * points[i]. Production bulletproof
// implementations use a single Pippenger-style multi-exponentiation; this
// is the straightforward O(n) fallback, which is what the verifier contract
// in spec.md §4.5 ("single multi-exponentiation") names conceptually — the
// batching happens at the call-site level in BatchVerify, not by a fancier
// algorithm here.
func multiScalarMul(scalars []curve.Scalar, points []curve.Point) curve.Point {
	acc := curve.Infinity()
	for i := range scalars {
		acc = acc.Add(points[i].Mul(scalars[i]))
	}
	return acc
}

func invertVector(v []curve.Scalar) ([]curve.Scalar, error) {
	out := make([]curve.Scalar, len(v))
	for i, s := range v {
		inv, err := s.Inverse()
		if err != nil {
			return nil, err
		}
		out[i] = inv
	}
	return out, nil
}
