package executor

import (
	"context"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/tss"
	"github.com/phantompool/phantompool/pkg/transport"
)

// RegisterDevnetHandler wires one in-process executor holding skShare and
// signer behind endpoint on lt, answering the "decrypt" and "sign" ops a
// Coordinator issues. It exists so a single binary can simulate the full
// 5-node committee over a loopback transport instead of five separate
// processes; a production deployment runs this same partial-decrypt/
// SignShare logic inside a standalone executor process instead.
func RegisterDevnetHandler(lt *transport.LoopbackTransport, endpoint string, index int, skShare curve.Scalar, signer *tss.Signer) {
	pkShare := curve.MulGen(skShare)
	lt.Register(endpoint, func(ctx context.Context, req transport.Request) (transport.Response, error) {
		switch req.Op {
		case "decrypt":
			var wire decryptWireRequest
			if err := gobDecode(req.Payload, &wire); err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			c1, err := curve.DeserializePoint(wire.C1)
			if err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			pd, err := elgamal.PartialDecrypt(index, skShare, pkShare, c1)
			if err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			payload, err := gobEncode(decryptWireResponse{
				Index:   pd.Index,
				D:       pd.D.Serialize(),
				ProofA1: pd.Proof.A1.Serialize(),
				ProofA2: pd.Proof.A2.Serialize(),
				ProofC:  pd.Proof.C.Serialize(),
				ProofS:  pd.Proof.S.Serialize(),
			})
			if err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			return transport.Response{Payload: payload}, nil
		case "sign":
			var wire signWireRequest
			if err := gobDecode(req.Payload, &wire); err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			share, err := signer.SignShare(wire.Commitment)
			if err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			payload, err := gobEncode(signWireResponse{Index: index, Signature: share})
			if err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			return transport.Response{Payload: payload}, nil
		default:
			return transport.Response{Err: "unknown op"}, nil
		}
	})
}
