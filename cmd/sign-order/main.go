// Command sign-order builds and signs an order submission offline, the way
// a PhantomPool client wallet would before ever talking to the API server:
// nothing here needs network access or the running node.
package main

import (
	"bytes"
	"crypto/elliptic"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/wallet"
)

// wireCoord and wireCiphertext mirror pkg/api's Coord/CiphertextJSON wire
// shapes. Duplicated rather than imported: a client signing tool has no
// business depending on the server's internal package, only on the wire
// format it documents.
type wireCoord struct {
	X string `json:"x"`
	Y string `json:"y"`
}

type wireCiphertext struct {
	C1 wireCoord `json:"c1"`
	C2 wireCoord `json:"c2"`
}

func toWireCoord(p curve.Point) (wireCoord, error) {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), p.Serialize())
	if x == nil {
		return wireCoord{}, fmt.Errorf("point does not decode as a P-256 coordinate")
	}
	var xb, yb [32]byte
	x.FillBytes(xb[:])
	y.FillBytes(yb[:])
	return wireCoord{X: hex.EncodeToString(xb[:]), Y: hex.EncodeToString(yb[:])}, nil
}

func toWireCiphertext(c elgamal.Ciphertext) (wireCiphertext, error) {
	c1, err := toWireCoord(c.C1)
	if err != nil {
		return wireCiphertext{}, fmt.Errorf("c1: %w", err)
	}
	c2, err := toWireCoord(c.C2)
	if err != nil {
		return wireCiphertext{}, fmt.Errorf("c2: %w", err)
	}
	return wireCiphertext{C1: c1, C2: c2}, nil
}

type orderRequest struct {
	Owner               string         `json:"owner"`
	Side                string         `json:"side"`
	EncryptedAmount     wireCiphertext `json:"encrypted_amount"`
	EncryptedLimitPrice wireCiphertext `json:"encrypted_limit_price"`
	TickIndex           uint64         `json:"tick_index"`
	SolvencyProof       string         `json:"solvency_proof"`
	Signature           string         `json:"signature"`
	Nonce               uint64         `json:"nonce"`
	SubmitTime          int64          `json:"submit_time"`
}

func main() {
	var (
		privateKeyHex = flag.String("private-key", "", "hex-encoded secp256k1 private key; a fresh one is generated if empty")
		marketPKHex   = flag.String("market-pk", "", "hex-encoded market ElGamal public key (SEC1-compressed); a demo keypair is generated if empty")
		symbol        = flag.String("symbol", "BASE-QUOTE", "market symbol")
		side          = flag.String("side", "buy", "buy or sell")
		amount        = flag.Uint64("amount", 1000, "order amount in micro-units")
		limitPrice    = flag.Uint64("limit-price", 100, "limit price in micro-units")
		tickSize      = flag.Uint64("tick-size", 1, "market tick size, used to compute tick_index")
		nonce         = flag.Uint64("nonce", 1, "owner-scoped replay-protection nonce")
		submitTime    = flag.Int64("submit-time", 0, "unix millis; defaults to 0, fill in with wall-clock time before submitting")
	)
	flag.Parse()

	signer, err := loadOrGenerateSigner(*privateKeyHex)
	if err != nil {
		fail("load signer: %v", err)
	}

	marketPK, err := loadOrGenerateMarketKey(*marketPKHex)
	if err != nil {
		fail("load market key: %v", err)
	}

	var orderSide orderpool.Side
	switch *side {
	case "buy":
		orderSide = orderpool.Buy
	case "sell":
		orderSide = orderpool.Sell
	default:
		fail("side must be buy or sell, got %q", *side)
	}

	params := market.Params{Symbol: *symbol, TickSize: *tickSize}
	tickIndex := params.TickIndex(*limitPrice)

	encAmount, err := elgamal.Encrypt(marketPK, *amount, 1<<40)
	if err != nil {
		fail("encrypt amount: %v", err)
	}
	encPrice, err := elgamal.Encrypt(marketPK, *limitPrice, 1<<40)
	if err != nil {
		fail("encrypt limit price: %v", err)
	}

	gamma, err := curve.RandomScalar()
	if err != nil {
		fail("sample blinding factor: %v", err)
	}
	bpParams, err := bulletproof.Setup(bulletproof.DefaultNBits)
	if err != nil {
		fail("bulletproof setup: %v", err)
	}
	proof, err := bulletproof.Prove(bpParams, *amount, gamma)
	if err != nil {
		fail("prove solvency: %v", err)
	}
	proofHex, err := gobHex(proof)
	if err != nil {
		fail("encode solvency proof: %v", err)
	}

	order := &orderpool.Order{
		Owner:         signer.Address().Hex(),
		Market:        *symbol,
		Side:          orderSide,
		TickIndex:     tickIndex,
		SolvencyProof: proof,
		SubmitTime:    *submitTime,
		Nonce:         *nonce,
	}
	digest := gethcrypto.Keccak256Hash(order.SigningMessage())
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		fail("sign: %v", err)
	}

	if !wallet.VerifySignature(signer.Address(), order.SigningMessage(), sig) {
		fail("internal error: signature does not verify against its own owner")
	}

	wireAmount, err := toWireCiphertext(encAmount)
	if err != nil {
		fail("encode amount ciphertext: %v", err)
	}
	wirePrice, err := toWireCiphertext(encPrice)
	if err != nil {
		fail("encode limit price ciphertext: %v", err)
	}

	req := orderRequest{
		Owner:               order.Owner,
		Side:                *side,
		EncryptedAmount:     wireAmount,
		EncryptedLimitPrice: wirePrice,
		TickIndex:           tickIndex,
		SolvencyProof:       proofHex,
		Signature:           hex.EncodeToString(sig),
		Nonce:               *nonce,
		SubmitTime:          *submitTime,
	}

	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		fail("marshal order request: %v", err)
	}

	fmt.Printf("Owner:        %s\n", order.Owner)
	fmt.Printf("Private key:  %s (KEEP SECRET)\n", signer.PrivateKeyHex())
	fmt.Println()
	fmt.Println("Signed order request:")
	fmt.Println(string(body))
	fmt.Println()
	fmt.Printf("Submit with: curl -X POST http://localhost:8080/api/v1/markets/%s/orders -d @order.json\n", *symbol)
}

func loadOrGenerateSigner(privateKeyHex string) (*wallet.Signer, error) {
	if privateKeyHex == "" {
		fmt.Println("No --private-key given, generating a fresh keypair.")
		return wallet.GenerateKey()
	}
	return wallet.FromPrivateKeyHex(privateKeyHex)
}

func loadOrGenerateMarketKey(marketPKHex string) (curve.Point, error) {
	if marketPKHex == "" {
		fmt.Println("No --market-pk given; generating a demo ElGamal keypair. In production, fetch the real market public key from the running node instead of inventing one.")
		kp, err := elgamal.KeyGen()
		if err != nil {
			return curve.Point{}, err
		}
		return kp.PK, nil
	}
	b, err := hex.DecodeString(marketPKHex)
	if err != nil {
		return curve.Point{}, fmt.Errorf("decode market-pk: %w", err)
	}
	return curve.DeserializePoint(b)
}

func gobHex(v any) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
