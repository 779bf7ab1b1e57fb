package payment_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	walletgate "github.com/walletgate/walletgate-go"
	"github.com/walletgate/walletgate-go/fake"
	"github.com/walletgate/walletgate-go/ledger"
	"github.com/walletgate/walletgate-go/payment"
)

const (
	testPayTo = "0x742d35cc6634c0532925a3b844bc9e7595f8bbf5"
	testAsset = "0x036cbd53842c5426634e7929541ec2318f3dcf7e"
)

func testConfig() walletgate.Config {
	return walletgate.Config{
		PayTo:         testPayTo,
		Network:       "base-sepolia",
		Asset:         testAsset,
		AssetDecimals: 6,
		Domain: walletgate.TypedDataDomain{
			Name:              "USDC",
			Version:           "2",
			ChainID:           84532,
			VerifyingContract: testAsset,
		},
	}
}

func newPayer(t *testing.T) (*ecdsa.PrivateKey, string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	address := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	return key, address, hex.EncodeToString(crypto.FromECDSA(key))
}

func randomNonce(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		t.Fatal(err)
	}
	return "0x" + hex.EncodeToString(buf)
}

// signedHeader builds a valid authorization for req, signs it with keyHex,
// and returns the encoded header and the authorization.
func signedHeader(t *testing.T, from, keyHex string, req walletgate.PaymentRequirements, now time.Time) (string, *walletgate.PaymentAuthorization) {
	t.Helper()
	auth := &walletgate.PaymentAuthorization{
		From:        from,
		To:          req.PayTo,
		Value:       req.MaxAmountRequired,
		ValidAfter:  now.Add(-time.Minute).Unix(),
		ValidBefore: now.Add(5 * time.Minute).Unix(),
		Nonce:       randomNonce(t),
	}
	sig, err := payment.SignAuthorization(auth, req.Extra, keyHex)
	if err != nil {
		t.Fatal(err)
	}
	header, err := payment.EncodeHeader(&walletgate.PaymentPayload{
		Signature:     sig,
		Authorization: auth,
	})
	if err != nil {
		t.Fatal(err)
	}
	return header, auth
}

func TestBuildRequirementsIsDeterministic(t *testing.T) {
	b := payment.NewRequirementsBuilder(testConfig())

	a := b.Build("/premium/echo", "10000", "premium echo")
	c := b.Build("/premium/echo", "10000", "premium echo")
	if !reflect.DeepEqual(a, c) {
		t.Errorf("Build() not deterministic:\n%+v\n%+v", a, c)
	}

	if a.Scheme != payment.SchemeExact {
		t.Errorf("Scheme = %q, want %q", a.Scheme, payment.SchemeExact)
	}
	if a.PayTo != testPayTo {
		t.Errorf("PayTo = %q, want %q", a.PayTo, testPayTo)
	}
	if a.MaxAmountRequired != "10000" {
		t.Errorf("MaxAmountRequired = %q, want 10000", a.MaxAmountRequired)
	}
	if a.AssetDecimals != 6 {
		t.Errorf("AssetDecimals = %d, want 6", a.AssetDecimals)
	}
	if a.Extra.ChainID != 84532 {
		t.Errorf("Extra.ChainID = %d, want 84532", a.Extra.ChainID)
	}
}

func TestVerifyAcceptsSignedAuthorization(t *testing.T) {
	_, from, keyHex := newPayer(t)
	v := payment.NewVerifier(ledger.NewMemory())
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	header, auth := signedHeader(t, from, keyHex, req, time.Now())

	result, payload, err := v.Verify(context.Background(), header, req)
	if err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}
	if result.Payer != from {
		t.Errorf("Payer = %q, want %q", result.Payer, from)
	}
	if result.Value != "10000" {
		t.Errorf("Value = %q, want 10000", result.Value)
	}
	if payload.Authorization.Nonce != auth.Nonce {
		t.Errorf("payload nonce = %q, want %q", payload.Authorization.Nonce, auth.Nonce)
	}
}

func TestVerifyAcceptsOverpayment(t *testing.T) {
	_, from, keyHex := newPayer(t)
	v := payment.NewVerifier(ledger.NewMemory())
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	now := time.Now()
	auth := &walletgate.PaymentAuthorization{
		From:        from,
		To:          req.PayTo,
		Value:       "20000",
		ValidAfter:  now.Add(-time.Minute).Unix(),
		ValidBefore: now.Add(5 * time.Minute).Unix(),
		Nonce:       randomNonce(t),
	}
	sig, err := payment.SignAuthorization(auth, req.Extra, keyHex)
	if err != nil {
		t.Fatal(err)
	}
	header, _ := payment.EncodeHeader(&walletgate.PaymentPayload{Signature: sig, Authorization: auth})

	result, _, err := v.Verify(context.Background(), header, req)
	if err != nil {
		t.Fatalf("Verify() should accept value above the price: %v", err)
	}
	if result.Value != "20000" {
		t.Errorf("Value = %q, want 20000", result.Value)
	}
}

func TestVerifyMalformedHeader(t *testing.T) {
	v := payment.NewVerifier(ledger.NewMemory())
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	for _, raw := range []string{"", "not base64!!", "aGVsbG8="} {
		_, _, err := v.Verify(context.Background(), raw, req)
		wantVerifyReason(t, err, walletgate.ReasonMalformedPayment)
	}
}

func TestVerifySignatureFromWrongKey(t *testing.T) {
	_, from, _ := newPayer(t)
	_, _, otherKeyHex := newPayer(t)
	v := payment.NewVerifier(ledger.NewMemory())
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	header, _ := signedHeader(t, from, otherKeyHex, req, time.Now())
	_, _, err := v.Verify(context.Background(), header, req)
	wantVerifyReason(t, err, walletgate.ReasonSignatureInvalid)
}

func TestVerifyTamperedValue(t *testing.T) {
	_, from, keyHex := newPayer(t)
	v := payment.NewVerifier(ledger.NewMemory())
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	now := time.Now()
	auth := &walletgate.PaymentAuthorization{
		From:        from,
		To:          req.PayTo,
		Value:       "10000",
		ValidAfter:  now.Add(-time.Minute).Unix(),
		ValidBefore: now.Add(5 * time.Minute).Unix(),
		Nonce:       randomNonce(t),
	}
	sig, err := payment.SignAuthorization(auth, req.Extra, keyHex)
	if err != nil {
		t.Fatal(err)
	}

	// Inflate the value after signing; the recovered signer will no longer
	// match the claimed sender.
	auth.Value = "999999"
	header, _ := payment.EncodeHeader(&walletgate.PaymentPayload{Signature: sig, Authorization: auth})

	_, _, err = v.Verify(context.Background(), header, req)
	wantVerifyReason(t, err, walletgate.ReasonSignatureInvalid)
}

func TestVerifyRecipientMismatch(t *testing.T) {
	_, from, keyHex := newPayer(t)
	_, other, _ := newPayer(t)
	v := payment.NewVerifier(ledger.NewMemory())
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	now := time.Now()
	auth := &walletgate.PaymentAuthorization{
		From:        from,
		To:          other,
		Value:       "10000",
		ValidAfter:  now.Add(-time.Minute).Unix(),
		ValidBefore: now.Add(5 * time.Minute).Unix(),
		Nonce:       randomNonce(t),
	}
	sig, err := payment.SignAuthorization(auth, req.Extra, keyHex)
	if err != nil {
		t.Fatal(err)
	}
	header, _ := payment.EncodeHeader(&walletgate.PaymentPayload{Signature: sig, Authorization: auth})

	_, _, err = v.Verify(context.Background(), header, req)
	wantVerifyReason(t, err, walletgate.ReasonRecipientMismatch)
}

func TestVerifyInsufficientValue(t *testing.T) {
	_, from, keyHex := newPayer(t)
	v := payment.NewVerifier(ledger.NewMemory())
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	now := time.Now()
	auth := &walletgate.PaymentAuthorization{
		From:        from,
		To:          req.PayTo,
		Value:       "9999",
		ValidAfter:  now.Add(-time.Minute).Unix(),
		ValidBefore: now.Add(5 * time.Minute).Unix(),
		Nonce:       randomNonce(t),
	}
	sig, err := payment.SignAuthorization(auth, req.Extra, keyHex)
	if err != nil {
		t.Fatal(err)
	}
	header, _ := payment.EncodeHeader(&walletgate.PaymentPayload{Signature: sig, Authorization: auth})

	_, _, err = v.Verify(context.Background(), header, req)
	wantVerifyReason(t, err, walletgate.ReasonInsufficientValue)
}

func TestVerifyValidityWindow(t *testing.T) {
	_, from, keyHex := newPayer(t)
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	header, _ := signedHeader(t, from, keyHex, req, base)

	// Before validAfter.
	clock := fake.NewClock(base.Add(-time.Hour))
	v := payment.NewVerifier(ledger.NewMemory(), payment.WithClock(clock.Now))
	_, _, err := v.Verify(context.Background(), header, req)
	wantVerifyReason(t, err, walletgate.ReasonNotYetValid)

	// After validBefore.
	clock.Advance(2 * time.Hour)
	_, _, err = v.Verify(context.Background(), header, req)
	wantVerifyReason(t, err, walletgate.ReasonAuthorizationExpired)

	// Inside the window.
	clock = fake.NewClock(base)
	v = payment.NewVerifier(ledger.NewMemory(), payment.WithClock(clock.Now))
	if _, _, err := v.Verify(context.Background(), header, req); err != nil {
		t.Errorf("Verify() inside window: %v", err)
	}
}

func TestVerifyReplayedAuthorization(t *testing.T) {
	_, from, keyHex := newPayer(t)
	l := ledger.NewMemory()
	v := payment.NewVerifier(l)
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")
	ctx := context.Background()

	header, auth := signedHeader(t, from, keyHex, req, time.Now())

	// A settled record for the nonce makes the authorization a replay.
	if _, err := l.Claim(ctx, walletgate.PaymentRecord{Nonce: auth.Nonce, Payer: from}); err != nil {
		t.Fatal(err)
	}
	if err := l.Resolve(ctx, auth.Nonce, walletgate.EventSettled, "0xtx", ""); err != nil {
		t.Fatal(err)
	}

	_, _, err := v.Verify(ctx, header, req)
	wantVerifyReason(t, err, walletgate.ReasonReplayedAuthorization)
}

func TestVerifyInFlightNonceIsNotReplay(t *testing.T) {
	_, from, keyHex := newPayer(t)
	l := ledger.NewMemory()
	v := payment.NewVerifier(l)
	req := payment.NewRequirementsBuilder(testConfig()).Build("/premium/echo", "10000", "")
	ctx := context.Background()

	header, auth := signedHeader(t, from, keyHex, req, time.Now())

	// A requested (non-terminal) record does not make verification fail;
	// the settle claim decides ownership.
	if _, err := l.Claim(ctx, walletgate.PaymentRecord{Nonce: auth.Nonce, Payer: from}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := v.Verify(ctx, header, req); err != nil {
		t.Errorf("Verify() with in-flight record: %v", err)
	}
}

func wantVerifyReason(t *testing.T, err error, reason string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected verification failure with reason %q", reason)
	}
	pe, ok := walletgate.AsProtocolError(err)
	if !ok {
		t.Fatalf("error %v is not a ProtocolError", err)
	}
	if pe.Reason != reason {
		t.Errorf("reason = %q, want %q", pe.Reason, reason)
	}
	if pe.Code != walletgate.CodeVerificationFailed {
		t.Errorf("code = %q, want %q", pe.Code, walletgate.CodeVerificationFailed)
	}
}
