package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	walletgate "github.com/walletgate/walletgate-go"
)

// Verifier implements walletgate.PaymentVerifier. It validates a
// transport-encoded authorization against a requirement: header decoding,
// signature recovery over the EIP-712 digest, recipient, amount, validity
// window, and replay detection against the ledger. Verification mutates
// nothing; the ledger is only consulted for nonce presence.
type Verifier struct {
	ledger walletgate.Ledger
	now    func() time.Time
}

// compile-time check
var _ walletgate.PaymentVerifier = (*Verifier)(nil)

// Option configures the Verifier.
type Option func(*Verifier)

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a payment verifier. The ledger is used only for
// replay lookups.
func NewVerifier(l walletgate.Ledger, opts ...Option) *Verifier {
	v := &Verifier{ledger: l, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// DecodeHeader decodes the base64 JSON payment header into its structured
// payload without validating it.
func DecodeHeader(rawHeader string) (*walletgate.PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(rawHeader)
	if err != nil {
		return nil, fmt.Errorf("walletgate/payment: decode header: %w", err)
	}
	var payload walletgate.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("walletgate/payment: unmarshal header: %w", err)
	}
	if payload.Signature == "" || payload.Authorization == nil {
		return nil, fmt.Errorf("walletgate/payment: header missing signature or authorization")
	}
	auth := payload.Authorization
	if auth.From == "" || auth.To == "" || auth.Value == "" || auth.Nonce == "" {
		return nil, fmt.Errorf("walletgate/payment: authorization missing required fields")
	}
	return &payload, nil
}

// EncodeHeader encodes a payload to the base64 JSON header form. Exported
// for tests and client tooling.
func EncodeHeader(payload *walletgate.PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("walletgate/payment: marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Verify validates the raw header against the requirement. Each failure
// surfaces its own reason; on success the payer and value are returned
// along with the decoded payload for settlement.
func (v *Verifier) Verify(ctx context.Context, rawHeader string, req walletgate.PaymentRequirements) (*walletgate.VerifyResult, *walletgate.PaymentPayload, error) {
	payload, err := DecodeHeader(rawHeader)
	if err != nil {
		return nil, nil, verifyFail(walletgate.ReasonMalformedPayment, "undecodable payment header", err)
	}
	auth := payload.Authorization

	digest, err := authorizationDigest(auth, req.Extra)
	if err != nil {
		return nil, nil, verifyFail(walletgate.ReasonMalformedPayment, "unhashable authorization", err)
	}
	signer, err := recoverSigner(digest, payload.Signature)
	if err != nil {
		return nil, nil, verifyFail(walletgate.ReasonSignatureInvalid, "signature recovery failed", err)
	}
	if signer != walletgate.CanonicalAddress(auth.From) {
		return nil, nil, verifyFail(walletgate.ReasonSignatureInvalid, "signer does not match authorization sender", nil)
	}

	if walletgate.CanonicalAddress(auth.To) != req.PayTo {
		return nil, nil, verifyFail(walletgate.ReasonRecipientMismatch, "authorization recipient does not match payTo", nil)
	}

	value, required := new(big.Int), new(big.Int)
	if _, ok := value.SetString(auth.Value, 10); !ok {
		return nil, nil, verifyFail(walletgate.ReasonMalformedPayment, "non-decimal authorization value", nil)
	}
	if _, ok := required.SetString(req.MaxAmountRequired, 10); !ok {
		return nil, nil, verifyFail(walletgate.ReasonMalformedPayment, "non-decimal required amount", nil)
	}
	if value.Cmp(required) < 0 {
		return nil, nil, verifyFail(walletgate.ReasonInsufficientValue, "authorized value below required price", nil)
	}

	now := v.now().Unix()
	if now < auth.ValidAfter {
		return nil, nil, verifyFail(walletgate.ReasonNotYetValid, "authorization not yet valid", nil)
	}
	if now >= auth.ValidBefore {
		return nil, nil, verifyFail(walletgate.ReasonAuthorizationExpired, "authorization validity window has closed", nil)
	}

	rec, found, err := v.ledger.Get(ctx, auth.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("walletgate/payment: ledger lookup: %w", err)
	}
	if found && rec.Terminal() {
		return nil, nil, verifyFail(walletgate.ReasonReplayedAuthorization, "authorization nonce already settled or failed", nil)
	}

	return &walletgate.VerifyResult{
		Payer: walletgate.CanonicalAddress(auth.From),
		Value: auth.Value,
	}, payload, nil
}

func verifyFail(reason, message string, cause error) error {
	return walletgate.NewProtocolError(walletgate.CodeVerificationFailed, reason, message, cause)
}
