package siwe

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	walletgate "github.com/walletgate/walletgate-go"
)

// Verifier implements walletgate.IdentityVerifier for EIP-4361 messages.
//
// Checks run in a fixed order, each with its own failure reason: message
// shape, domain binding, expiry, signature recovery, then nonce consumption.
// The nonce is consumed if and only if every other check has passed, so a
// verification never succeeds without burning the nonce and never burns the
// nonce without succeeding.
type Verifier struct {
	domain    string
	nonces    walletgate.NonceStore
	clockSkew time.Duration
	now       func() time.Time
}

// compile-time check
var _ walletgate.IdentityVerifier = (*Verifier)(nil)

// Option configures the Verifier.
type Option func(*Verifier)

// WithClockSkew sets the tolerance applied to expiration checks.
// Default: 30 seconds.
func WithClockSkew(d time.Duration) Option {
	return func(v *Verifier) { v.clockSkew = d }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates an identity verifier bound to the service origin
// domain. Nonces are consumed from the given store on success.
func NewVerifier(domain string, nonces walletgate.NonceStore, opts ...Option) *Verifier {
	v := &Verifier{
		domain:    domain,
		nonces:    nonces,
		clockSkew: 30 * time.Second,
		now:       time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify validates the signed message and returns the canonical lowercase
// signer address, consuming the bound nonce.
func (v *Verifier) Verify(ctx context.Context, message, signature string) (string, error) {
	msg, err := Parse(message)
	if err != nil {
		return "", fail(walletgate.ReasonMalformedMessage, "malformed sign-in message", err)
	}
	if !walletgate.ValidAddress(msg.Address) {
		return "", fail(walletgate.ReasonMalformedMessage, "malformed address in message", nil)
	}

	if msg.Domain != v.domain {
		return "", fail(walletgate.ReasonDomainMismatch, "message domain does not match service origin", nil)
	}

	if !msg.ExpirationTime.IsZero() && v.now().After(msg.ExpirationTime.Add(v.clockSkew)) {
		return "", fail(walletgate.ReasonMessageExpired, "sign-in message has expired", nil)
	}

	sigBytes, err := decodeSignature(signature)
	if err != nil {
		return "", fail(walletgate.ReasonSignatureMismatch, "undecodable signature", err)
	}
	recovered, err := RecoverAddress(msg.String(), sigBytes)
	if err != nil {
		return "", fail(walletgate.ReasonSignatureMismatch, "signature recovery failed", err)
	}

	address := walletgate.CanonicalAddress(msg.Address)
	if recovered != address {
		return "", fail(walletgate.ReasonSignatureMismatch, "recovered signer does not match message address", nil)
	}

	if err := v.nonces.Consume(ctx, address, msg.Nonce); err != nil {
		return "", fail(walletgate.ReasonInvalidNonce, "nonce is not outstanding for this address", err)
	}

	return address, nil
}

func decodeSignature(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func fail(reason, message string, cause error) error {
	return walletgate.NewProtocolError(walletgate.CodeAuthenticationFailed, reason, message, cause)
}
