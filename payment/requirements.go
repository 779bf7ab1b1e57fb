// Package payment implements the payment track of the protocol: building
// the 402 challenge, verifying a client-signed transfer authorization, and
// driving settlement to a single authoritative outcome through the ledger.
package payment

import (
	walletgate "github.com/walletgate/walletgate-go"
)

// SchemeExact is the only payment scheme supported: a signed EIP-3009
// authorization for an exact transfer amount.
const SchemeExact = "exact"

// DefaultMaxTimeoutSeconds bounds how long a challenge stays answerable.
const DefaultMaxTimeoutSeconds = 300

// RequirementsBuilder produces the deterministic payment challenge for a
// priced resource. Build is a pure function of the builder's configuration
// and its arguments: identical inputs yield byte-identical requirements.
type RequirementsBuilder struct {
	payTo    string
	network  string
	asset    string
	decimals int
	domain   walletgate.TypedDataDomain
	timeout  int
}

// NewRequirementsBuilder creates a builder from protocol configuration.
// The typed-data domain embedded here is the same one the verifier uses to
// reconstruct signatures, so builder and verifier can never drift.
func NewRequirementsBuilder(cfg walletgate.Config) *RequirementsBuilder {
	return &RequirementsBuilder{
		payTo:    walletgate.CanonicalAddress(cfg.PayTo),
		network:  cfg.Network,
		asset:    walletgate.CanonicalAddress(cfg.Asset),
		decimals: cfg.AssetDecimals,
		domain:   cfg.Domain,
		timeout:  DefaultMaxTimeoutSeconds,
	}
}

// Build returns the payment requirements for a resource priced at the given
// amount of atomic units.
func (b *RequirementsBuilder) Build(resource, price, description string) walletgate.PaymentRequirements {
	return walletgate.PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           b.network,
		MaxAmountRequired: price,
		Resource:          resource,
		Description:       description,
		MimeType:          "application/json",
		PayTo:             b.payTo,
		MaxTimeoutSeconds: b.timeout,
		Asset:             b.asset,
		AssetDecimals:     b.decimals,
		Extra:             b.domain,
	}
}
