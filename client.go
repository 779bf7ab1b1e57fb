// Package walletgate provides the service-side protocol logic for gating
// paid digital resources behind wallet-signed micropayments, and for binding
// client identity to a wallet address via a challenge-response signing scheme.
//
// The package defines interfaces for nonce issuance, identity verification,
// credential issuing, payment verification, settlement, and the payment
// ledger. Concrete implementations are injected via Option functions, making
// the root package independent of any specific storage or settlement backend.
//
// Example usage:
//
//	client, err := walletgate.NewClient(
//	    walletgate.Config{PayTo: "0x742d...bbf5", Network: "base-sepolia"},
//	    walletgate.WithNonceStore(nonce.NewStore()),
//	    walletgate.WithLedger(ledger.NewMemory()),
//	)
package walletgate

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// addressRe matches a 0x-prefixed 40-hex-char EVM address.
var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s is a well-formed wallet address.
func ValidAddress(s string) bool { return addressRe.MatchString(s) }

// CanonicalAddress lowercases a wallet address to its canonical form.
func CanonicalAddress(s string) string { return strings.ToLower(s) }

// Client is the main entry point for protocol operations.
// Service implementations are injected via Option functions.
type Client struct {
	config      Config
	logger      *slog.Logger
	nonces      NonceStore
	identity    IdentityVerifier
	credentials CredentialService
	verifier    PaymentVerifier
	settler     PaymentSettler
	ledger      Ledger
	users       UserRepository
}

// Config holds protocol-wide behavior configuration.
type Config struct {
	// PayTo is the address that receives settled payments.
	PayTo string

	// Network is the settlement network identifier (e.g. "base-sepolia").
	Network string

	// Asset is the payment token contract address.
	Asset string

	// AssetDecimals is the token's decimal precision. Default: 6.
	AssetDecimals int

	// Domain is the EIP-712 signing domain shared by the requirement
	// builder and the payment verifier.
	Domain TypedDataDomain

	// NonceTTL is how long an issued identity nonce remains valid.
	// Default: 10 minutes.
	NonceTTL time.Duration

	// CredentialTTL is how long an issued access credential remains
	// valid. Default: 24 hours.
	CredentialTTL time.Duration

	// SettleTimeout bounds the settlement network call. Default: 30s.
	SettleTimeout time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithNonceStore sets the nonce store implementation.
func WithNonceStore(s NonceStore) Option {
	return func(c *Client) { c.nonces = s }
}

// WithIdentityVerifier sets the identity verification implementation.
func WithIdentityVerifier(v IdentityVerifier) Option {
	return func(c *Client) { c.identity = v }
}

// WithCredentialService sets the credential issuing implementation.
func WithCredentialService(s CredentialService) Option {
	return func(c *Client) { c.credentials = s }
}

// WithPaymentVerifier sets the payment verification implementation.
func WithPaymentVerifier(v PaymentVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithPaymentSettler sets the settlement implementation.
func WithPaymentSettler(s PaymentSettler) Option {
	return func(c *Client) { c.settler = s }
}

// WithLedger sets the payment ledger implementation.
func WithLedger(l Ledger) Option {
	return func(c *Client) { c.ledger = l }
}

// WithUserRepository sets the user persistence implementation.
func WithUserRepository(u UserRepository) Option {
	return func(c *Client) { c.users = u }
}

// Defaults applied by NewClient.
const (
	DefaultNonceTTL      = 10 * time.Minute
	DefaultCredentialTTL = 24 * time.Hour
	DefaultSettleTimeout = 30 * time.Second
	DefaultAssetDecimals = 6
)

// NewClient creates a new protocol client with the given configuration and
// options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.PayTo == "" {
		return nil, fmt.Errorf("walletgate: PayTo is required")
	}
	if !ValidAddress(cfg.PayTo) {
		return nil, fmt.Errorf("walletgate: PayTo %q is not a valid address", cfg.PayTo)
	}
	if cfg.Network == "" {
		return nil, fmt.Errorf("walletgate: Network is required")
	}
	if cfg.NonceTTL == 0 {
		cfg.NonceTTL = DefaultNonceTTL
	}
	if cfg.CredentialTTL == 0 {
		cfg.CredentialTTL = DefaultCredentialTTL
	}
	if cfg.SettleTimeout == 0 {
		cfg.SettleTimeout = DefaultSettleTimeout
	}
	if cfg.AssetDecimals == 0 {
		cfg.AssetDecimals = DefaultAssetDecimals
	}
	cfg.PayTo = CanonicalAddress(cfg.PayTo)
	if cfg.Asset != "" {
		cfg.Asset = CanonicalAddress(cfg.Asset)
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the structured logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Nonces returns the nonce store, or nil if not configured.
func (c *Client) Nonces() NonceStore { return c.nonces }

// Identity returns the identity verifier, or nil if not configured.
func (c *Client) Identity() IdentityVerifier { return c.identity }

// Credentials returns the credential service, or nil if not configured.
func (c *Client) Credentials() CredentialService { return c.credentials }

// Verifier returns the payment verifier, or nil if not configured.
func (c *Client) Verifier() PaymentVerifier { return c.verifier }

// Settler returns the payment settler, or nil if not configured.
func (c *Client) Settler() PaymentSettler { return c.settler }

// Ledger returns the payment ledger, or nil if not configured.
func (c *Client) Ledger() Ledger { return c.ledger }

// Users returns the user repository, or nil if not configured.
func (c *Client) Users() UserRepository { return c.users }

// Close releases all resources held by the client.
// Any injected service that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.nonces, c.identity, c.credentials,
		c.verifier, c.settler, c.ledger, c.users,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
