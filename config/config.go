// Package config loads service configuration from YAML and validates it
// before any component is constructed.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	walletgate "github.com/walletgate/walletgate-go"
)

// File is the on-disk service configuration.
type File struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" validate:"required"`

	// Domain is the service origin sign-in messages must be bound to.
	Domain string `yaml:"domain" validate:"required,hostname_port|hostname"`

	Identity IdentityConfig `yaml:"identity" validate:"required"`
	Payment  PaymentConfig  `yaml:"payment" validate:"required"`

	// Routes maps resource paths to their prices in atomic units.
	Routes []RouteConfig `yaml:"routes" validate:"dive"`
}

// IdentityConfig configures the identity track.
type IdentityConfig struct {
	// CredentialSecret signs issued access credentials. Required; there
	// is no default secret.
	CredentialSecret string `yaml:"credential_secret" validate:"required,min=32"`

	// CredentialTTL is the credential validity window. Default: 24h.
	CredentialTTL time.Duration `yaml:"credential_ttl"`

	// NonceTTL is the challenge nonce validity window. Default: 10m.
	NonceTTL time.Duration `yaml:"nonce_ttl"`

	// DefaultRole is assigned to users on first verification.
	DefaultRole string `yaml:"default_role"`
}

// PaymentConfig configures the payment track.
type PaymentConfig struct {
	// Network is the settlement network identifier.
	Network string `yaml:"network" validate:"required"`

	// ChainID is the EIP-155 chain id of the network.
	ChainID int64 `yaml:"chain_id" validate:"required"`

	// PayTo receives settled payments.
	PayTo string `yaml:"pay_to" validate:"required,eth_addr"`

	// Asset is the payment token contract address.
	Asset string `yaml:"asset" validate:"required,eth_addr"`

	// AssetDecimals is the token's decimal precision. Default: 6.
	AssetDecimals int `yaml:"asset_decimals"`

	// AssetName and AssetVersion form the EIP-712 domain with ChainID
	// and Asset.
	AssetName    string `yaml:"asset_name" validate:"required"`
	AssetVersion string `yaml:"asset_version" validate:"required"`

	// FacilitatorURL is the settlement facilitator endpoint. Ignored
	// when MockSettlement is set.
	FacilitatorURL string `yaml:"facilitator_url" validate:"required_without=MockSettlement,omitempty,url"`

	// MockSettlement routes settlement to an in-process mock instead of
	// the facilitator. Never enable in production.
	MockSettlement bool `yaml:"mock_settlement"`

	// SettleTimeout bounds the settlement call. Default: 30s.
	SettleTimeout time.Duration `yaml:"settle_timeout"`
}

// RouteConfig prices one resource route.
type RouteConfig struct {
	Path        string `yaml:"path" validate:"required,startswith=/"`
	Price       string `yaml:"price" validate:"required,number"`
	Description string `yaml:"description"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("walletgate/config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates raw YAML configuration.
func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("walletgate/config: parse: %w", err)
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("walletgate/config: validate: %w", err)
	}
	return &f, nil
}

// ProtocolConfig derives the walletgate.Config from the file.
func (f *File) ProtocolConfig() walletgate.Config {
	return walletgate.Config{
		PayTo:         f.Payment.PayTo,
		Network:       f.Payment.Network,
		Asset:         f.Payment.Asset,
		AssetDecimals: f.Payment.AssetDecimals,
		Domain: walletgate.TypedDataDomain{
			Name:              f.Payment.AssetName,
			Version:           f.Payment.AssetVersion,
			ChainID:           f.Payment.ChainID,
			VerifyingContract: walletgate.CanonicalAddress(f.Payment.Asset),
		},
		NonceTTL:      f.Identity.NonceTTL,
		CredentialTTL: f.Identity.CredentialTTL,
		SettleTimeout: f.Payment.SettleTimeout,
	}
}
