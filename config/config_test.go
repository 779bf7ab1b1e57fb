package config_test

import (
	"strings"
	"testing"

	"github.com/walletgate/walletgate-go/config"
)

const validYAML = `
listen: ":8080"
domain: market.example.com
identity:
  credential_secret: "0123456789abcdef0123456789abcdef"
  credential_ttl: 12h
  nonce_ttl: 5m
payment:
  network: base-sepolia
  chain_id: 84532
  pay_to: "0x742d35cc6634c0532925a3b844bc9e7595f8bbf5"
  asset: "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
  asset_name: USDC
  asset_version: "2"
  mock_settlement: true
routes:
  - path: /premium/echo
    price: "10000"
    description: premium echo
`

func TestParseValid(t *testing.T) {
	f, err := config.Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if f.Listen != ":8080" {
		t.Errorf("Listen = %q, want :8080", f.Listen)
	}
	if f.Payment.ChainID != 84532 {
		t.Errorf("ChainID = %d, want 84532", f.Payment.ChainID)
	}
	if len(f.Routes) != 1 || f.Routes[0].Price != "10000" {
		t.Errorf("Routes = %+v, want one route priced 10000", f.Routes)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]func(string) string{
		"short secret": func(y string) string {
			return strings.Replace(y, `credential_secret: "0123456789abcdef0123456789abcdef"`, `credential_secret: "short"`, 1)
		},
		"bad pay_to": func(y string) string {
			return strings.Replace(y, `pay_to: "0x742d35cc6634c0532925a3b844bc9e7595f8bbf5"`, `pay_to: "not-an-address"`, 1)
		},
		"non-numeric price": func(y string) string {
			return strings.Replace(y, `price: "10000"`, `price: "ten"`, 1)
		},
		"relative route path": func(y string) string {
			return strings.Replace(y, `path: /premium/echo`, `path: premium/echo`, 1)
		},
		"missing network": func(y string) string {
			return strings.Replace(y, "network: base-sepolia\n", "", 1)
		},
		"no settlement target": func(y string) string {
			return strings.Replace(y, "mock_settlement: true\n", "", 1)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Parse([]byte(mutate(validYAML))); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestParseNotYAML(t *testing.T) {
	if _, err := config.Parse([]byte("{{nope")); err == nil {
		t.Error("Parse() should fail on malformed YAML")
	}
}

func TestProtocolConfig(t *testing.T) {
	f, err := config.Parse([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	cfg := f.ProtocolConfig()
	if cfg.PayTo != "0x742d35cc6634c0532925a3b844bc9e7595f8bbf5" {
		t.Errorf("PayTo = %q", cfg.PayTo)
	}
	if cfg.Domain.Name != "USDC" || cfg.Domain.Version != "2" {
		t.Errorf("Domain = %+v", cfg.Domain)
	}
	if cfg.Domain.ChainID != 84532 {
		t.Errorf("Domain.ChainID = %d, want 84532", cfg.Domain.ChainID)
	}
	// The verifying contract is the asset address, lowercased.
	if cfg.Domain.VerifyingContract != "0x036cbd53842c5426634e7929541ec2318f3dcf7e" {
		t.Errorf("VerifyingContract = %q", cfg.Domain.VerifyingContract)
	}
}
