// Package credential provides a stateless signed access credential bound to
// a verified wallet address.
//
// Credentials are HS256 JWTs carrying subject id, address, and role, valid
// for a fixed window (default 24h). Verification is self-contained: a
// signature check plus an expiry check, no revocation store. Known
// limitation: a compromised credential stays valid until it expires, which
// is acceptable for the low-privilege marketplace role it grants.
package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	walletgate "github.com/walletgate/walletgate-go"
)

// Service implements walletgate.CredentialService using an explicit signing
// secret. The secret is always passed in; there is no package-level default.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// compile-time check
var _ walletgate.CredentialService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithTTL sets the credential validity window. Default: 24 hours.
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithIssuer sets the iss claim. Default: "walletgate".
func WithIssuer(iss string) Option {
	return func(s *Service) { s.issuer = iss }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a credential service signing with the given secret.
func New(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("walletgate/credential: signing secret is required")
	}
	s := &Service{
		secret: secret,
		issuer: "walletgate",
		ttl:    walletgate.DefaultCredentialTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Issue mints a signed credential for a verified address.
func (s *Service) Issue(address, role, subjectID string) (string, error) {
	if !walletgate.ValidAddress(address) {
		return "", fmt.Errorf("walletgate/credential: invalid address %q", address)
	}
	now := s.now()
	claims := jwt.MapClaims{
		"iss":     s.issuer,
		"sub":     subjectID,
		"address": walletgate.CanonicalAddress(address),
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("walletgate/credential: sign: %w", err)
	}
	return signed, nil
}

// Decode validates the credential and returns the embedded claims.
func (s *Service) Decode(tokenString string) (*walletgate.Claims, error) {
	parser := jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, walletgate.NewProtocolError(
			walletgate.CodeAuthenticationFailed, "invalid_credential",
			"credential rejected", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, walletgate.NewProtocolError(
			walletgate.CodeAuthenticationFailed, "invalid_credential",
			"credential claims unreadable", nil)
	}

	return mapToClaims(mapClaims), nil
}

// mapToClaims converts jwt.MapClaims to walletgate.Claims.
func mapToClaims(m jwt.MapClaims) *walletgate.Claims {
	c := &walletgate.Claims{}
	if v, ok := m["sub"].(string); ok {
		c.Subject = v
	}
	if v, ok := m["address"].(string); ok {
		c.Address = v
	}
	if v, ok := m["role"].(string); ok {
		c.Role = v
	}
	if v, ok := m["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(v), 0)
	}
	if v, ok := m["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(v), 0)
	}
	return c
}
