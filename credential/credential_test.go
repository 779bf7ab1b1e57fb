package credential_test

import (
	"strings"
	"testing"
	"time"

	walletgate "github.com/walletgate/walletgate-go"
	"github.com/walletgate/walletgate-go/credential"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	testAddress = "0x742d35cc6634c0532925a3b844bc9e7595f8bbf5"
)

func TestNewRequiresSecret(t *testing.T) {
	if _, err := credential.New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestIssueAndDecode(t *testing.T) {
	svc, err := credential.New([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	token, err := svc.Issue(testAddress, "member", "user-1")
	if err != nil {
		t.Fatalf("Issue() unexpected error: %v", err)
	}

	claims, err := svc.Decode(token)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %q, want user-1", claims.Subject)
	}
	if claims.Address != testAddress {
		t.Errorf("Address = %q, want %q", claims.Address, testAddress)
	}
	if claims.Role != "member" {
		t.Errorf("Role = %q, want member", claims.Role)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Errorf("ExpiresAt %v not after IssuedAt %v", claims.ExpiresAt, claims.IssuedAt)
	}
}

func TestIssueCanonicalizesAddress(t *testing.T) {
	svc, _ := credential.New([]byte(testSecret))

	token, err := svc.Issue("0x742d35Cc6634C0532925a3b844Bc9e7595f8bBf5", "member", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := svc.Decode(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Address != testAddress {
		t.Errorf("Address = %q, want lowercase %q", claims.Address, testAddress)
	}
}

func TestIssueRejectsMalformedAddress(t *testing.T) {
	svc, _ := credential.New([]byte(testSecret))
	if _, err := svc.Issue("not-an-address", "member", "user-1"); err == nil {
		t.Error("Issue() should reject a malformed address")
	}
}

func TestDecodeExpiredCredential(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := credential.New([]byte(testSecret),
		credential.WithTTL(time.Hour),
		credential.WithClock(func() time.Time { return now }))

	token, err := svc.Issue(testAddress, "member", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Hour)
	_, err = svc.Decode(token)
	if err == nil {
		t.Fatal("Decode() should fail after expiry")
	}
	pe, ok := walletgate.AsProtocolError(err)
	if !ok {
		t.Fatalf("error %v is not a ProtocolError", err)
	}
	if pe.Code != walletgate.CodeAuthenticationFailed {
		t.Errorf("code = %q, want %q", pe.Code, walletgate.CodeAuthenticationFailed)
	}
}

func TestDecodeWrongSecret(t *testing.T) {
	issuer, _ := credential.New([]byte(testSecret))
	other, _ := credential.New([]byte(strings.Repeat("x", 32)))

	token, err := issuer.Issue(testAddress, "member", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Decode(token); err == nil {
		t.Error("Decode() should reject a credential signed with a different secret")
	}
}

func TestDecodeTamperedToken(t *testing.T) {
	svc, _ := credential.New([]byte(testSecret))
	token, err := svc.Issue(testAddress, "member", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := svc.Decode(tampered); err == nil {
		t.Error("Decode() should reject a tampered signature")
	}
}
