package nonce_test

import (
	"context"
	"strings"
	"testing"
	"time"

	walletgate "github.com/walletgate/walletgate-go"
	"github.com/walletgate/walletgate-go/fake"
	"github.com/walletgate/walletgate-go/nonce"
)

const addr = "0x742d35cc6634c0532925a3b844bc9e7595f8bbf5"

func TestIssueAndConsume(t *testing.T) {
	s := nonce.NewStore()
	ctx := context.Background()

	value, err := s.Issue(ctx, addr)
	if err != nil {
		t.Fatalf("Issue() unexpected error: %v", err)
	}
	if len(value) != 64 {
		t.Errorf("nonce length = %d, want 64 hex chars", len(value))
	}

	if err := s.Consume(ctx, addr, value); err != nil {
		t.Fatalf("Consume() unexpected error: %v", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	s := nonce.NewStore()
	ctx := context.Background()

	value, _ := s.Issue(ctx, addr)
	if err := s.Consume(ctx, addr, value); err != nil {
		t.Fatalf("first Consume() unexpected error: %v", err)
	}

	err := s.Consume(ctx, addr, value)
	if err == nil {
		t.Fatal("second Consume() should fail")
	}
	pe, ok := walletgate.AsProtocolError(err)
	if !ok || pe.Code != walletgate.CodeAuthenticationFailed {
		t.Errorf("second Consume() error = %v, want %s", err, walletgate.CodeAuthenticationFailed)
	}
}

func TestReissueSupersedes(t *testing.T) {
	s := nonce.NewStore()
	ctx := context.Background()

	first, _ := s.Issue(ctx, addr)
	second, _ := s.Issue(ctx, addr)
	if first == second {
		t.Fatal("re-issued nonce should differ")
	}

	if err := s.Consume(ctx, addr, first); err == nil {
		t.Error("consuming a superseded nonce should fail")
	}
	if err := s.Consume(ctx, addr, second); err != nil {
		t.Errorf("consuming the current nonce failed: %v", err)
	}
}

func TestConsumeExpired(t *testing.T) {
	clock := fake.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := nonce.NewStore(nonce.WithTTL(10*time.Minute), nonce.WithClock(clock.Now))
	ctx := context.Background()

	value, _ := s.Issue(ctx, addr)
	clock.Advance(11 * time.Minute)

	if err := s.Consume(ctx, addr, value); err == nil {
		t.Fatal("consuming an expired nonce should fail")
	}
}

func TestFailureModesAreIndistinguishable(t *testing.T) {
	clock := fake.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := nonce.NewStore(nonce.WithTTL(time.Minute), nonce.WithClock(clock.Now))
	ctx := context.Background()

	value, _ := s.Issue(ctx, addr)

	unknown := s.Consume(ctx, "0x0000000000000000000000000000000000000001", value)
	// Same length as an issued nonce so the comparison exercises the full
	// value rather than bailing on length alone.
	mismatch := s.Consume(ctx, addr, strings.Repeat("0", 64))
	clock.Advance(2 * time.Minute)
	expired := s.Consume(ctx, addr, value)

	for name, err := range map[string]error{"unknown": unknown, "mismatch": mismatch, "expired": expired} {
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if err.Error() != unknown.Error() {
			t.Errorf("%s: error text %q differs from %q; failure modes must be indistinguishable", name, err.Error(), unknown.Error())
		}
	}
}

func TestIssueRejectsMalformedAddress(t *testing.T) {
	s := nonce.NewStore()
	if _, err := s.Issue(context.Background(), "not-an-address"); err == nil {
		t.Fatal("Issue() should reject a malformed address")
	}
}
