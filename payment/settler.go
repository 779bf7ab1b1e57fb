package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	walletgate "github.com/walletgate/walletgate-go"
)

// Settler implements walletgate.PaymentSettler. It claims the authorization
// nonce in the ledger before touching the settlement path, so concurrent
// and retried settle calls for one authorization yield exactly one terminal
// outcome and at most one submission.
//
// A claimed nonce is never released: an authorization that fails settlement
// is burned, and the client must obtain a freshly signed authorization.
type Settler struct {
	path    walletgate.SettlementPath
	ledger  walletgate.Ledger
	network string
	payTo   string
	timeout time.Duration
}

// compile-time check
var _ walletgate.PaymentSettler = (*Settler)(nil)

// SettlerOption configures the Settler.
type SettlerOption func(*Settler)

// WithTimeout bounds the settlement network call. Default: 30s.
func WithTimeout(d time.Duration) SettlerOption {
	return func(s *Settler) { s.timeout = d }
}

// NewSettler creates a settler submitting to the given settlement path and
// recording outcomes in the ledger.
func NewSettler(path walletgate.SettlementPath, l walletgate.Ledger, cfg walletgate.Config, opts ...SettlerOption) *Settler {
	s := &Settler{
		path:    path,
		ledger:  l,
		network: cfg.Network,
		payTo:   walletgate.CanonicalAddress(cfg.PayTo),
		timeout: cfg.SettleTimeout,
	}
	if s.timeout == 0 {
		s.timeout = walletgate.DefaultSettleTimeout
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Settle executes a verified authorization. The nonce claim is the
// idempotency gate: losing the claim means another call owns this
// authorization, and the loser returns the recorded outcome instead of
// submitting again.
func (s *Settler) Settle(ctx context.Context, payload *walletgate.PaymentPayload, req walletgate.PaymentRequirements) (*walletgate.SettleResult, error) {
	auth := payload.Authorization
	payer := walletgate.CanonicalAddress(auth.From)

	claimed, err := s.ledger.Claim(ctx, walletgate.PaymentRecord{
		Resource: req.Resource,
		Payer:    payer,
		PayTo:    s.payTo,
		Value:    auth.Value,
		Network:  s.network,
		Nonce:    auth.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("walletgate/payment: claim: %w", err)
	}
	if !claimed {
		return s.observeExisting(ctx, auth.Nonce)
	}

	// Once the claim is won the submission must run to completion even if
	// the requesting client disconnects; only the settle timeout bounds it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	txHash, err := s.path.Submit(callCtx, payload, req)
	if err != nil {
		reason := walletgate.ReasonSettlementRejected
		if errors.Is(err, context.DeadlineExceeded) {
			reason = walletgate.ReasonSettlementTimeout
		}
		msg := fmt.Sprintf("settle: %s", reason)
		// The terminal record must land even when the request context is
		// gone; settlement already happened (or definitively did not).
		if rerr := s.ledger.Resolve(context.WithoutCancel(ctx), auth.Nonce, walletgate.EventFailed, "", msg); rerr != nil {
			return nil, fmt.Errorf("walletgate/payment: record failure: %w", rerr)
		}
		return nil, walletgate.NewProtocolError(walletgate.CodeSettlementFailed, reason, "settlement failed", err)
	}

	if rerr := s.ledger.Resolve(context.WithoutCancel(ctx), auth.Nonce, walletgate.EventSettled, txHash, ""); rerr != nil {
		return nil, fmt.Errorf("walletgate/payment: record settlement: %w", rerr)
	}

	return &walletgate.SettleResult{
		TxHash:  txHash,
		Network: s.network,
		Payer:   payer,
		PayTo:   s.payTo,
		Value:   auth.Value,
	}, nil
}

// observeExisting returns the outcome already recorded for the nonce.
func (s *Settler) observeExisting(ctx context.Context, nonceKey string) (*walletgate.SettleResult, error) {
	rec, found, err := s.ledger.Get(ctx, nonceKey)
	if err != nil || !found {
		return nil, fmt.Errorf("walletgate/payment: lost claim but no record for nonce %q: %w", nonceKey, err)
	}
	switch rec.Event {
	case walletgate.EventSettled:
		return &walletgate.SettleResult{
			TxHash:  rec.TxHash,
			Network: rec.Network,
			Payer:   rec.Payer,
			PayTo:   rec.PayTo,
			Value:   rec.Value,
		}, nil
	case walletgate.EventFailed:
		return nil, walletgate.NewProtocolError(walletgate.CodeSettlementFailed,
			walletgate.ReasonReplayedAuthorization,
			fmt.Sprintf("authorization already failed: %s", rec.Error), nil)
	default:
		return nil, walletgate.NewProtocolError(walletgate.CodeSettlementFailed,
			walletgate.ReasonAlreadySettling,
			"authorization settlement already in flight", nil)
	}
}
