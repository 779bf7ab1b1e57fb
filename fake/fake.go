// Package fake provides in-memory test doubles for the protocol interfaces.
//
// Use fake.SettlementPath to script settlement outcomes without a network,
// and fake.Clock for deterministic time in expiry tests.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	walletgate "github.com/walletgate/walletgate-go"
)

// SettlementPath implements walletgate.SettlementPath with scripted
// outcomes. The zero value settles every submission successfully.
type SettlementPath struct {
	mu      sync.Mutex
	mode    mode
	txHash  string
	failMsg string
	calls   []*walletgate.PaymentPayload
}

type mode int

const (
	modeSucceed mode = iota
	modeFail
	modeHang
)

// compile-time check
var _ walletgate.SettlementPath = (*SettlementPath)(nil)

// NewSettlementPath creates a path that settles successfully with a
// deterministic transaction hash.
func NewSettlementPath() *SettlementPath {
	return &SettlementPath{txHash: "0xfake"}
}

// Succeed scripts successful settlement returning txHash.
func (p *SettlementPath) Succeed(txHash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = modeSucceed
	p.txHash = txHash
}

// Fail scripts rejected settlement with the given reason.
func (p *SettlementPath) Fail(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = modeFail
	p.failMsg = reason
}

// Hang scripts a settlement call that blocks until the context expires.
func (p *SettlementPath) Hang() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = modeHang
}

// Calls returns every payload submitted so far.
func (p *SettlementPath) Calls() []*walletgate.PaymentPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*walletgate.PaymentPayload, len(p.calls))
	copy(out, p.calls)
	return out
}

// Submit records the call and returns the scripted outcome.
func (p *SettlementPath) Submit(ctx context.Context, payload *walletgate.PaymentPayload, _ walletgate.PaymentRequirements) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, payload)
	m, tx, msg := p.mode, p.txHash, p.failMsg
	p.mu.Unlock()

	switch m {
	case modeFail:
		return "", fmt.Errorf("fake settlement path: %s", msg)
	case modeHang:
		<-ctx.Done()
		return "", ctx.Err()
	default:
		return tx, nil
	}
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time. Pass as the WithClock option value.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
