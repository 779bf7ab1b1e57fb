// Package ledger provides an in-memory walletgate.Ledger implementation.
//
// The ledger is the append-only record of every verify/settle attempt and
// the concurrency-control anchor for settlement: Claim is an atomic
// insert-if-absent keyed by authorization nonce, so exactly one caller wins
// the right to submit a given authorization to the settlement path.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	walletgate "github.com/walletgate/walletgate-go"
)

// Memory implements walletgate.Ledger with in-process state. Claims are
// per-nonce via sync.Map LoadOrStore; the only shared lock guards the
// insertion-order index and is never held across I/O.
type Memory struct {
	records sync.Map // nonce (or record id) → *box

	mu    sync.RWMutex
	order []string // keys, insertion order
}

type box struct {
	mu  sync.Mutex
	rec walletgate.PaymentRecord
}

// compile-time check
var _ walletgate.Ledger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{}
}

// Claim inserts a `requested` record for the authorization nonce if and only
// if no record for that nonce exists. Returns false when the nonce was
// already claimed; the existing record is left untouched.
func (m *Memory) Claim(_ context.Context, rec walletgate.PaymentRecord) (bool, error) {
	if rec.Nonce == "" {
		return false, fmt.Errorf("walletgate/ledger: claim requires an authorization nonce")
	}
	rec = stamp(rec)
	rec.Event = walletgate.EventRequested

	_, loaded := m.records.LoadOrStore(rec.Nonce, &box{rec: rec})
	if loaded {
		return false, nil
	}
	m.index(rec.Nonce)
	return true, nil
}

// Append inserts a record without claiming semantics. Used for attempts that
// never reached a claim (e.g. malformed or unverifiable headers).
func (m *Memory) Append(_ context.Context, rec walletgate.PaymentRecord) error {
	rec = stamp(rec)
	key := rec.Nonce
	if key == "" {
		key = rec.ID
	}
	if _, loaded := m.records.LoadOrStore(key, &box{rec: rec}); loaded {
		return fmt.Errorf("walletgate/ledger: record for %q already exists", key)
	}
	m.index(key)
	return nil
}

// Resolve moves the claimed record for the nonce to its terminal event.
// A record resolves at most once; later calls are rejected so a terminal
// outcome is never rewritten.
func (m *Memory) Resolve(_ context.Context, nonceKey string, event walletgate.PaymentEvent, txHash, errMsg string) error {
	v, ok := m.records.Load(nonceKey)
	if !ok {
		return fmt.Errorf("walletgate/ledger: no record claimed for nonce %q", nonceKey)
	}
	b := v.(*box)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec.Terminal() {
		return fmt.Errorf("walletgate/ledger: record for nonce %q already terminal (%s)", nonceKey, b.rec.Event)
	}
	b.rec.Event = event
	b.rec.TxHash = txHash
	b.rec.Error = errMsg
	return nil
}

// Get returns a copy of the record for an authorization nonce.
func (m *Memory) Get(_ context.Context, nonceKey string) (*walletgate.PaymentRecord, bool, error) {
	v, ok := m.records.Load(nonceKey)
	if !ok {
		return nil, false, nil
	}
	b := v.(*box)
	b.mu.Lock()
	rec := b.rec
	b.mu.Unlock()
	return &rec, true, nil
}

// List returns records matching the filter, newest first.
func (m *Memory) List(_ context.Context, f walletgate.RecordFilter, opts walletgate.ListOptions) ([]walletgate.PaymentRecord, int, error) {
	m.mu.RLock()
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	m.mu.RUnlock()

	var matched []walletgate.PaymentRecord
	for i := len(keys) - 1; i >= 0; i-- {
		v, ok := m.records.Load(keys[i])
		if !ok {
			continue
		}
		b := v.(*box)
		b.mu.Lock()
		rec := b.rec
		b.mu.Unlock()

		if f.Resource != "" && rec.Resource != f.Resource {
			continue
		}
		if f.Payer != "" && rec.Payer != f.Payer {
			continue
		}
		if f.Event != "" && rec.Event != f.Event {
			continue
		}
		matched = append(matched, rec)
	}

	total := len(matched)
	if opts.PageSize > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * opts.PageSize
		if start >= total {
			return nil, total, nil
		}
		end := start + opts.PageSize
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (m *Memory) index(key string) {
	m.mu.Lock()
	m.order = append(m.order, key)
	m.mu.Unlock()
}

func stamp(rec walletgate.PaymentRecord) walletgate.PaymentRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return rec
}
