// Package nonce provides an in-memory NonceStore implementation.
//
// Nonces are single-use challenge values keyed by wallet address. Issue
// supersedes any prior unconsumed nonce for the address; Consume succeeds at
// most once per issued value. The store is sharded by address so unrelated
// requests never contend on a shared lock.
package nonce

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	walletgate "github.com/walletgate/walletgate-go"
)

const shardCount = 32

// Store implements walletgate.NonceStore with sharded in-memory state.
type Store struct {
	ttl    time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	value     string
	issuedAt  time.Time
	expiresAt time.Time
}

// compile-time check
var _ walletgate.NonceStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithTTL sets how long an issued nonce remains valid. Default: 10 minutes.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new in-memory nonce store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		ttl: walletgate.DefaultNonceTTL,
		now: time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue generates a cryptographically random nonce for the address,
// overwriting any prior unconsumed nonce.
func (s *Store) Issue(_ context.Context, address string) (string, error) {
	if !walletgate.ValidAddress(address) {
		return "", walletgate.NewProtocolError(walletgate.CodeInvalidRequest, "", "invalid wallet address", nil)
	}
	address = walletgate.CanonicalAddress(address)

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("walletgate/nonce: generate: %w", err)
	}
	value := hex.EncodeToString(buf)

	now := s.now()
	sh := s.shardFor(address)
	sh.mu.Lock()
	sh.entries[address] = &entry{
		value:     value,
		issuedAt:  now,
		expiresAt: now.Add(s.ttl),
	}
	sh.mu.Unlock()

	return value, nil
}

// Consume atomically marks the nonce consumed. Unknown, mismatched, expired
// and already-consumed nonces all return the same authentication-failure
// code so callers cannot distinguish which check failed.
func (s *Store) Consume(_ context.Context, address, value string) error {
	address = walletgate.CanonicalAddress(address)

	sh := s.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[address]
	if !ok || subtle.ConstantTimeCompare([]byte(e.value), []byte(value)) != 1 {
		return authFailure()
	}
	if s.now().After(e.expiresAt) {
		delete(sh.entries, address)
		return authFailure()
	}

	// Deleting is what makes the nonce single-use: a second consume for
	// the same value falls into the unknown-nonce branch above.
	delete(sh.entries, address)
	return nil
}

func (s *Store) shardFor(address string) *shard {
	h := fnv.New32a()
	h.Write([]byte(address))
	return s.shards[h.Sum32()%shardCount]
}

func authFailure() error {
	return walletgate.NewProtocolError(
		walletgate.CodeAuthenticationFailed,
		walletgate.ReasonInvalidNonce,
		"invalid or expired nonce",
		nil,
	)
}
