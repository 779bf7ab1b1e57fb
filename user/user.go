// Package user provides wallet-identified account persistence.
//
// Accounts are keyed by canonical lowercase wallet address. The first
// successful identity verification creates the row and assigns the default
// role; the role is immutable afterwards.
package user

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	walletgate "github.com/walletgate/walletgate-go"
)

// DefaultRole is assigned on first verification.
const DefaultRole = "member"

// Memory implements walletgate.UserRepository in process memory.
type Memory struct {
	defaultRole string
	now         func() time.Time

	mu    sync.RWMutex
	users map[string]*walletgate.User // address → user
}

// compile-time check
var _ walletgate.UserRepository = (*Memory)(nil)

// Option configures the repository.
type Option func(*Memory)

// WithDefaultRole sets the role assigned on first verification.
func WithDefaultRole(role string) Option {
	return func(m *Memory) { m.defaultRole = role }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory user repository.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		defaultRole: DefaultRole,
		now:         time.Now,
		users:       make(map[string]*walletgate.User),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// UpsertByAddress returns the existing user for the address or creates one
// with the default role.
func (m *Memory) UpsertByAddress(_ context.Context, address string) (*walletgate.User, error) {
	if !walletgate.ValidAddress(address) {
		return nil, fmt.Errorf("walletgate/user: invalid address %q", address)
	}
	address = walletgate.CanonicalAddress(address)

	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[address]; ok {
		copied := *u
		return &copied, nil
	}
	u := &walletgate.User{
		ID:        uuid.NewString(),
		Address:   address,
		Role:      m.defaultRole,
		CreatedAt: m.now(),
	}
	m.users[address] = u
	copied := *u
	return &copied, nil
}

// GetByAddress returns the user for an address.
func (m *Memory) GetByAddress(_ context.Context, address string) (*walletgate.User, error) {
	address = walletgate.CanonicalAddress(address)

	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[address]
	if !ok {
		return nil, walletgate.NewProtocolError(walletgate.CodeNotFound, "",
			fmt.Sprintf("no user for address %s", address), nil)
	}
	copied := *u
	return &copied, nil
}
