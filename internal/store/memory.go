// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sigil-dev/chainroute/internal/provider"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// MemoryAccountStore is a process-local AccountStore. Nothing survives a
// restart; it backs the "memory" backend and tests.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*Account
	nowFunc  func() time.Time // for testing
}

// Compile-time check that MemoryAccountStore implements AccountStore.
var _ AccountStore = (*MemoryAccountStore)(nil)

// NewMemoryAccountStore returns an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[uuid.UUID]*Account),
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (m *MemoryAccountStore) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	m.nowFunc = fn
	m.mu.Unlock()
}

func (m *MemoryAccountStore) Create(_ context.Context, account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.ID]; exists {
		return routeerr.New(routeerr.CodeStoreAccountConflict, "account already exists",
			routeerr.FieldAccountID(account.ID.String()))
	}
	now := m.nowFunc()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}
	m.accounts[account.ID] = account.Clone()
	return nil
}

func (m *MemoryAccountStore) Get(_ context.Context, id uuid.UUID) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, routeerr.New(routeerr.CodeStoreAccountNotFound, "account not found",
			routeerr.FieldAccountID(id.String()))
	}
	return a.Clone(), nil
}

func (m *MemoryAccountStore) Update(_ context.Context, account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.accounts[account.ID]
	if !ok {
		return routeerr.New(routeerr.CodeStoreAccountNotFound, "account not found",
			routeerr.FieldAccountID(account.ID.String()))
	}
	updated := account.Clone()
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = m.nowFunc()
	m.accounts[account.ID] = updated
	account.UpdatedAt = updated.UpdatedAt
	return nil
}

func (m *MemoryAccountStore) List(_ context.Context, opts ListOpts) ([]*Account, error) {
	m.mu.RLock()
	all := lo.MapToSlice(m.accounts, func(_ uuid.UUID, a *Account) *Account { return a.Clone() })
	m.mu.RUnlock()

	slices.SortFunc(all, func(x, y *Account) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return CompareAccounts(x, y)
	})
	return page(all, opts), nil
}

func (m *MemoryAccountStore) GetAllByType(_ context.Context, pt provider.ProviderType) ([]*Account, error) {
	m.mu.RLock()
	var out []*Account
	for _, a := range m.accounts {
		if a.ProviderType == pt {
			out = append(out, a.Clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, CompareAccounts)
	return out, nil
}

func (m *MemoryAccountStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return routeerr.New(routeerr.CodeStoreAccountNotFound, "account not found",
			routeerr.FieldAccountID(id.String()))
	}
	delete(m.accounts, id)
	return nil
}

func (m *MemoryAccountStore) Close() error { return nil }

// page applies ListOpts; a non-positive limit means 100.
func page(all []*Account, opts ListOpts) []*Account {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if opts.Offset >= len(all) {
		return nil
	}
	return lo.Slice(all, opts.Offset, opts.Offset+limit)
}
