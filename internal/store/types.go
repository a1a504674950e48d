// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"bytes"
	"cmp"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/chainroute/internal/provider"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// Account is one set of credentials for a provider. Several accounts of the
// same type spread load and survive per-account rate limits.
type Account struct {
	ID           uuid.UUID
	ProviderType provider.ProviderType
	Name         string
	APIKey       *string
	BaseURL      *string
	// Priority orders accounts of one type; lower runs first.
	Priority  int
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCredentials reports whether the account can authenticate upstream:
// it is enabled and has an API key, or it is a custom endpoint with a base
// URL (local servers often need no key).
func (a *Account) HasCredentials() bool {
	if !a.Enabled {
		return false
	}
	if a.APIKey != nil && *a.APIKey != "" {
		return true
	}
	return a.ProviderType == provider.TypeCustom && a.BaseURL != nil && *a.BaseURL != ""
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	if a.APIKey != nil {
		k := *a.APIKey
		c.APIKey = &k
	}
	if a.BaseURL != nil {
		u := *a.BaseURL
		c.BaseURL = &u
	}
	return &c
}

// Validate checks that the Account has all required fields set correctly.
func (a *Account) Validate() error {
	if a.ID == uuid.Nil {
		return routeerr.New(routeerr.CodeStoreAccountInvalid, "account: ID is required")
	}
	if pt, ok := provider.ProviderTypeFromID(string(a.ProviderType)); !ok || pt != a.ProviderType {
		return routeerr.Errorf(routeerr.CodeStoreAccountInvalid, "account: invalid provider type %q", a.ProviderType)
	}
	if a.Priority < 0 {
		return routeerr.Errorf(routeerr.CodeStoreAccountInvalid, "account: priority must not be negative, got %d", a.Priority)
	}
	return nil
}

// CompareAccounts is the GetAllByType ordering: priority, then creation
// time, then id.
func CompareAccounts(x, y *Account) int {
	if c := cmp.Compare(x.Priority, y.Priority); c != 0 {
		return c
	}
	if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
		return c
	}
	return bytes.Compare(x.ID[:], y.ID[:])
}
