// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package chain

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sigil-dev/chainroute/internal/config"
	"github.com/sigil-dev/chainroute/internal/provider"
)

// StandardAccount is an account defined in configuration rather than the
// account store. Its id is derived from the provider id so health history
// follows it across restarts.
type StandardAccount struct {
	AccountID    uuid.UUID
	ProviderID   string
	ProviderType provider.ProviderType
	APIKey       *string
	BaseURL      *string
}

// NewStandardAccount builds a standard account for providerID. Empty apiKey
// or baseURL become nil. It returns false when the registry does not know
// providerID.
func NewStandardAccount(reg provider.TypeRegistry, providerID, apiKey, baseURL string) (StandardAccount, bool) {
	pt, ok := reg.FromID(providerID)
	if !ok {
		return StandardAccount{}, false
	}
	return StandardAccount{
		AccountID:    provider.StableAccountID(providerID),
		ProviderID:   providerID,
		ProviderType: pt,
		APIKey:       lo.EmptyableToPtr(apiKey),
		BaseURL:      lo.EmptyableToPtr(baseURL),
	}, true
}

// StandardAccountsFromConfig converts the providers section into standard
// accounts ordered by provider id. Unknown provider ids are skipped with a
// warning.
func StandardAccountsFromConfig(providers map[string]config.ProviderConfig, reg provider.TypeRegistry) []StandardAccount {
	ids := lo.Keys(providers)
	slices.Sort(ids)

	out := make([]StandardAccount, 0, len(ids))
	for _, id := range ids {
		pc := providers[id]
		sa, ok := NewStandardAccount(reg, id, pc.APIKey, pc.BaseURL)
		if !ok {
			slog.Warn("skipping standard account with unknown provider", "provider", id)
			continue
		}
		out = append(out, sa)
	}
	return out
}
