// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package chain

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/store"
)

// AccountSource is the part of the account store the resolver reads.
type AccountSource interface {
	GetAllByType(ctx context.Context, pt provider.ProviderType) ([]*store.Account, error)
}

// HealthChecker reports whether an account may receive traffic.
type HealthChecker interface {
	IsHealthy(accountID uuid.UUID) bool
}

// ResolvedEntry binds a chain entry's model to one concrete account.
type ResolvedEntry struct {
	ProviderID   string
	ProviderType provider.ProviderType
	ModelID      string
	AccountID    uuid.UUID
	APIKey       *string
	BaseURL      *string
}

// Resolve expands chainID into an ordered list of routes. Chain entry
// order is the outer priority; within an entry, store accounts come first
// in store order. Standard accounts of a type are considered only when the
// store holds no accounts of that type at all, healthy or not.
//
// Unknown chains yield an empty list. Entries whose provider is unknown,
// or whose account query fails, are skipped with a log line and the rest
// of the chain still resolves.
func (s *Store) Resolve(
	ctx context.Context,
	chainID string,
	accounts AccountSource,
	standard []StandardAccount,
	tracker HealthChecker,
	reg provider.TypeRegistry,
) []ResolvedEntry {
	c, ok := s.Get(chainID)
	if !ok {
		return []ResolvedEntry{}
	}

	out := []ResolvedEntry{}
	for _, entry := range c.Entries {
		pt, ok := reg.FromID(entry.ProviderID)
		if !ok {
			slog.Warn("skipping chain entry with unknown provider",
				"chain_id", chainID, "provider", entry.ProviderID, "model", entry.ModelID)
			continue
		}

		stored, err := accounts.GetAllByType(ctx, pt)
		if err != nil {
			slog.Error("listing accounts for chain entry, skipping",
				"chain_id", chainID, "provider", entry.ProviderID, "error", err)
			continue
		}

		if len(stored) > 0 {
			for _, a := range stored {
				if !tracker.IsHealthy(a.ID) {
					slog.Debug("skipping account in cooldown", "account_id", a.ID, "provider", entry.ProviderID)
					continue
				}
				if !a.HasCredentials() {
					slog.Debug("skipping account without credentials", "account_id", a.ID, "provider", entry.ProviderID)
					continue
				}
				out = append(out, ResolvedEntry{
					ProviderID:   entry.ProviderID,
					ProviderType: pt,
					ModelID:      entry.ModelID,
					AccountID:    a.ID,
					APIKey:       copyPtr(a.APIKey),
					BaseURL:      copyPtr(a.BaseURL),
				})
			}
			continue
		}

		for _, sa := range standard {
			if sa.ProviderType != pt {
				continue
			}
			if !tracker.IsHealthy(sa.AccountID) {
				slog.Debug("skipping standard account in cooldown", "account_id", sa.AccountID, "provider", sa.ProviderID)
				continue
			}
			if sa.APIKey == nil || *sa.APIKey == "" {
				slog.Debug("skipping standard account without api key", "provider", sa.ProviderID)
				continue
			}
			out = append(out, ResolvedEntry{
				ProviderID:   entry.ProviderID,
				ProviderType: pt,
				ModelID:      entry.ModelID,
				AccountID:    sa.AccountID,
				APIKey:       copyPtr(sa.APIKey),
				BaseURL:      copyPtr(sa.BaseURL),
			})
		}
	}
	return out
}

func copyPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
