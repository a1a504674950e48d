// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package store persists managed provider accounts. Backends register
// themselves with RegisterBackend from init().
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/sigil-dev/chainroute/internal/provider"
)

// AccountStore manages provider accounts.
type AccountStore interface {
	Create(ctx context.Context, account *Account) error
	Get(ctx context.Context, id uuid.UUID) (*Account, error)
	Update(ctx context.Context, account *Account) error
	List(ctx context.Context, opts ListOpts) ([]*Account, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// GetAllByType returns every account of the given type, disabled ones
	// included, ordered by priority, then creation time, then id.
	GetAllByType(ctx context.Context, pt provider.ProviderType) ([]*Account, error)

	Close() error
}

// ListOpts pages through List results.
type ListOpts struct {
	Limit  int
	Offset int
}
