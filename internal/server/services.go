// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/relay"
	"github.com/sigil-dev/chainroute/internal/store"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
	"github.com/sigil-dev/chainroute/pkg/health"
)

// HealthService is the health tracker as seen by the admin API.
type HealthService interface {
	IsHealthy(accountID uuid.UUID) bool
	Health(accountID uuid.UUID) health.AccountSnapshot
	AllHealth() []health.AccountSnapshot
	ClearCooldown(accountID uuid.UUID)
}

var _ HealthService = (*provider.HealthTracker)(nil)

// Services holds dependencies injected into route handlers.
// Use NewServices constructor to ensure all required services are provided.
type Services struct {
	chains   *chain.Store
	health   HealthService
	accounts store.AccountStore
	standard []chain.StandardAccount
	registry provider.TypeRegistry

	// optional; nil = probe endpoint unavailable
	waterfall   *relay.Waterfall
	probeClient *http.Client
}

// NewServices creates a Services instance with validation.
// Returns an error if any required service is nil. A nil registry means
// the builtin provider types.
func NewServices(chains *chain.Store, hs HealthService, accounts store.AccountStore, standard []chain.StandardAccount, reg provider.TypeRegistry) (*Services, error) {
	if chains == nil {
		return nil, routeerr.New(routeerr.CodeServerConfigInvalid, "chain store is required")
	}
	if hs == nil {
		return nil, routeerr.New(routeerr.CodeServerConfigInvalid, "health service is required")
	}
	if accounts == nil {
		return nil, routeerr.New(routeerr.CodeServerConfigInvalid, "account store is required")
	}
	if reg == nil {
		reg = provider.BuiltinTypes{}
	}
	return &Services{
		chains:   chains,
		health:   hs,
		accounts: accounts,
		standard: standard,
		registry: reg,
	}, nil
}

// Chains returns the chain catalog.
func (s *Services) Chains() *chain.Store { return s.chains }

// Health returns the health service.
func (s *Services) Health() HealthService { return s.health }

// Accounts returns the managed account store.
func (s *Services) Accounts() store.AccountStore { return s.accounts }

// Standard returns the config-defined accounts.
func (s *Services) Standard() []chain.StandardAccount { return s.standard }

// EnableProbe turns on the chain probe endpoint. Probe outcomes are
// recorded through waterfall, so they affect routing like real traffic.
func (s *Services) EnableProbe(waterfall *relay.Waterfall, client *http.Client) *Services {
	if client == nil {
		client = http.DefaultClient
	}
	s.waterfall = waterfall
	s.probeClient = client
	return s
}
