// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/config"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/relay"
	"github.com/sigil-dev/chainroute/internal/secrets"
	"github.com/sigil-dev/chainroute/internal/server"
	"github.com/sigil-dev/chainroute/internal/store"
	"github.com/sigil-dev/chainroute/internal/store/sqlite"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// probeHTTPClient carries chain probes. Per-attempt deadlines come from
// routing.attempt_timeout; this is the outer bound.
var probeHTTPClient = &http.Client{Timeout: time.Minute}

// openAccountStore opens the configured account backend. Tests replace it.
var openAccountStore = store.NewAccountStore

// Gateway holds every subsystem of a running chainroute gateway.
type Gateway struct {
	Server   *server.Server
	Chains   *chain.Store
	Tracker  *provider.HealthTracker
	Accounts store.AccountStore
	Standard []chain.StandardAccount
}

// loadConfig resolves keyring:// references held by the global viper and
// decodes the result.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	if err := secrets.ResolveViperSecrets(v, secretStoreFactory()); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

// WireGateway opens the stores and builds the HTTP server for cfg.
func WireGateway(cfg *config.Config) (*Gateway, error) {
	accounts, err := openAccountStore(&store.StorageConfig{Backend: cfg.Storage.Backend}, cfg.DataDir)
	if err != nil {
		return nil, routeerr.Wrapf(err, routeerr.CodeCLISetupFailure, "opening account store")
	}
	if cfg.Storage.Backend == "sqlite" {
		config.WarnInsecurePermissions(filepath.Join(cfg.DataDir, sqlite.AccountsDBFile))
	}

	chains := chain.NewStore(cfg.ChainsPath())
	tracker := provider.NewHealthTracker(cfg.Backoff())
	reg := provider.BuiltinTypes{}
	standard := chain.StandardAccountsFromConfig(cfg.Providers, reg)

	services, err := server.NewServices(chains, tracker, accounts, standard, reg)
	if err != nil {
		_ = accounts.Close()
		return nil, routeerr.Errorf(routeerr.CodeCLISetupFailure, "creating services: %w", err)
	}
	services.EnableProbe(relay.New(tracker, cfg.Routing.AttemptTimeout), probeHTTPClient)

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Networking.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		AuthTokens:  cfg.Server.AuthTokens,
		Services:    services,
	})
	if err != nil {
		_ = accounts.Close()
		return nil, routeerr.Errorf(routeerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	slog.Info("gateway wired",
		"chains", chains.Len(),
		"chains_path", chains.Path(),
		"standard_accounts", len(standard),
		"storage", cfg.Storage.Backend,
	)

	return &Gateway{
		Server:   srv,
		Chains:   chains,
		Tracker:  tracker,
		Accounts: accounts,
		Standard: standard,
	}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	return gw.Server.Start(ctx)
}

// Close releases all resources held by the gateway.
func (gw *Gateway) Close() error {
	if gw.Accounts == nil {
		return nil
	}
	return gw.Accounts.Close()
}
