// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/relay"
	"github.com/sigil-dev/chainroute/internal/server"
	"github.com/sigil-dev/chainroute/internal/store"
	"github.com/sigil-dev/chainroute/pkg/health"
)

type statusBody struct {
	Status           string `json:"status"`
	Chains           int    `json:"chains"`
	TrackedAccounts  int    `json:"tracked_accounts"`
	StandardAccounts int    `json:"standard_accounts"`
}

func TestRoutes_Status(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.RecordSuccess(uuid.New())

	w := env.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[statusBody](t, w)
	assert.Equal(t, statusBody{Status: "ok", Chains: 1, TrackedAccounts: 1, StandardAccounts: 1}, got)
}

func TestRoutes_Health(t *testing.T) {
	env := newTestEnv(t)
	cooling := uuid.New()
	env.tracker.RecordFailure(cooling, provider.ReasonRateLimit, 0)

	w := env.do(t, http.MethodGet, "/api/v1/health/accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Accounts []health.AccountSnapshot `json:"accounts"`
	}](t, w)
	require.Len(t, list.Accounts, 1)
	assert.Equal(t, cooling, list.Accounts[0].AccountID)
	assert.False(t, list.Accounts[0].IsHealthy)

	w = env.do(t, http.MethodGet, "/api/v1/health/accounts/"+cooling.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[health.AccountSnapshot](t, w)
	assert.False(t, snap.IsHealthy)
	require.NotNil(t, snap.CooldownRemainingSecs)
	assert.InDelta(t, 5.0, *snap.CooldownRemainingSecs, 0.001)
	require.NotNil(t, snap.LastFailureReason)
	assert.Equal(t, "rate_limit", *snap.LastFailureReason)
	assert.Equal(t, uint64(1), snap.TotalRateLimits)
}

func TestRoutes_HealthUnknownAccountIsHealthy(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	w := env.do(t, http.MethodGet, "/api/v1/health/accounts/"+id.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[health.AccountSnapshot](t, w)
	assert.Equal(t, id, snap.AccountID)
	assert.True(t, snap.IsHealthy)
	assert.Zero(t, snap.TotalRequests)
	assert.Nil(t, snap.CooldownRemainingSecs)
}

func TestRoutes_HealthMalformedID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health/accounts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/health/accounts/not-a-uuid/clear-cooldown", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_ClearCooldown(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.tracker.RecordFailure(id, provider.ReasonServerError, time.Minute)
	require.False(t, env.tracker.IsHealthy(id))

	w := env.do(t, http.MethodPost, "/api/v1/health/accounts/"+id.String()+"/clear-cooldown", nil)
	require.Equal(t, http.StatusOK, w.Code)

	snap := decode[health.AccountSnapshot](t, w)
	assert.True(t, snap.IsHealthy)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.Equal(t, uint64(1), snap.TotalErrors, "counters survive a manual clear")
	assert.True(t, env.tracker.IsHealthy(id))
}

func TestRoutes_Chains(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/chains", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Chains []chain.ModelChain `json:"chains"`
	}](t, w)
	require.Len(t, list.Chains, 1)
	assert.Equal(t, chain.BuiltinDefaultID, list.Chains[0].ID)

	w = env.do(t, http.MethodGet, "/api/v1/chains/builtin%2Fsmart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	c := decode[chain.ModelChain](t, w)
	assert.Equal(t, "Smart (Default)", c.Name)
	assert.Len(t, c.Entries, 3)

	w = env.do(t, http.MethodGet, "/api/v1/chains/default", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, chain.BuiltinDefaultID, decode[chain.ModelChain](t, w).ID)

	w = env.do(t, http.MethodGet, "/api/v1/chains/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_PutChain(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"name":       "Fast",
		"entries":    []map[string]string{{"provider_id": "groq", "model_id": "llama-3.3-70b"}},
		"is_default": true,
	}
	w := env.do(t, http.MethodPut, "/api/v1/chains/fast", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	c := decode[chain.ModelChain](t, w)
	assert.Equal(t, "fast", c.ID)
	assert.True(t, c.IsDefault)
	assert.False(t, c.CreatedAt.IsZero())

	d, ok := env.chains.Default()
	require.True(t, ok)
	assert.Equal(t, "fast", d.ID)
	builtin, _ := env.chains.Get(chain.BuiltinDefaultID)
	assert.False(t, builtin.IsDefault)

	// Missing model id is rejected by the schema.
	w = env.do(t, http.MethodPut, "/api/v1/chains/bad", map[string]any{
		"entries": []map[string]string{{"provider_id": "groq"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Blank values pass the schema but fail chain validation.
	w = env.do(t, http.MethodPut, "/api/v1/chains/bad", map[string]any{
		"entries": []map[string]string{{"provider_id": " ", "model_id": "m"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	_, ok = env.chains.Get("bad")
	assert.False(t, ok)
}

func TestRoutes_DeleteChain(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodDelete, "/api/v1/chains/builtin%2Fsmart", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "the last chain is kept")

	env.chains.Upsert(chain.ModelChain{ID: "other", Entries: []chain.ChainEntry{{ProviderID: "zai", ModelID: "m"}}})

	w = env.do(t, http.MethodDelete, "/api/v1/chains/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/chains/builtin%2Fsmart", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, env.chains.Len())
}

func TestRoutes_DeleteChainConcurrent(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"a", "b"} {
		env.chains.Upsert(chain.ModelChain{ID: id, Entries: []chain.ChainEntry{{ProviderID: "zai", ModelID: "m"}}})
	}

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- env.do(t, http.MethodDelete, "/api/v1/chains/a", nil).Code
		}()
	}
	wg.Wait()
	close(codes)

	counts := map[int]int{}
	for c := range codes {
		counts[c]++
	}
	assert.Equal(t, map[int]int{http.StatusNoContent: 1, http.StatusNotFound: n - 1}, counts,
		"losing deletes report a missing chain, not a conflict")
	assert.Equal(t, 2, env.chains.Len())
}

func TestRoutes_ChainLookupFallsBackToBuiltin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/chains/smart", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, chain.BuiltinDefaultID, decode[chain.ModelChain](t, w).ID)

	w = env.do(t, http.MethodGet, "/api/v1/chains/smart/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, chain.BuiltinDefaultID, decode[routesBody](t, w).ChainID)

	// A stored chain with the bare name shadows the builtin.
	env.chains.Upsert(chain.ModelChain{ID: "smart", Entries: []chain.ChainEntry{{ProviderID: "groq", ModelID: "m"}}})
	w = env.do(t, http.MethodGet, "/api/v1/chains/smart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "smart", decode[chain.ModelChain](t, w).ID)

	w = env.do(t, http.MethodGet, "/api/v1/chains/nope/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type routesBody struct {
	ChainID string             `json:"chain_id"`
	Routes  []server.RouteView `json:"routes"`
}

func TestRoutes_ResolveChain(t *testing.T) {
	env := newTestEnv(t)

	stored := &store.Account{ID: uuid.New(), ProviderType: provider.TypeZAI, APIKey: ptr("secret-key"), Enabled: true}
	require.NoError(t, env.accounts.Create(context.Background(), stored))

	w := env.do(t, http.MethodGet, "/api/v1/chains/builtin%2Fsmart/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-key")
	assert.NotContains(t, w.Body.String(), "std-key")

	got := decode[routesBody](t, w)
	assert.Equal(t, chain.BuiltinDefaultID, got.ChainID)
	require.Len(t, got.Routes, 2, "zai from the store, minimax from config, cerebras unconfigured")
	assert.Equal(t, stored.ID, got.Routes[0].AccountID)
	assert.Equal(t, "glm-4-plus", got.Routes[0].ModelID)
	assert.True(t, got.Routes[0].HasAPIKey)
	assert.Equal(t, provider.StableAccountID("minimax"), got.Routes[1].AccountID)
	assert.Equal(t, "minimax", got.Routes[1].ProviderType)

	env.tracker.RecordFailure(stored.ID, provider.ReasonRateLimit, 0)
	got = decode[routesBody](t, env.do(t, http.MethodGet, "/api/v1/chains/builtin%2Fsmart/resolve", nil))
	require.Len(t, got.Routes, 1)
	assert.Equal(t, "minimax", got.Routes[0].ProviderID)

	w = env.do(t, http.MethodGet, "/api/v1/chains/missing/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_Accounts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/accounts", map[string]any{
		"provider_type": "Z-AI",
		"api_key":       "k-123",
		"priority":      2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "k-123", "api keys are write-only")

	created := decode[server.AccountView](t, w)
	assert.Equal(t, "zai", created.ProviderType)
	assert.Equal(t, "zai", created.Name)
	assert.Equal(t, 2, created.Priority)
	assert.True(t, created.Enabled)
	assert.True(t, created.HasAPIKey)

	stored, err := env.accounts.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.APIKey)
	assert.Equal(t, "k-123", *stored.APIKey)

	w = env.do(t, http.MethodGet, "/api/v1/accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Accounts []server.AccountView         `json:"accounts"`
		Standard []server.StandardAccountView `json:"standard"`
	}](t, w)
	require.Len(t, list.Accounts, 1)
	assert.Equal(t, created.ID, list.Accounts[0].ID)
	require.Len(t, list.Standard, 1)
	assert.Equal(t, "minimax", list.Standard[0].ProviderID)
	assert.True(t, list.Standard[0].HasAPIKey)

	w = env.do(t, http.MethodDelete, "/api/v1/accounts/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/accounts/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/accounts/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_UpdateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeZAI, Name: "primary", APIKey: ptr("k-1"), Enabled: true}
	require.NoError(t, env.accounts.Create(ctx, a))
	path := "/api/v1/accounts/" + a.ID.String()

	w := env.do(t, http.MethodPatch, path, map[string]any{"priority": 5, "enabled": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[server.AccountView](t, w)
	assert.Equal(t, 5, got.Priority)
	assert.False(t, got.Enabled)
	assert.Equal(t, "primary", got.Name, "absent fields are kept")
	assert.True(t, got.HasAPIKey)

	stored, err := env.accounts.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Priority)
	assert.False(t, stored.Enabled)
	require.NotNil(t, stored.APIKey)
	assert.Equal(t, "k-1", *stored.APIKey)

	w = env.do(t, http.MethodPatch, path, map[string]any{"api_key": "", "name": "backup"})
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[server.AccountView](t, w)
	assert.False(t, got.HasAPIKey)
	assert.Equal(t, "backup", got.Name)

	w = env.do(t, http.MethodPatch, "/api/v1/accounts/"+uuid.NewString(), map[string]any{"priority": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, "/api/v1/accounts/nope", map[string]any{"priority": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, path, map[string]any{"priority": -1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRoutes_CreateAccountValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/accounts", map[string]any{"provider_type": "acme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/accounts", map[string]any{"provider_type": "groq", "enabled": false})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, decode[server.AccountView](t, w).Enabled)
}

func TestRoutes_ListModels(t *testing.T) {
	env := newTestEnv(t)
	env.chains.SetNowFunc(func() time.Time { return time.Unix(1_750_000_000, 0) })
	env.chains.Upsert(chain.ModelChain{ID: "fast", Entries: []chain.ChainEntry{{ProviderID: "groq", ModelID: "m"}}})

	w := env.do(t, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[struct {
		Object string               `json:"object"`
		Data   []server.ModelObject `json:"data"`
	}](t, w)
	assert.Equal(t, "list", got.Object)
	require.Len(t, got.Data, 2)
	assert.Equal(t, chain.BuiltinDefaultID, got.Data[0].ID)
	assert.Equal(t, server.ModelObject{ID: "fast", Object: "model", Created: 1_750_000_000, OwnedBy: "chainroute"}, got.Data[1])
}

func TestNewServices_RequiresDependencies(t *testing.T) {
	env := newTestEnv(t)

	_, err := server.NewServices(nil, env.tracker, env.accounts, nil, nil)
	assert.Error(t, err)
	_, err = server.NewServices(env.chains, nil, env.accounts, nil, nil)
	assert.Error(t, err)
	_, err = server.NewServices(env.chains, env.tracker, nil, nil, nil)
	assert.Error(t, err)

	svc, err := server.NewServices(env.chains, env.tracker, env.accounts, nil, nil)
	require.NoError(t, err)
	assert.Same(t, env.chains, svc.Chains())
}

type probeBody struct {
	ChainID    string     `json:"chain_id"`
	OK         bool       `json:"ok"`
	Attempts   int        `json:"attempts"`
	StatusCode int        `json:"status_code"`
	ProviderID string     `json:"provider_id"`
	AccountID  *uuid.UUID `json:"account_id"`
	Error      string     `json:"error"`
}

func TestRoutes_ProbeChain(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/limited/") {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer upstream.Close()

	env := newTestEnv(t)
	env.svc.EnableProbe(relay.New(env.tracker, time.Second), upstream.Client())

	limited := &store.Account{ID: uuid.New(), ProviderType: provider.TypeCustom, BaseURL: ptr(upstream.URL + "/limited"), Enabled: true, Priority: 0}
	healthy := &store.Account{ID: uuid.New(), ProviderType: provider.TypeCustom, BaseURL: ptr(upstream.URL + "/ok"), Enabled: true, Priority: 1}
	require.NoError(t, env.accounts.Create(context.Background(), limited))
	require.NoError(t, env.accounts.Create(context.Background(), healthy))
	env.chains.Upsert(chain.ModelChain{ID: "local", Entries: []chain.ChainEntry{{ProviderID: "custom", ModelID: "qwen"}}})

	w := env.do(t, http.MethodPost, "/api/v1/chains/local/probe", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[probeBody](t, w)
	assert.True(t, got.OK)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	require.NotNil(t, got.AccountID)
	assert.Equal(t, healthy.ID, *got.AccountID)

	snap := env.tracker.Health(limited.ID)
	assert.False(t, snap.IsHealthy)
	require.NotNil(t, snap.CooldownRemainingSecs)
	assert.InDelta(t, 30.0, *snap.CooldownRemainingSecs, 0.001, "Retry-After wins over backoff")

	// The limited account is now skipped entirely.
	got = decode[probeBody](t, env.do(t, http.MethodPost, "/api/v1/chains/local/probe", nil))
	assert.True(t, got.OK)
	assert.Equal(t, 1, got.Attempts)
}

func TestRoutes_ChainCheckSkipsRouteWithoutEndpoint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer upstream.Close()

	env := newTestEnv(t)
	env.svc.EnableProbe(relay.New(env.tracker, time.Second), upstream.Client())

	azure := &store.Account{ID: uuid.New(), ProviderType: provider.TypeAzure, APIKey: ptr("az-key"), Enabled: true}
	require.NoError(t, env.accounts.Create(context.Background(), azure))
	env.chains.Upsert(chain.ModelChain{ID: "azure-only", Entries: []chain.ChainEntry{{ProviderID: "azure", ModelID: "gpt-4o"}}})

	w := env.do(t, http.MethodPost, "/api/v1/chains/azure-only/probe", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[probeBody](t, w)
	assert.False(t, got.OK)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.Error, "no models endpoint")

	snap := env.tracker.Health(azure.ID)
	assert.True(t, snap.IsHealthy, "an account that was never contacted stays healthy")
	assert.Zero(t, snap.TotalRequests)
	assert.Zero(t, snap.ConsecutiveFailures)

	// Behind a reachable route, the skipped account does not block the chain.
	custom := &store.Account{ID: uuid.New(), ProviderType: provider.TypeCustom, BaseURL: ptr(upstream.URL), Enabled: true}
	require.NoError(t, env.accounts.Create(context.Background(), custom))
	env.chains.Upsert(chain.ModelChain{ID: "mixed", Entries: []chain.ChainEntry{
		{ProviderID: "azure", ModelID: "gpt-4o"},
		{ProviderID: "custom", ModelID: "qwen"},
	}})

	got = decode[probeBody](t, env.do(t, http.MethodPost, "/api/v1/chains/mixed/probe", nil))
	assert.True(t, got.OK)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.AccountID)
	assert.Equal(t, custom.ID, *got.AccountID)
	assert.True(t, env.tracker.IsHealthy(azure.ID))
}

func TestRoutes_ProbeChainNoRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.svc.EnableProbe(relay.New(env.tracker, 0), nil)
	env.chains.Upsert(chain.ModelChain{ID: "empty", Entries: []chain.ChainEntry{{ProviderID: "groq", ModelID: "m"}}})

	w := env.do(t, http.MethodPost, "/api/v1/chains/empty/probe", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[probeBody](t, w)
	assert.False(t, got.OK)
	assert.Zero(t, got.Attempts)
	assert.Nil(t, got.AccountID)
	assert.Contains(t, got.Error, "no usable routes")
}

func TestRoutes_ProbeDisabled(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/chains/builtin%2Fsmart/probe", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
