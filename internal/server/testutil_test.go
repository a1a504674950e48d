// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/server"
	"github.com/sigil-dev/chainroute/internal/store"
)

type testEnv struct {
	srv      *server.Server
	chains   *chain.Store
	tracker  *provider.HealthTracker
	accounts *store.MemoryAccountStore
	standard []chain.StandardAccount
	svc      *server.Services
	now      time.Time
}

func newTestEnv(t *testing.T, tokens ...string) *testEnv {
	t.Helper()

	env := &testEnv{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	env.chains = chain.NewStore(filepath.Join(t.TempDir(), "chains.json"))
	env.tracker = provider.NewHealthTracker(provider.DefaultBackoffConfig())
	env.tracker.SetNowFunc(func() time.Time { return env.now })
	env.accounts = store.NewMemoryAccountStore()

	sa, ok := chain.NewStandardAccount(provider.BuiltinTypes{}, "minimax", "std-key", "")
	require.True(t, ok)
	env.standard = []chain.StandardAccount{sa}

	svc, err := server.NewServices(env.chains, env.tracker, env.accounts, env.standard, nil)
	require.NoError(t, err)
	env.svc = svc

	env.srv, err = server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		AuthTokens: tokens,
		Services:   svc,
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func ptr(s string) *string { return &s }

