// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/relay"
	"github.com/sigil-dev/chainroute/internal/server"
	"github.com/sigil-dev/chainroute/internal/store"
)

const testToken = "cli-test-token"

// executeCmd runs the root command with args against a fresh global viper
// and a temporary HOME, returning combined output.
func executeCmd(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(tokenEnv, "")

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// testGateway is a real admin API over memory stores.
type testGateway struct {
	addr     string
	chains   *chain.Store
	tracker  *provider.HealthTracker
	accounts *store.MemoryAccountStore
	standard chain.StandardAccount
}

// newTestGateway serves the admin API on an httptest server and points
// defaultHTTPClient at it.
func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	gw := &testGateway{
		chains:   chain.NewStore(filepath.Join(t.TempDir(), "chains.json")),
		tracker:  provider.NewHealthTracker(provider.DefaultBackoffConfig()),
		accounts: store.NewMemoryAccountStore(),
	}

	sa, ok := chain.NewStandardAccount(provider.BuiltinTypes{}, "minimax", "std-key", "")
	require.True(t, ok)
	gw.standard = sa

	svc, err := server.NewServices(gw.chains, gw.tracker, gw.accounts, []chain.StandardAccount{sa}, nil)
	require.NoError(t, err)
	svc.EnableProbe(relay.New(gw.tracker, time.Second), &http.Client{Timeout: 5 * time.Second})

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		AuthTokens: []string{testToken},
		Services:   svc,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	old := defaultHTTPClient
	defaultHTTPClient = ts.Client()
	t.Cleanup(func() { defaultHTTPClient = old })

	gw.addr = strings.TrimPrefix(ts.URL, "http://")
	return gw
}

// run executes a gateway command with --address and --token set.
func (gw *testGateway) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCmd(t, nil, append(args, "--address", gw.addr, "--token", testToken)...)
}
