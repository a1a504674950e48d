// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/chainroute/internal/secrets"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key -> value (service is always "chainroute")
}

var _ secrets.Store = (*mockSecretStore)(nil)

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", routeerr.Errorf(routeerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return routeerr.Errorf(routeerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func useMockSecrets(t *testing.T, m *mockSecretStore) {
	t.Helper()
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return m }
	t.Cleanup(func() { secretStoreFactory = old })
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		wantOut string
	}{
		{name: "empty store", wantOut: "No secrets stored.\n"},
		{name: "single key", keys: []string{"zai-api-key"}, wantOut: "zai-api-key\n"},
		{name: "multiple keys", keys: []string{"zai", "groq"}, wantOut: "groq\nzai\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useMockSecrets(t, newMockSecretStore(tt.keys...))

			out, err := executeCmd(t, nil, "secret", "list")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestSecretSet(t *testing.T) {
	m := newMockSecretStore()
	useMockSecrets(t, m)

	out, err := executeCmd(t, nil, "secret", "set", "zai", "sk-arg")
	require.NoError(t, err)
	assert.Contains(t, out, "keyring://chainroute/zai")
	assert.Equal(t, "sk-arg", m.data["zai"])

	_, err = executeCmd(t, strings.NewReader("sk-stdin\n"), "secret", "set", "groq")
	require.NoError(t, err)
	assert.Equal(t, "sk-stdin", m.data["groq"])
}

func TestSecretSet_EmptyValue(t *testing.T) {
	m := newMockSecretStore()
	useMockSecrets(t, m)

	_, err := executeCmd(t, strings.NewReader("\n"), "secret", "set", "zai")
	require.Error(t, err)
	assert.True(t, routeerr.HasCode(err, routeerr.CodeCLIInputInvalid))
	assert.Empty(t, m.data)
}

func TestSecretDelete(t *testing.T) {
	m := newMockSecretStore("zai")
	useMockSecrets(t, m)

	out, err := executeCmd(t, nil, "secret", "delete", "zai")
	require.NoError(t, err)
	assert.Equal(t, "Deleted secret: zai\n", out)
	assert.Empty(t, m.data)

	_, err = executeCmd(t, nil, "secret", "delete", "zai")
	require.Error(t, err)
	assert.True(t, routeerr.HasCode(err, routeerr.CodeSecretNotFound))
	assert.Contains(t, err.Error(), `"zai" not found`)
}
