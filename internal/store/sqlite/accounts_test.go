// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/store"
	"github.com/sigil-dev/chainroute/internal/store/sqlite"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

func TestAccountStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	a := &store.Account{
		ID:           uuid.New(),
		ProviderType: provider.TypeZAI,
		Name:         "zai primary",
		APIKey:       strPtr("sk-zai"),
		Priority:     1,
		Enabled:      true,
		CreatedAt:    created,
	}
	require.NoError(t, s.Create(ctx, a))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, provider.TypeZAI, got.ProviderType)
	assert.Equal(t, "zai primary", got.Name)
	require.NotNil(t, got.APIKey)
	assert.Equal(t, "sk-zai", *got.APIKey)
	assert.Nil(t, got.BaseURL)
	assert.Equal(t, 1, got.Priority)
	assert.True(t, got.Enabled)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, created.Equal(got.UpdatedAt), "UpdatedAt defaults to CreatedAt")
}

func TestAccountStore_CreateSetsTimestamps(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s.SetNowFunc(func() time.Time { return now })

	a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeGroq, Enabled: true}
	require.NoError(t, s.Create(context.Background(), a))
	assert.Equal(t, now, a.CreatedAt)
	assert.Equal(t, now, a.UpdatedAt)
}

func TestAccountStore_CreateDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeOpenAI, Enabled: true}
	require.NoError(t, s.Create(ctx, a))

	err := s.Create(ctx, a)
	require.Error(t, err)
	assert.True(t, routeerr.IsConflict(err), "got %s", routeerr.CodeOf(err))
}

func TestAccountStore_CreateInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		account *store.Account
	}{
		{name: "nil id", account: &store.Account{ProviderType: provider.TypeOpenAI}},
		{name: "unknown type", account: &store.Account{ID: uuid.New(), ProviderType: "acme"}},
		{name: "alias not canonical", account: &store.Account{ID: uuid.New(), ProviderType: "gemini"}},
		{name: "negative priority", account: &store.Account{ID: uuid.New(), ProviderType: provider.TypeOpenAI, Priority: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Create(ctx, tt.account)
			require.Error(t, err)
			assert.True(t, routeerr.IsInvalidInput(err))
		})
	}
}

func TestAccountStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, routeerr.IsNotFound(err))
}

func TestAccountStore_Update(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	s.SetNowFunc(func() time.Time { return created })

	a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeMinimax, APIKey: strPtr("old"), Enabled: true}
	require.NoError(t, s.Create(ctx, a))

	s.SetNowFunc(func() time.Time { return updated })
	a.APIKey = nil
	a.Enabled = false
	a.BaseURL = strPtr("https://proxy.example/v1")
	require.NoError(t, s.Update(ctx, a))

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.APIKey)
	assert.False(t, got.Enabled)
	require.NotNil(t, got.BaseURL)
	assert.Equal(t, "https://proxy.example/v1", *got.BaseURL)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, updated.Equal(got.UpdatedAt))
}

func TestAccountStore_UpdateNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(context.Background(), &store.Account{ID: uuid.New(), ProviderType: provider.TypeGroq})
	require.Error(t, err)
	assert.True(t, routeerr.IsNotFound(err))
}

func TestAccountStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeCerebras, Enabled: true}
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Delete(ctx, a.ID))

	_, err := s.Get(ctx, a.ID)
	assert.True(t, routeerr.IsNotFound(err))

	err = s.Delete(ctx, a.ID)
	require.Error(t, err)
	assert.True(t, routeerr.IsNotFound(err))
}

func TestAccountStore_GetAllByTypeOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	idLow := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	idHigh := uuid.MustParse("ffffffff-0000-4000-8000-000000000001")

	accounts := []*store.Account{
		{ID: uuid.New(), ProviderType: provider.TypeZAI, Name: "p2", Priority: 2, CreatedAt: base},
		{ID: idHigh, ProviderType: provider.TypeZAI, Name: "p0-same-time-high-id", Priority: 0, CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), ProviderType: provider.TypeZAI, Name: "p0-late", Priority: 0, CreatedAt: base.Add(time.Hour)},
		{ID: idLow, ProviderType: provider.TypeZAI, Name: "p0-same-time-low-id", Priority: 0, CreatedAt: base.Add(time.Minute)},
		{ID: uuid.New(), ProviderType: provider.TypeZAI, Name: "p0-early", Priority: 0, CreatedAt: base},
		{ID: uuid.New(), ProviderType: provider.TypeGroq, Name: "other type", Priority: 0, CreatedAt: base},
	}
	for _, a := range accounts {
		require.NoError(t, s.Create(ctx, a))
	}

	got, err := s.GetAllByType(ctx, provider.TypeZAI)
	require.NoError(t, err)

	names := make([]string, len(got))
	for i, a := range got {
		names[i] = a.Name
	}
	assert.Equal(t, []string{
		"p0-early",
		"p0-same-time-low-id",
		"p0-same-time-high-id",
		"p0-late",
		"p2",
	}, names)

	none, err := s.GetAllByType(ctx, provider.TypeMistral)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAccountStore_GetAllByTypeIncludesDisabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeZAI, Enabled: false, APIKey: strPtr("k")}
	require.NoError(t, s.Create(ctx, a))

	got, err := s.GetAllByType(ctx, provider.TypeZAI)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].HasCredentials())
}

func TestAccountStore_ListPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeOpenAI, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.Create(ctx, a))
		ids = append(ids, a.ID)
	}

	all, err := s.List(ctx, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, a := range all {
		assert.Equal(t, ids[i], a.ID)
	}

	page, err := s.List(ctx, store.ListOpts{Limit: 2, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[4], page[1].ID)
}

func TestAccountStore_PersistsAcrossReopen(t *testing.T) {
	path := testDBPath(t, "reopen")
	ctx := context.Background()

	s1, err := sqlite.NewAccountStore(path)
	require.NoError(t, err)
	a := &store.Account{ID: uuid.New(), ProviderType: provider.TypeDeepInfra, APIKey: strPtr("k"), Enabled: true}
	require.NoError(t, s1.Create(ctx, a))
	require.NoError(t, s1.Close())

	s2, err := sqlite.NewAccountStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.HasCredentials())
}
