// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/sigil-dev/chainroute/internal/provider"
)

func TestStableAccountID_Deterministic(t *testing.T) {
	for _, id := range []string{"", "zai", "minimax", "a-much-longer-provider-identifier"} {
		assert.Equal(t, provider.StableAccountID(id), provider.StableAccountID(id), id)
	}
}

func TestStableAccountID_VersionAndVariant(t *testing.T) {
	for _, id := range []string{"", "openai", "cerebras", "deepinfra-with-a-long-suffix"} {
		got := provider.StableAccountID(id)
		assert.Equal(t, uuid.Version(4), got.Version(), id)
		assert.Equal(t, uuid.RFC4122, got.Variant(), id)
	}
}

func TestStableAccountID_KnownValue(t *testing.T) {
	// "zai" folds into bytes 0..2; the rest stay zero apart from the
	// version and variant nibbles.
	want := uuid.UUID{'z', 'a', 'i', 0, 0, 0, 0x40, 0, 0x80, 0, 0, 0, 0, 0, 0, 0}
	assert.Equal(t, want, provider.StableAccountID("zai"))
}

func TestStableAccountID_FoldsPastSixteenBytes(t *testing.T) {
	// Byte 16 XORs back into position 0: "a" ^ "a" == 0.
	id := "a123456789abcdefa"
	got := provider.StableAccountID(id)
	assert.Equal(t, byte(0), got[0])
}

func TestStableAccountID_DistinctProviders(t *testing.T) {
	assert.NotEqual(t, provider.StableAccountID("zai"), provider.StableAccountID("groq"))
	assert.NotEqual(t, provider.StableAccountID("openai"), provider.StableAccountID("mistral"))
}
