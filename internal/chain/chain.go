// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package chain holds the catalog of model fallback chains and turns a
// chain into an ordered list of concrete (account, model) routes.
package chain

import (
	"slices"
	"strings"
	"time"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// BuiltinPrefix marks chains shipped with the gateway. A request for model
// "x" falls back to chain "builtin/x" when no chain is named "x".
const BuiltinPrefix = "builtin/"

// BuiltinDefaultID is the chain synthesized when the catalog is empty.
const BuiltinDefaultID = BuiltinPrefix + "smart"

// ChainEntry is one step of a chain: a model on a provider.
type ChainEntry struct {
	ProviderID string `json:"provider_id" yaml:"provider_id"`
	ModelID    string `json:"model_id" yaml:"model_id"`
}

// ModelChain is a named, ordered fallback list. Earlier entries are always
// preferred over later ones.
type ModelChain struct {
	ID        string       `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Entries   []ChainEntry `json:"entries" yaml:"entries"`
	IsDefault bool         `json:"is_default" yaml:"is_default"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy of c.
func (c ModelChain) Clone() ModelChain {
	c.Entries = slices.Clone(c.Entries)
	return c
}

// Validate checks that the chain can be stored and resolved.
func (c ModelChain) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return routeerr.New(routeerr.CodeChainValidateInvalid, "chain id must not be empty")
	}
	for i, e := range c.Entries {
		if strings.TrimSpace(e.ProviderID) == "" {
			return routeerr.New(routeerr.CodeChainValidateInvalid, "chain entry has empty provider_id",
				routeerr.FieldChainID(c.ID), routeerr.Field("entry", i))
		}
		if strings.TrimSpace(e.ModelID) == "" {
			return routeerr.New(routeerr.CodeChainValidateInvalid, "chain entry has empty model_id",
				routeerr.FieldChainID(c.ID), routeerr.Field("entry", i))
		}
	}
	return nil
}

// BuiltinDefaultChain returns the chain used to seed an empty catalog.
func BuiltinDefaultChain(now time.Time) ModelChain {
	return ModelChain{
		ID:   BuiltinDefaultID,
		Name: "Smart (Default)",
		Entries: []ChainEntry{
			{ProviderID: "zai", ModelID: "glm-4-plus"},
			{ProviderID: "minimax", ModelID: "MiniMax-M1"},
			{ProviderID: "cerebras", ModelID: "llama-4-scout-17b-16e-instruct"},
		},
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
