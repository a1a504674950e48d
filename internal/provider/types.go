// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"strings"
)

// ProviderType identifies the kind of backend behind an account.
type ProviderType string

const (
	TypeAnthropic     ProviderType = "anthropic"
	TypeOpenAI        ProviderType = "openai"
	TypeGoogle        ProviderType = "google"
	TypeAmazonBedrock ProviderType = "amazon-bedrock"
	TypeAzure         ProviderType = "azure"
	TypeCohere        ProviderType = "cohere"
	TypeGithubCopilot ProviderType = "github-copilot"
	TypeXAI           ProviderType = "xai"
	TypeCerebras      ProviderType = "cerebras"
	TypeZAI           ProviderType = "zai"
	TypeMinimax       ProviderType = "minimax"
	TypeDeepInfra     ProviderType = "deepinfra"
	TypeGroq          ProviderType = "groq"
	TypeOpenRouter    ProviderType = "openrouter"
	TypeMistral       ProviderType = "mistral"
	TypeTogetherAI    ProviderType = "togetherai"
	TypePerplexity    ProviderType = "perplexity"
	TypeCustom        ProviderType = "custom"
)

// knownTypes lists every builtin provider type in display order.
var knownTypes = []ProviderType{
	TypeAnthropic, TypeOpenAI, TypeGoogle, TypeAmazonBedrock, TypeAzure,
	TypeCohere, TypeGithubCopilot, TypeXAI, TypeCerebras, TypeZAI,
	TypeMinimax, TypeDeepInfra, TypeGroq, TypeOpenRouter, TypeMistral,
	TypeTogetherAI, TypePerplexity, TypeCustom,
}

// typeAliases maps alternative spellings seen in configs to a canonical type.
var typeAliases = map[string]ProviderType{
	"gemini":   TypeGoogle,
	"bedrock":  TypeAmazonBedrock,
	"together": TypeTogetherAI,
	"x-ai":     TypeXAI,
	"z-ai":     TypeZAI,
	"copilot":  TypeGithubCopilot,
}

// defaultBaseURLs holds the OpenAI-compatible API roots. Types without an
// entry do not speak the OpenAI wire format (or, for custom, rely on the
// account's own base URL).
var defaultBaseURLs = map[ProviderType]string{
	TypeOpenAI:     "https://api.openai.com/v1",
	TypeXAI:        "https://api.x.ai/v1",
	TypeCerebras:   "https://api.cerebras.ai/v1",
	TypeZAI:        "https://api.z.ai/api/coding/paas/v4",
	TypeMinimax:    "https://api.minimax.io/v1",
	TypeDeepInfra:  "https://api.deepinfra.com/v1/openai",
	TypeGroq:       "https://api.groq.com/openai/v1",
	TypeOpenRouter: "https://openrouter.ai/api/v1",
	TypeMistral:    "https://api.mistral.ai/v1",
	TypeTogetherAI: "https://api.together.xyz/v1",
	TypePerplexity: "https://api.perplexity.ai",
}

// KnownTypes returns a copy of the builtin provider types.
func KnownTypes() []ProviderType {
	return append([]ProviderType(nil), knownTypes...)
}

// ProviderTypeFromID maps a provider id string to its type. Matching is
// case-insensitive and accepts common aliases.
func ProviderTypeFromID(id string) (ProviderType, bool) {
	norm := strings.ToLower(strings.TrimSpace(id))
	if norm == "" {
		return "", false
	}
	for _, pt := range knownTypes {
		if string(pt) == norm {
			return pt, true
		}
	}
	if pt, ok := typeAliases[norm]; ok {
		return pt, true
	}
	return "", false
}

// String implements fmt.Stringer.
func (t ProviderType) String() string {
	return string(t)
}

// DefaultBaseURL returns the OpenAI-compatible API root for the type.
func (t ProviderType) DefaultBaseURL() (string, bool) {
	u, ok := defaultBaseURLs[t]
	return u, ok
}

// TypeRegistry resolves provider id strings found in chain entries.
type TypeRegistry interface {
	FromID(id string) (ProviderType, bool)
}

// BuiltinTypes is the TypeRegistry backed by the builtin provider list.
type BuiltinTypes struct{}

// Compile-time check that BuiltinTypes implements TypeRegistry.
var _ TypeRegistry = BuiltinTypes{}

// FromID implements TypeRegistry.
func (BuiltinTypes) FromID(id string) (ProviderType, bool) {
	return ProviderTypeFromID(id)
}
