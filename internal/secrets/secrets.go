// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps provider API keys out of config files. Values of the
// form keyring://service/key are looked up in a Store at load time.
package secrets

// DefaultService is the keyring service used by the CLI when none is given.
const DefaultService = "chainroute"

// Store provides secure secret storage operations.
type Store interface {
	// Store saves a secret value under the given service and key.
	Store(service, key, value string) error

	// Retrieve fetches the secret value for the given service and key.
	// Missing keys yield routeerr.CodeSecretNotFound.
	Retrieve(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// Missing keys yield routeerr.CodeSecretNotFound.
	Delete(service, key string) error

	// List returns all key names stored under the given service, sorted.
	List(service string) ([]string, error)
}
