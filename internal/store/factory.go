// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend string // "sqlite" or "memory"; empty means sqlite.
}

// AccountStoreFactory opens an account store rooted at dataPath.
type AccountStoreFactory func(dataPath string) (AccountStore, error)

var (
	accountFactories = map[string]AccountStoreFactory{}
	factoriesMu      sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(string) (AccountStore, error) {
		return NewMemoryAccountStore(), nil
	})
}

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, factory AccountStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	accountFactories[name] = factory
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewAccountStore opens the account store for the configured backend.
func NewAccountStore(cfg *StorageConfig, dataPath string) (AccountStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := accountFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, routeerr.Errorf(routeerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}
