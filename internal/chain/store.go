// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package chain

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// Store is the persistent chain catalog. Reads take the read lock; writes
// mutate under the write lock and persist after releasing it, so a slow
// disk never blocks routing. A failed write is logged and the in-memory
// state stays authoritative until restart.
type Store struct {
	mu      sync.RWMutex
	chains  []ModelChain
	version uint64 // bumped on every mutation

	path    string
	nowFunc func() time.Time // for testing

	// persistMu serializes file writes; written tracks the newest version
	// on disk so a stale snapshot never overwrites a newer one.
	persistMu sync.Mutex
	written   uint64
}

// NewStore loads the catalog at path. A missing or unreadable file yields
// an empty catalog, which is then seeded with the builtin default chain
// and persisted.
func NewStore(path string) *Store {
	return newStore(path, time.Now)
}

func newStore(path string, now func() time.Time) *Store {
	s := &Store{path: path, nowFunc: now}
	s.chains = loadChains(path)

	if len(s.chains) == 0 {
		s.chains = []ModelChain{BuiltinDefaultChain(now())}
		s.version++
		slog.Info("chain catalog empty, seeded builtin default", "chain_id", BuiltinDefaultID, "path", path)
		s.persist(s.version, cloneAll(s.chains))
	}

	return s
}

// SetNowFunc overrides the time source (for testing).
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	s.nowFunc = fn
	s.mu.Unlock()
}

// Path returns the catalog file location.
func (s *Store) Path() string {
	return s.path
}

func loadChains(path string) []ModelChain {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		slog.Error("reading chain catalog, starting empty",
			"error", routeerr.Wrap(err, routeerr.CodeChainLoadReadFailure, "read failed", routeerr.FieldPath(path)))
		return nil
	}

	var chains []ModelChain
	if err := json.Unmarshal(data, &chains); err != nil {
		slog.Error("parsing chain catalog, starting empty",
			"error", routeerr.Wrap(err, routeerr.CodeChainLoadInvalidFormat, "invalid JSON", routeerr.FieldPath(path)))
		return nil
	}
	return chains
}

// List returns a copy of every chain in storage order.
func (s *Store) List() []ModelChain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.chains)
}

// Len returns the number of chains.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chains)
}

// Get returns the chain with the given id.
func (s *Store) Get(id string) (ModelChain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.chains[i].Clone(), true
	}
	return ModelChain{}, false
}

// Default returns the chain flagged as default, else the first chain.
func (s *Store) Default() (ModelChain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chains {
		if c.IsDefault {
			return c.Clone(), true
		}
	}
	if len(s.chains) > 0 {
		return s.chains[0].Clone(), true
	}
	return ModelChain{}, false
}

// LookupID maps a requested model name to a chain id: the name itself when
// such a chain exists, else the builtin chain of that name.
func (s *Store) LookupID(requested string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.indexLocked(requested) >= 0 {
		return requested, true
	}
	if id := BuiltinPrefix + requested; s.indexLocked(id) >= 0 {
		return id, true
	}
	return "", false
}

// Upsert inserts c or replaces the chain with the same id and returns the
// stored value. UpdatedAt is always set to now; CreatedAt is kept from the
// replaced chain, or set to now for new chains, when c leaves it zero. A
// default chain clears the flag on every other chain.
func (s *Store) Upsert(c ModelChain) ModelChain {
	c = c.Clone()

	s.mu.Lock()
	now := s.nowFunc()
	c.UpdatedAt = now

	idx := s.indexLocked(c.ID)
	if c.CreatedAt.IsZero() {
		if idx >= 0 && !s.chains[idx].CreatedAt.IsZero() {
			c.CreatedAt = s.chains[idx].CreatedAt
		} else {
			c.CreatedAt = now
		}
	}

	if c.IsDefault {
		for i := range s.chains {
			s.chains[i].IsDefault = false
		}
	}

	if idx >= 0 {
		s.chains[idx] = c
	} else {
		s.chains = append(s.chains, c)
	}

	s.version++
	version, snapshot := s.version, cloneAll(s.chains)
	s.mu.Unlock()

	s.persist(version, snapshot)
	return c.Clone()
}

// Delete removes the chain with the given id. It refuses, returning false,
// when the catalog holds one chain or fewer so it can never become empty.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	if len(s.chains) <= 1 {
		s.mu.Unlock()
		return false
	}

	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	s.chains = slices.Delete(s.chains, idx, idx+1)
	s.version++
	version, snapshot := s.version, cloneAll(s.chains)
	s.mu.Unlock()

	s.persist(version, snapshot)
	return true
}

// indexLocked returns the position of id, or -1.
// The caller MUST hold at least s.mu.RLock.
func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.chains, func(c ModelChain) bool { return c.ID == id })
}

// persist writes snapshot unless a newer version is already on disk.
// Failures are logged, never returned.
func (s *Store) persist(version uint64, snapshot []ModelChain) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if version <= s.written {
		return
	}
	if err := writeChains(s.path, snapshot); err != nil {
		slog.Error("persisting chain catalog", "error", err)
		return
	}
	s.written = version
}

// writeChains atomically replaces path with the pretty-printed catalog.
func writeChains(path string, chains []ModelChain) error {
	if chains == nil {
		chains = []ModelChain{}
	}
	data, err := json.MarshalIndent(chains, "", "  ")
	if err != nil {
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "encoding chains", routeerr.FieldPath(path))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "creating directory", routeerr.FieldPath(dir))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "creating temp file", routeerr.FieldPath(path))
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "setting permissions", routeerr.FieldPath(tmpName))
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "writing chains", routeerr.FieldPath(tmpName))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "syncing chains", routeerr.FieldPath(tmpName))
	}
	if err := tmp.Close(); err != nil {
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "closing temp file", routeerr.FieldPath(tmpName))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return routeerr.Wrap(err, routeerr.CodeChainPersistFailure, "renaming into place", routeerr.FieldPath(path))
	}
	return nil
}

func cloneAll(chains []ModelChain) []ModelChain {
	out := make([]ModelChain, len(chains))
	for i, c := range chains {
		out[i] = c.Clone()
	}
	return out
}
