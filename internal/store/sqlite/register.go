// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite is the default account store backend.
package sqlite

import (
	"os"
	"path/filepath"

	"github.com/sigil-dev/chainroute/internal/store"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// AccountsDBFile is the database file name inside the data directory.
const AccountsDBFile = "accounts.db"

func init() {
	store.RegisterBackend("sqlite", newAccountStore)
}

func newAccountStore(dataPath string) (store.AccountStore, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "creating data directory", routeerr.FieldPath(dataPath))
	}
	s, err := NewAccountStore(filepath.Join(dataPath, AccountsDBFile))
	if err != nil {
		return nil, err
	}
	return s, nil
}
