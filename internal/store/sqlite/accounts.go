// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/store"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// Compile-time interface check.
var _ store.AccountStore = (*AccountStore)(nil)

// AccountStore implements store.AccountStore backed by a single SQLite
// database.
type AccountStore struct {
	db      *sql.DB
	nowFunc func() time.Time // for testing
}

// NewAccountStore opens (or creates) a SQLite database at dbPath and
// initialises the accounts table.
func NewAccountStore(dbPath string) (*AccountStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "opening account db", routeerr.FieldPath(dbPath))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "pinging account db", routeerr.FieldPath(dbPath))
	}

	if err := migrateAccounts(db); err != nil {
		_ = db.Close()
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "migrating account db", routeerr.FieldPath(dbPath))
	}

	return &AccountStore{db: db, nowFunc: time.Now}, nil
}

// SetNowFunc overrides the time source (for testing).
func (s *AccountStore) SetNowFunc(fn func() time.Time) { s.nowFunc = fn }

func migrateAccounts(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	provider_type TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	api_key       TEXT,
	base_url      TEXT,
	priority      INTEGER NOT NULL DEFAULT 0,
	enabled       INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_type_order
	ON accounts(provider_type, priority, created_at, id);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *AccountStore) Close() error { return s.db.Close() }

const accountColumns = `id, provider_type, name, api_key, base_url, priority, enabled, created_at, updated_at`

func (s *AccountStore) Create(ctx context.Context, a *store.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.nowFunc()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	const q = `INSERT INTO accounts (` + accountColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		a.ID.String(), string(a.ProviderType), a.Name,
		nullString(a.APIKey), nullString(a.BaseURL),
		a.Priority, a.Enabled,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return routeerr.Wrap(err, routeerr.CodeStoreAccountConflict, "account already exists",
				routeerr.FieldAccountID(a.ID.String()))
		}
		return routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "inserting account",
			routeerr.FieldAccountID(a.ID.String()))
	}
	return nil
}

func (s *AccountStore) Get(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	a, err := scanAccount(s.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, routeerr.New(routeerr.CodeStoreAccountNotFound, "account not found",
			routeerr.FieldAccountID(id.String()))
	}
	if err != nil {
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "getting account",
			routeerr.FieldAccountID(id.String()))
	}
	return a, nil
}

func (s *AccountStore) Update(ctx context.Context, a *store.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.UpdatedAt = s.nowFunc()

	const q = `UPDATE accounts
SET provider_type = ?, name = ?, api_key = ?, base_url = ?, priority = ?, enabled = ?, updated_at = ?
WHERE id = ?`
	result, err := s.db.ExecContext(ctx, q,
		string(a.ProviderType), a.Name,
		nullString(a.APIKey), nullString(a.BaseURL),
		a.Priority, a.Enabled, formatTime(a.UpdatedAt),
		a.ID.String(),
	)
	if err != nil {
		return routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "updating account",
			routeerr.FieldAccountID(a.ID.String()))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "checking rows for account",
			routeerr.FieldAccountID(a.ID.String()))
	}
	if rows == 0 {
		return routeerr.New(routeerr.CodeStoreAccountNotFound, "account not found",
			routeerr.FieldAccountID(a.ID.String()))
	}
	return nil
}

func (s *AccountStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Account, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT ` + accountColumns + ` FROM accounts
ORDER BY created_at ASC, priority ASC, id ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, limit, opts.Offset)
	if err != nil {
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "listing accounts")
	}
	return collectAccounts(rows)
}

func (s *AccountStore) GetAllByType(ctx context.Context, pt provider.ProviderType) ([]*store.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts
WHERE provider_type = ?
ORDER BY priority ASC, created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, q, string(pt))
	if err != nil {
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "listing accounts by type",
			routeerr.FieldProvider(string(pt)))
	}
	return collectAccounts(rows)
}

func (s *AccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id.String())
	if err != nil {
		return routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "deleting account",
			routeerr.FieldAccountID(id.String()))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "checking rows for account",
			routeerr.FieldAccountID(id.String()))
	}
	if rows == 0 {
		return routeerr.New(routeerr.CodeStoreAccountNotFound, "account not found",
			routeerr.FieldAccountID(id.String()))
	}
	return nil
}

// ---------- scanning helpers ----------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*store.Account, error) {
	var (
		a                    store.Account
		id, pt               string
		apiKey, baseURL      sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &pt, &a.Name, &apiKey, &baseURL, &a.Priority, &a.Enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, routeerr.Wrapf(err, routeerr.CodeStoreDatabaseFailure, "parsing account id %q", id)
	}
	a.ProviderType = provider.ProviderType(pt)
	if apiKey.Valid {
		a.APIKey = &apiKey.String
	}
	if baseURL.Valid {
		a.BaseURL = &baseURL.String
	}
	if a.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, routeerr.Wrapf(err, routeerr.CodeStoreDatabaseFailure, "parsing account %s created_at", id)
	}
	if a.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, routeerr.Wrapf(err, routeerr.CodeStoreDatabaseFailure, "parsing account %s updated_at", id)
	}
	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]*store.Account, error) {
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "scanning account row")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, routeerr.Wrap(err, routeerr.CodeStoreDatabaseFailure, "iterating account rows")
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// formatTime serialises a time for storage. Fixed-width nanoseconds keep
// lexical order equal to chronological order for ORDER BY.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// ParseTime deserialises a time string stored in the database.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
