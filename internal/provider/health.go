// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"bytes"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/chainroute/pkg/health"
)

// CooldownReason records why an account was placed into cooldown.
type CooldownReason string

const (
	ReasonRateLimit   CooldownReason = "rate_limit"   // HTTP 429
	ReasonOverloaded  CooldownReason = "overloaded"   // HTTP 529
	ReasonTimeout     CooldownReason = "timeout"      // connect/read timeout
	ReasonServerError CooldownReason = "server_error" // other 5xx, network errors
	ReasonAuthError   CooldownReason = "auth_error"   // HTTP 401/403
)

// AccountHealth is the mutable health record for one account. It is owned
// by HealthTracker; callers only ever see health.AccountSnapshot values.
type AccountHealth struct {
	// CooldownUntil is zero when the account is healthy.
	CooldownUntil       time.Time
	ConsecutiveFailures uint32
	LastFailureReason   CooldownReason
	// LastFailureAt is for reporting only and never consulted for health.
	LastFailureAt   *time.Time
	TotalRequests   uint64
	TotalSuccesses  uint64
	TotalRateLimits uint64
	TotalErrors     uint64
}

// InCooldown reports whether the cooldown deadline is still ahead of now.
func (a *AccountHealth) InCooldown(now time.Time) bool {
	return !a.CooldownUntil.IsZero() && now.Before(a.CooldownUntil)
}

// RemainingCooldown returns the time left in the cooldown, or zero.
func (a *AccountHealth) RemainingCooldown(now time.Time) time.Duration {
	if !a.InCooldown(now) {
		return 0
	}
	return a.CooldownUntil.Sub(now)
}

// HealthTracker tracks cooldown state for every provider account, keyed by
// account id. Accounts without a record are healthy. The tracker is safe for
// concurrent use; writes to the same account are serialized by a single
// map lock.
type HealthTracker struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*AccountHealth
	backoff  BackoffConfig
	nowFunc  func() time.Time // for testing
}

// NewHealthTracker creates an empty tracker using the given backoff policy.
func NewHealthTracker(backoff BackoffConfig) *HealthTracker {
	return &HealthTracker{
		accounts: make(map[uuid.UUID]*AccountHealth),
		backoff:  backoff,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.nowFunc = fn
	h.mu.Unlock()
}

// Backoff returns the tracker's backoff policy.
func (h *HealthTracker) Backoff() BackoffConfig {
	return h.backoff
}

// IsHealthy reports whether the account may receive traffic now.
func (h *HealthTracker) IsHealthy(accountID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	a, ok := h.accounts[accountID]
	if !ok {
		return true
	}
	return !a.InCooldown(h.nowFunc())
}

// entryLocked returns the record for accountID, creating it if needed.
// The caller MUST hold h.mu.Lock.
func (h *HealthTracker) entryLocked(accountID uuid.UUID) *AccountHealth {
	a, ok := h.accounts[accountID]
	if !ok {
		a = &AccountHealth{}
		h.accounts[accountID] = a
	}
	return a
}

// RecordSuccess counts a successful request, resets the failure streak and
// clears any cooldown.
func (h *HealthTracker) RecordSuccess(accountID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.entryLocked(accountID)
	a.TotalRequests++
	a.TotalSuccesses++
	a.ConsecutiveFailures = 0
	a.CooldownUntil = time.Time{}
}

// RecordFailure counts a failed request and places the account into
// cooldown. A positive retryAfter (typically from a Retry-After header) is
// used verbatim; otherwise the backoff is computed from the streak length
// before this failure, so the first failure cools down for BaseDelay.
func (h *HealthTracker) RecordFailure(accountID uuid.UUID, reason CooldownReason, retryAfter time.Duration) {
	h.mu.Lock()
	now := h.nowFunc()
	a := h.entryLocked(accountID)

	a.TotalRequests++
	if reason == ReasonRateLimit {
		a.TotalRateLimits++
	} else {
		a.TotalErrors++
	}

	a.ConsecutiveFailures++
	a.LastFailureReason = reason
	failedAt := now
	a.LastFailureAt = &failedAt

	cooldown := retryAfter
	if cooldown <= 0 {
		cooldown = h.backoff.CooldownFor(a.ConsecutiveFailures - 1)
	}
	a.CooldownUntil = now.Add(cooldown)
	streak := a.ConsecutiveFailures
	h.mu.Unlock()

	slog.Info("account placed in cooldown",
		"account_id", accountID,
		"reason", reason,
		"consecutive_failures", streak,
		"cooldown_secs", cooldown.Seconds(),
	)
}

// ClearCooldown makes a known account healthy again without touching its
// counters. Unknown accounts are ignored.
func (h *HealthTracker) ClearCooldown(accountID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if a, ok := h.accounts[accountID]; ok {
		a.CooldownUntil = time.Time{}
		a.ConsecutiveFailures = 0
	}
}

// Health returns a snapshot for accountID. Unknown accounts yield a healthy
// snapshot with zero counters.
func (h *HealthTracker) Health(accountID uuid.UUID) health.AccountSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	a, ok := h.accounts[accountID]
	if !ok {
		return health.AccountSnapshot{AccountID: accountID, IsHealthy: true}
	}
	return snapshotLocked(accountID, a, h.nowFunc())
}

// AllHealth returns one snapshot per account that has seen at least one
// event, ordered by account id.
func (h *HealthTracker) AllHealth() []health.AccountSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.nowFunc()
	out := make([]health.AccountSnapshot, 0, len(h.accounts))
	for id, a := range h.accounts {
		out = append(out, snapshotLocked(id, a, now))
	}
	slices.SortFunc(out, func(x, y health.AccountSnapshot) int {
		return bytes.Compare(x.AccountID[:], y.AccountID[:])
	})
	return out
}

// snapshotLocked copies a record into a serializable snapshot.
// The caller MUST hold at least h.mu.RLock.
func snapshotLocked(id uuid.UUID, a *AccountHealth, now time.Time) health.AccountSnapshot {
	s := health.AccountSnapshot{
		AccountID:           id,
		IsHealthy:           !a.InCooldown(now),
		ConsecutiveFailures: a.ConsecutiveFailures,
		TotalRequests:       a.TotalRequests,
		TotalSuccesses:      a.TotalSuccesses,
		TotalRateLimits:     a.TotalRateLimits,
		TotalErrors:         a.TotalErrors,
	}
	if remaining := a.RemainingCooldown(now); remaining > 0 {
		secs := remaining.Seconds()
		s.CooldownRemainingSecs = &secs
	}
	if a.LastFailureReason != "" {
		r := string(a.LastFailureReason)
		s.LastFailureReason = &r
	}
	if a.LastFailureAt != nil {
		t := *a.LastFailureAt
		s.LastFailureAt = &t
	}
	return s
}
