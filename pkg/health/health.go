// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package health

import (
	"time"

	"github.com/google/uuid"
)

// AccountSnapshot exposes the current health state of a single provider
// account for monitoring and operator visibility. All fields are
// point-in-time values safe to serialize to JSON.
type AccountSnapshot struct {
	AccountID             uuid.UUID  `json:"account_id"`
	IsHealthy             bool       `json:"is_healthy"`
	CooldownRemainingSecs *float64   `json:"cooldown_remaining_secs"`
	ConsecutiveFailures   uint32     `json:"consecutive_failures"`
	LastFailureReason     *string    `json:"last_failure_reason"`
	LastFailureAt         *time.Time `json:"last_failure_at"`
	TotalRequests         uint64     `json:"total_requests"`
	TotalSuccesses        uint64     `json:"total_successes"`
	TotalRateLimits       uint64     `json:"total_rate_limits"`
	TotalErrors           uint64     `json:"total_errors"`
}
