// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"math"
	"time"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// Default backoff parameters applied when an account fails without a
// provider-supplied Retry-After.
const (
	DefaultBaseDelay  = 5 * time.Second
	DefaultMaxDelay   = 300 * time.Second
	DefaultMultiplier = 2.0
)

// BackoffConfig maps a consecutive failure count to a cooldown duration:
// BaseDelay * Multiplier^n, capped at MaxDelay.
type BackoffConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultBackoffConfig returns 5s base, 300s cap, doubling per failure.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Multiplier: DefaultMultiplier,
	}
}

// CooldownFor returns the cooldown for an account that already has
// consecutiveFailures failures on record. CooldownFor(0) is BaseDelay.
func (b BackoffConfig) CooldownFor(consecutiveFailures uint32) time.Duration {
	delay := b.BaseDelay.Seconds() * math.Pow(b.Multiplier, float64(consecutiveFailures))
	max := b.MaxDelay.Seconds()
	if math.IsNaN(delay) || delay >= max {
		return b.MaxDelay
	}
	return time.Duration(delay * float64(time.Second))
}

// Validate reports configurations that would break the non-decreasing,
// capped contract of CooldownFor.
func (b BackoffConfig) Validate() error {
	if b.BaseDelay <= 0 {
		return routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"backoff base delay must be positive, got %s", b.BaseDelay)
	}
	if b.MaxDelay < b.BaseDelay {
		return routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"backoff max delay %s must not be less than base delay %s", b.MaxDelay, b.BaseDelay)
	}
	if b.Multiplier < 1 || math.IsNaN(b.Multiplier) || math.IsInf(b.Multiplier, 0) {
		return routeerr.Errorf(routeerr.CodeConfigValidateInvalidValue,
			"backoff multiplier must be a finite value >= 1, got %g", b.Multiplier)
	}
	return nil
}
