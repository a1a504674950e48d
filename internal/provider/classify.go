// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusOverloaded is the non-standard status some providers return when
// they shed load.
const StatusOverloaded = 529

// Verdict is the health interpretation of an upstream HTTP status.
type Verdict int

const (
	// VerdictPassThrough means the response belongs to the caller (for
	// example a 400 for a malformed request) and says nothing about the
	// account's health.
	VerdictPassThrough Verdict = iota
	// VerdictSuccess means the account served the request.
	VerdictSuccess
	// VerdictFailover means the account should cool down and the next
	// route should be tried.
	VerdictFailover
)

// ClassifyStatus maps an upstream status code to a verdict and, for
// VerdictFailover, the cooldown reason to record.
func ClassifyStatus(status int) (Verdict, CooldownReason) {
	switch {
	case status == http.StatusTooManyRequests:
		return VerdictFailover, ReasonRateLimit
	case status == StatusOverloaded:
		return VerdictFailover, ReasonOverloaded
	case status >= 500 && status <= 599:
		return VerdictFailover, ReasonServerError
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return VerdictFailover, ReasonAuthError
	case status >= 200 && status <= 299:
		return VerdictSuccess, ""
	default:
		return VerdictPassThrough, ""
	}
}

// ClassifyError maps a transport error to a cooldown reason.
func ClassifyError(err error) CooldownReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonServerError
}

// ParseRetryAfter parses a Retry-After header given in (possibly
// fractional) seconds. HTTP-date values, non-positive and unparseable
// values yield zero, meaning "not supplied".
func ParseRetryAfter(value string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0
	}
	if secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}
