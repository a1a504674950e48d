// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package relay walks a resolved chain, one route at a time, until an
// upstream accepts the request. Every attempt outcome is fed back into the
// health tracker so the next resolution skips accounts that just failed.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/provider"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// Recorder receives health events. *provider.HealthTracker implements it.
type Recorder interface {
	RecordSuccess(accountID uuid.UUID)
	RecordFailure(accountID uuid.UUID, reason provider.CooldownReason, retryAfter time.Duration)
}

var _ Recorder = (*provider.HealthTracker)(nil)

// Outcome is what an attempt observed upstream. RetryAfter is zero when
// the upstream sent no usable Retry-After header.
type Outcome struct {
	StatusCode int
	RetryAfter time.Duration
}

// AttemptFunc sends the request to one route. A non-nil error means no
// HTTP status was received (connect failure, timeout, reset).
type AttemptFunc func(ctx context.Context, entry chain.ResolvedEntry) (Outcome, error)

// Result describes the attempt that ended the walk.
type Result struct {
	Entry    chain.ResolvedEntry
	Outcome  Outcome
	Attempts int
}

// Waterfall tries routes strictly in order.
type Waterfall struct {
	Tracker Recorder
	// AttemptTimeout bounds each attempt when positive.
	AttemptTimeout time.Duration
}

// New returns a Waterfall reporting to tracker.
func New(tracker Recorder, attemptTimeout time.Duration) *Waterfall {
	return &Waterfall{Tracker: tracker, AttemptTimeout: attemptTimeout}
}

// Run calls attempt for each entry until one returns a status that is not
// a failover status. A 2xx records a success; any other non-failover
// status (a 400 for a malformed request, say) is handed back untouched
// with no health event. Failover statuses and transport errors cool the
// account down and move on to the next entry. An attempt that fails with
// routing.attempt.skipped never reached the upstream, so Run moves on
// without recording anything against the account.
//
// Run fails with routing.chain.empty when entries is empty, with
// routing.chain.exhausted when every route failed over, and with
// routing.attempt.canceled when ctx ends first.
func (w *Waterfall) Run(ctx context.Context, entries []chain.ResolvedEntry, attempt AttemptFunc) (Result, error) {
	if len(entries) == 0 {
		return Result{}, routeerr.New(routeerr.CodeRoutingChainEmpty, "no usable routes")
	}

	var (
		last    Result
		lastErr error
	)
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return last, canceled(err, i)
		}

		outcome, err := w.try(ctx, entry, attempt)
		last = Result{Entry: entry, Outcome: outcome, Attempts: i + 1}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// The caller gave up; the account did nothing wrong.
				return last, canceled(ctxErr, i+1)
			}
			lastErr = err
			if routeerr.HasCode(err, routeerr.CodeRoutingAttemptSkipped) {
				slog.Info("route skipped",
					"provider", entry.ProviderID,
					"model", entry.ModelID,
					"account_id", entry.AccountID,
					"error", err,
				)
				continue
			}
			reason := provider.ClassifyError(err)
			w.Tracker.RecordFailure(entry.AccountID, reason, 0)
			slog.Warn("route failed, trying next",
				"provider", entry.ProviderID,
				"model", entry.ModelID,
				"account_id", entry.AccountID,
				"reason", reason,
				"error", err,
			)
			continue
		}

		verdict, reason := provider.ClassifyStatus(outcome.StatusCode)
		switch verdict {
		case provider.VerdictSuccess:
			w.Tracker.RecordSuccess(entry.AccountID)
			return last, nil
		case provider.VerdictFailover:
			lastErr = nil
			w.Tracker.RecordFailure(entry.AccountID, reason, outcome.RetryAfter)
			slog.Warn("route failed, trying next",
				"provider", entry.ProviderID,
				"model", entry.ModelID,
				"account_id", entry.AccountID,
				"status", outcome.StatusCode,
				"reason", reason,
			)
		default:
			return last, nil
		}
	}

	msg := "all routes failed"
	if lastErr != nil {
		msg += ": " + lastErr.Error()
	}
	return last, routeerr.New(routeerr.CodeRoutingChainExhausted, msg,
		routeerr.Field("attempts", last.Attempts),
		routeerr.Field("last_status", last.Outcome.StatusCode),
	)
}

func (w *Waterfall) try(ctx context.Context, entry chain.ResolvedEntry, attempt AttemptFunc) (Outcome, error) {
	if w.AttemptTimeout <= 0 {
		return attempt(ctx, entry)
	}
	ctx, cancel := context.WithTimeout(ctx, w.AttemptTimeout)
	defer cancel()
	return attempt(ctx, entry)
}

func canceled(err error, attempts int) error {
	return routeerr.Wrap(err, routeerr.CodeRoutingAttemptCanceled, "request canceled",
		routeerr.Field("attempts", attempts))
}
