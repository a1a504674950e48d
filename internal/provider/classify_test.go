// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sigil-dev/chainroute/internal/provider"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status      int
		wantVerdict provider.Verdict
		wantReason  provider.CooldownReason
	}{
		{200, provider.VerdictSuccess, ""},
		{204, provider.VerdictSuccess, ""},
		{400, provider.VerdictPassThrough, ""},
		{404, provider.VerdictPassThrough, ""},
		{422, provider.VerdictPassThrough, ""},
		{401, provider.VerdictFailover, provider.ReasonAuthError},
		{403, provider.VerdictFailover, provider.ReasonAuthError},
		{429, provider.VerdictFailover, provider.ReasonRateLimit},
		{500, provider.VerdictFailover, provider.ReasonServerError},
		{503, provider.VerdictFailover, provider.ReasonServerError},
		{529, provider.VerdictFailover, provider.ReasonOverloaded},
		{302, provider.VerdictPassThrough, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			verdict, reason := provider.ClassifyStatus(tt.status)
			assert.Equal(t, tt.wantVerdict, verdict)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, provider.ReasonTimeout, provider.ClassifyError(context.DeadlineExceeded))
	assert.Equal(t, provider.ReasonTimeout, provider.ClassifyError(fmt.Errorf("dial: %w", timeoutErr{})))
	assert.Equal(t, provider.ReasonServerError, provider.ClassifyError(errors.New("connection refused")))
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30", 30 * time.Second},
		{" 7 ", 7 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"0", 0},
		{"-4", 0},
		{"", 0},
		{"soon", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
		{"NaN", 0},
		{"+Inf", 0},
		{"10000000000", time.Duration(math.MaxInt64)},
		{"1e300", time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, provider.ParseRetryAfter(tt.in), "input %q", tt.in)
	}
}
