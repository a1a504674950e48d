// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// Non-OpenAI API roots used only for key checks.
const (
	anthropicAPIBase = "https://api.anthropic.com/v1"
	googleAPIBase    = "https://generativelanguage.googleapis.com/v1"
)

// ModelsURL returns the model listing endpoint used to check a key for an
// account of type t. A non-empty baseURL overrides the type default.
func ModelsURL(t ProviderType, baseURL string) (string, bool) {
	base := baseURL
	if base == "" {
		switch t {
		case TypeAnthropic:
			base = anthropicAPIBase
		case TypeGoogle:
			base = googleAPIBase
		default:
			var ok bool
			if base, ok = t.DefaultBaseURL(); !ok {
				return "", false
			}
		}
	}
	return strings.TrimRight(base, "/") + "/models", true
}

// ProbeModels sends one GET to the models endpoint of an account and
// reports the upstream status and Retry-After. An empty key sends no
// credentials, which local custom endpoints usually accept. err is set only
// when no HTTP response was received.
func ProbeModels(ctx context.Context, client *http.Client, t ProviderType, key, baseURL string) (int, time.Duration, error) {
	endpoint, ok := ModelsURL(t, baseURL)
	if !ok {
		return 0, 0, routeerr.Errorf(routeerr.CodeProviderKeyCheckFailed,
			"provider %s has no default endpoint; set a base URL", t)
	}

	headers := map[string]string{}
	switch {
	case key == "":
	case t == TypeAnthropic:
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case t == TypeGoogle:
		// Google's Generative Language API authenticates via query parameter.
		// Note: the key will appear in HTTP proxy/CDN access logs.
		endpoint += "?key=" + url.QueryEscape(key)
	default:
		headers["Authorization"] = "Bearer " + key
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, routeerr.Errorf(routeerr.CodeProviderKeyCheckFailed, "building probe request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, routeerr.Wrapf(err, routeerr.CodeProviderUpstreamFailure, "probing %s", t)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, ParseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// ValidateKey makes a lightweight HTTP call to the provider's models endpoint
// to confirm the API key is valid. baseURL may be empty to use the default
// for the type.
func ValidateKey(ctx context.Context, client *http.Client, t ProviderType, key, baseURL string) error {
	if key == "" {
		return routeerr.Errorf(routeerr.CodeProviderKeyInvalid, "empty %s API key", t)
	}
	if _, ok := ModelsURL(t, baseURL); !ok {
		return routeerr.Errorf(routeerr.CodeProviderKeyInvalid,
			"provider %s has no default endpoint; set a base URL", t)
	}

	status, _, err := ProbeModels(ctx, client, t, key, baseURL)
	if err != nil {
		return routeerr.Errorf(routeerr.CodeProviderKeyCheckFailed, "validating %s key: %v", t, err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return routeerr.Errorf(routeerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", t, status)
	}
	if status >= 400 {
		return routeerr.Errorf(routeerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", t, status)
	}
	return nil
}
