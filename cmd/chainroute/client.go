// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// tokenEnv names the environment fallback for --token.
const tokenEnv = "CHAINROUTE_TOKEN"

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// gatewayClient provides HTTP access to a running chainroute gateway.
type gatewayClient struct {
	addr    string
	baseURL string
	token   string
	http    *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
func newGatewayClient(addr, token string) *gatewayClient {
	return &gatewayClient{
		addr:    addr,
		baseURL: "http://" + addr,
		token:   token,
		http:    defaultHTTPClient,
	}
}

// gatewayFromCmd builds a client from --address and --token, falling back to
// the configured listen address, $CHAINROUTE_TOKEN, and the first configured
// auth token.
func gatewayFromCmd(cmd *cobra.Command) *gatewayClient {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = viper.GetString("networking.listen")
	}

	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		if tokens := viper.GetStringSlice("server.auth_tokens"); len(tokens) > 0 {
			token = tokens[0]
		}
	}

	return newGatewayClient(addr, token)
}

// escapeID escapes a chain or account id for use as a single path segment.
// Chain ids contain slashes ("builtin/smart").
func escapeID(id string) string {
	return url.PathEscape(id)
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *gatewayClient) getJSON(path string, dest any) error {
	return c.doJSON(http.MethodGet, path, nil, dest)
}

// doJSON sends body (when non-nil) as JSON and decodes a successful response
// into dest (when non-nil). Connection refused yields
// CodeCLIGatewayNotRunning; non-2xx statuses yield CodeCLIRequestFailure
// carrying the gateway's problem detail.
func (c *gatewayClient) doJSON(method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return routeerr.Errorf(routeerr.CodeCLIInputInvalid, "encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return routeerr.Errorf(routeerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return routeerr.Errorf(routeerr.CodeCLIGatewayNotRunning, "gateway at %s is not running (connection refused)", c.addr)
		}
		return routeerr.Errorf(routeerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return routeerr.New(routeerr.CodeCLIRequestFailure,
			"gateway returned status "+resp.Status+": "+problemDetail(data),
			routeerr.Field("status", resp.StatusCode))
	}

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return routeerr.Errorf(routeerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// problemDetail extracts the detail of an RFC 9457 problem body, falling
// back to the raw text.
func problemDetail(data []byte) string {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &problem); err == nil {
		if problem.Detail != "" {
			return problem.Detail
		}
		if problem.Title != "" {
			return problem.Title
		}
	}
	return strings.TrimSpace(string(data))
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
