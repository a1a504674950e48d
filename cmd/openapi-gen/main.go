// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/server"
	"github.com/sigil-dev/chainroute/internal/store"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with every admin route registered over
// throwaway memory stores and extracts the OpenAPI document huma builds
// from the Go types. Handlers are never invoked.
func generateSpec() ([]byte, error) {
	dir, err := os.MkdirTemp("", "chainroute-openapi-")
	if err != nil {
		return nil, routeerr.Errorf(routeerr.CodeCLISetupFailure, "creating scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	svc, err := server.NewServices(
		chain.NewStore(filepath.Join(dir, "chains.json")),
		provider.NewHealthTracker(provider.DefaultBackoffConfig()),
		store.NewMemoryAccountStore(),
		nil,
		provider.BuiltinTypes{},
	)
	if err != nil {
		return nil, routeerr.Errorf(routeerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
	})
	if err != nil {
		return nil, routeerr.Errorf(routeerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}
