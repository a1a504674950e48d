// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/chainroute/internal/config"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, config, chain catalog, gateway reachability, and disk space.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	gw := gatewayFromCmd(cmd)
	dataDir := resolveDataDir()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", checkConfig},
		{"Chain catalog", checkChainCatalog},
		{"Gateway", func() string { return checkGateway(gw) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveDataDir returns the data directory from viper or the default.
func resolveDataDir() string {
	if dataDir := viper.GetString("data_dir"); dataDir != "" {
		return dataDir
	}
	return "./data"
}

func checkBinary() string {
	return fmt.Sprintf("chainroute %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkGateway(gw *gatewayClient) string {
	var body statusBody
	if err := gw.getJSON("/api/v1/status", &body); err != nil {
		if routeerr.HasCode(err, routeerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'chainroute start')", gw.addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s (%d chains)", body.Status, gw.addr, body.Chains)
}

func checkConfig() string {
	if _, err := config.FromViper(viper.GetViper()); err != nil {
		return fmt.Sprintf("invalid: %s", err)
	}
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

// checkChainCatalog reports whether the catalog file exists and parses.
// It never creates the file.
func checkChainCatalog() string {
	path := viper.GetString("chains.path")
	if path == "" {
		path = filepath.Join(resolveDataDir(), config.DefaultChainsFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("not created yet at %s (seeded on first start)", path)
		}
		return fmt.Sprintf("unreadable: %s", err)
	}

	chains, err := parseChainFile(data)
	if err != nil {
		return fmt.Sprintf("invalid at %s: %s", path, err)
	}
	return fmt.Sprintf("%d chain(s) in %s", len(chains), path)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to the working directory if the data dir doesn't exist yet.
		path = "."
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
