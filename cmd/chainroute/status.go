// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// statusBody mirrors GET /api/v1/status.
type statusBody struct {
	Status           string `json:"status"`
	Chains           int    `json:"chains"`
	TrackedAccounts  int    `json:"tracked_accounts"`
	StandardAccounts int    `json:"standard_accounts"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Check the running gateway's status endpoint and display catalog and health counters.",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	gw := gatewayFromCmd(cmd)
	out := cmd.OutOrStdout()

	var body statusBody
	if err := gw.getJSON("/api/v1/status", &body); err != nil {
		if routeerr.HasCode(err, routeerr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", gw.addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", gw.addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Gateway at %s: %s\n", gw.addr, body.Status)
	_, _ = fmt.Fprintf(out, "  chains:            %d\n", body.Chains)
	_, _ = fmt.Fprintf(out, "  tracked accounts:  %d\n", body.TrackedAccounts)
	_, _ = fmt.Fprintf(out, "  standard accounts: %d\n", body.StandardAccounts)
	return nil
}
