// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/chainroute/pkg/health"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Inspect and reset account health",
		Long:  "Show per-account cooldowns and counters tracked by a running gateway, and clear cooldowns.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every account with health history",
			RunE:  runHealthList,
		},
		&cobra.Command{
			Use:   "show <account-id>",
			Short: "Show the health of one account",
			Args:  cobra.ExactArgs(1),
			RunE:  runHealthShow,
		},
		&cobra.Command{
			Use:   "clear <account-id>",
			Short: "Clear an account's cooldown and failure streak",
			Args:  cobra.ExactArgs(1),
			RunE:  runHealthClear,
		},
	)

	return cmd
}

func runHealthList(cmd *cobra.Command, _ []string) error {
	var body struct {
		Accounts []health.AccountSnapshot `json:"accounts"`
	}
	if err := gatewayFromCmd(cmd).getJSON("/api/v1/health/accounts", &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Accounts) == 0 {
		_, _ = fmt.Fprintln(out, "No account health recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ACCOUNT\tHEALTHY\tCOOLDOWN\tFAILURES\tLAST REASON\tREQUESTS")
	for _, s := range body.Accounts {
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\t%d\t%s\t%d\n",
			s.AccountID, s.IsHealthy, formatCooldown(s.CooldownRemainingSecs),
			s.ConsecutiveFailures, lo.FromPtrOr(s.LastFailureReason, "-"), s.TotalRequests)
	}
	return tw.Flush()
}

func runHealthShow(cmd *cobra.Command, args []string) error {
	id, err := parseUUIDArg(args[0])
	if err != nil {
		return err
	}

	var snap health.AccountSnapshot
	if err := gatewayFromCmd(cmd).getJSON("/api/v1/health/accounts/"+id.String(), &snap); err != nil {
		return err
	}

	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}

func runHealthClear(cmd *cobra.Command, args []string) error {
	id, err := parseUUIDArg(args[0])
	if err != nil {
		return err
	}

	var snap health.AccountSnapshot
	path := "/api/v1/health/accounts/" + id.String() + "/clear-cooldown"
	if err := gatewayFromCmd(cmd).doJSON(http.MethodPost, path, nil, &snap); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared cooldown: %s\n", id)
	return nil
}

func printSnapshot(w io.Writer, s health.AccountSnapshot) {
	_, _ = fmt.Fprintf(w, "account:              %s\n", s.AccountID)
	_, _ = fmt.Fprintf(w, "healthy:              %t\n", s.IsHealthy)
	_, _ = fmt.Fprintf(w, "cooldown remaining:   %s\n", formatCooldown(s.CooldownRemainingSecs))
	_, _ = fmt.Fprintf(w, "consecutive failures: %d\n", s.ConsecutiveFailures)
	_, _ = fmt.Fprintf(w, "last failure reason:  %s\n", lo.FromPtrOr(s.LastFailureReason, "-"))
	if s.LastFailureAt != nil {
		_, _ = fmt.Fprintf(w, "last failure at:      %s\n", s.LastFailureAt.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "requests:             %d (%d ok, %d rate limited, %d errors)\n",
		s.TotalRequests, s.TotalSuccesses, s.TotalRateLimits, s.TotalErrors)
}

// formatCooldown renders the remaining cooldown rounded to the second.
func formatCooldown(secs *float64) string {
	if secs == nil {
		return "-"
	}
	return (time.Duration(*secs * float64(time.Second))).Round(time.Second).String()
}

func parseUUIDArg(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, routeerr.Errorf(routeerr.CodeCLIInputInvalid, "invalid account id %q: %v", arg, err)
	}
	return id, nil
}
