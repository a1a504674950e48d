// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/config"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// routeBody mirrors one route of GET /api/v1/chains/{id}/resolve.
type routeBody struct {
	ProviderID   string    `json:"provider_id"`
	ProviderType string    `json:"provider_type"`
	ModelID      string    `json:"model_id"`
	AccountID    uuid.UUID `json:"account_id"`
	HasAPIKey    bool      `json:"has_api_key"`
	BaseURL      *string   `json:"base_url"`
}

// probeBody mirrors POST /api/v1/chains/{id}/probe.
type probeBody struct {
	ChainID    string     `json:"chain_id"`
	OK         bool       `json:"ok"`
	Attempts   int        `json:"attempts"`
	StatusCode int        `json:"status_code"`
	ProviderID string     `json:"provider_id"`
	ModelID    string     `json:"model_id"`
	AccountID  *uuid.UUID `json:"account_id"`
	Error      string     `json:"error"`
}

func newChainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Manage model chains",
		Long:  "List, inspect, import, delete, resolve, and probe the model chains of a running gateway.",
	}

	cmd.AddCommand(
		newChainsListCmd(),
		newChainsShowCmd(),
		newChainsDeleteCmd(),
		newChainsImportCmd(),
		newChainsResolveCmd(),
		newChainsProbeCmd(),
	)

	return cmd
}

func newChainsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all chains",
		RunE:  runChainsList,
	}
}

func newChainsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one chain; the default chain when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runChainsShow,
	}
}

func newChainsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chain (the last chain cannot be deleted)",
		Args:  cobra.ExactArgs(1),
		RunE:  runChainsDelete,
	}
}

func newChainsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create or replace chains from a YAML or JSON file",
		Long: `Import chains from a YAML or JSON file holding a single chain, a list of
chains, or a mapping with a "chains" list. Existing chains with the same id
are replaced.

With --offline the chain catalog file is edited directly instead of going
through the gateway. Do not use --offline while the gateway is running: it
keeps its own copy and overwrites the file on its next change.`,
		Args: cobra.ExactArgs(1),
		RunE: runChainsImport,
	}

	cmd.Flags().Bool("offline", false, "write to the chain catalog file instead of a running gateway")

	return cmd
}

func newChainsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Show the routes a chain currently resolves to",
		Args:  cobra.ExactArgs(1),
		RunE:  runChainsResolve,
	}
}

func newChainsProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <id>",
		Short: "Walk a chain's routes against the upstream model endpoints",
		Long: "Send one model-listing request per route in order until one succeeds. " +
			"Rate limits and server errors put the account into cooldown on the gateway.",
		Args: cobra.ExactArgs(1),
		RunE: runChainsProbe,
	}
}

func runChainsList(cmd *cobra.Command, _ []string) error {
	var body struct {
		Chains []chain.ModelChain `json:"chains"`
	}
	if err := gatewayFromCmd(cmd).getJSON("/api/v1/chains", &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Chains) == 0 {
		_, _ = fmt.Fprintln(out, "No chains.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tENTRIES\tDEFAULT")
	for _, c := range body.Chains {
		def := ""
		if c.IsDefault {
			def = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Name, len(c.Entries), def)
	}
	return tw.Flush()
}

func runChainsShow(cmd *cobra.Command, args []string) error {
	path := "/api/v1/chains/default"
	if len(args) == 1 {
		path = "/api/v1/chains/" + escapeID(args[0])
	}

	var c chain.ModelChain
	if err := gatewayFromCmd(cmd).getJSON(path, &c); err != nil {
		return err
	}

	printChain(cmd.OutOrStdout(), c)
	return nil
}

func printChain(w io.Writer, c chain.ModelChain) {
	_, _ = fmt.Fprintf(w, "%s (%s)", c.ID, c.Name)
	if c.IsDefault {
		_, _ = fmt.Fprint(w, " [default]")
	}
	_, _ = fmt.Fprintln(w)
	for i, e := range c.Entries {
		_, _ = fmt.Fprintf(w, "  %d. %s/%s\n", i+1, e.ProviderID, e.ModelID)
	}
}

func runChainsDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := gatewayFromCmd(cmd).doJSON(http.MethodDelete, "/api/v1/chains/"+escapeID(id), nil, nil); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted chain: %s\n", id)
	return nil
}

func runChainsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return routeerr.Errorf(routeerr.CodeCLIInputInvalid, "reading %s: %w", args[0], err)
	}

	chains, err := parseChainFile(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if offline, _ := cmd.Flags().GetBool("offline"); offline {
		cfg, err := config.FromViper(viper.GetViper())
		if err != nil {
			return err
		}
		path := cfg.ChainsPath()
		store := chain.NewStore(path)
		for _, c := range chains {
			store.Upsert(c)
		}

		// Upsert logs persistence failures instead of returning them, so
		// confirm against what actually reached the disk.
		persisted := chain.NewStore(path)
		missing := lo.Filter(chains, func(c chain.ModelChain, _ int) bool {
			_, ok := persisted.Get(c.ID)
			return !ok
		})
		if len(missing) > 0 {
			ids := lo.Map(missing, func(c chain.ModelChain, _ int) string { return c.ID })
			return routeerr.New(routeerr.CodeChainPersistFailure,
				fmt.Sprintf("chains not written to %s: %s", path, strings.Join(ids, ", ")),
				routeerr.FieldPath(path))
		}
		for _, c := range chains {
			_, _ = fmt.Fprintf(out, "Imported chain: %s\n", c.ID)
		}
		return nil
	}

	gw := gatewayFromCmd(cmd)
	for _, c := range chains {
		body := map[string]any{
			"name":       c.Name,
			"entries":    c.Entries,
			"is_default": c.IsDefault,
		}
		if err := gw.doJSON(http.MethodPut, "/api/v1/chains/"+escapeID(c.ID), body, nil); err != nil {
			return routeerr.With(err, routeerr.FieldChainID(c.ID))
		}
		_, _ = fmt.Fprintf(out, "Imported chain: %s\n", c.ID)
	}
	return nil
}

// parseChainFile decodes a chain import document. JSON parses as YAML, so
// both formats go through yaml.v3. Every chain is validated before any is
// written.
func parseChainFile(data []byte) ([]chain.ModelChain, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, routeerr.Errorf(routeerr.CodeChainImportInvalidInput, "parsing chain file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, routeerr.New(routeerr.CodeChainImportInvalidInput, "chain file is empty")
	}

	root := doc.Content[0]
	var chains []chain.ModelChain
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&chains); err != nil {
			return nil, routeerr.Errorf(routeerr.CodeChainImportInvalidInput, "decoding chain list: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Chains []chain.ModelChain `yaml:"chains"`
		}
		if err := root.Decode(&wrapped); err == nil && wrapped.Chains != nil {
			chains = wrapped.Chains
			break
		}
		var single chain.ModelChain
		if err := root.Decode(&single); err != nil {
			return nil, routeerr.Errorf(routeerr.CodeChainImportInvalidInput, "decoding chain: %w", err)
		}
		chains = []chain.ModelChain{single}
	default:
		return nil, routeerr.New(routeerr.CodeChainImportInvalidInput, "chain file must hold a chain, a list of chains, or a chains mapping")
	}

	if len(chains) == 0 {
		return nil, routeerr.New(routeerr.CodeChainImportInvalidInput, "chain file holds no chains")
	}

	seen := make(map[string]bool, len(chains))
	defaults := 0
	for i := range chains {
		c := &chains[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.Name == "" {
			c.Name = c.ID
		}
		if err := c.Validate(); err != nil {
			return nil, routeerr.Errorf(routeerr.CodeChainImportInvalidInput, "chain %d: %v", i+1, err)
		}
		if seen[c.ID] {
			return nil, routeerr.Errorf(routeerr.CodeChainImportInvalidInput, "chain %q appears twice", c.ID)
		}
		seen[c.ID] = true
		if c.IsDefault {
			defaults++
		}
	}
	if defaults > 1 {
		return nil, routeerr.Errorf(routeerr.CodeChainImportInvalidInput, "%d chains are marked default; at most one may be", defaults)
	}

	return chains, nil
}

func runChainsResolve(cmd *cobra.Command, args []string) error {
	var body struct {
		ChainID string      `json:"chain_id"`
		Routes  []routeBody `json:"routes"`
	}
	if err := gatewayFromCmd(cmd).getJSON("/api/v1/chains/"+escapeID(args[0])+"/resolve", &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Routes) == 0 {
		_, _ = fmt.Fprintf(out, "Chain %s has no usable routes right now.\n", body.ChainID)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tPROVIDER\tMODEL\tACCOUNT\tKEY")
	for i, r := range body.Routes {
		key := "no"
		if r.HasAPIKey {
			key = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.ProviderID, r.ModelID, r.AccountID, key)
	}
	return tw.Flush()
}

func runChainsProbe(cmd *cobra.Command, args []string) error {
	var body probeBody
	if err := gatewayFromCmd(cmd).doJSON(http.MethodPost, "/api/v1/chains/"+escapeID(args[0])+"/probe", nil, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if body.OK {
		_, _ = fmt.Fprintf(out, "Chain %s OK: %s/%s answered %d after %d attempt(s)\n",
			body.ChainID, body.ProviderID, body.ModelID, body.StatusCode, body.Attempts)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Chain %s FAILED after %d attempt(s): %s\n", body.ChainID, body.Attempts, body.Error)
	return routeerr.Errorf(routeerr.CodeCLIRequestFailure, "chain %s probe failed", body.ChainID)
}
