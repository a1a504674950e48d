// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/secrets"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// accountBody mirrors one managed account of GET /api/v1/accounts.
type accountBody struct {
	ID           uuid.UUID `json:"id"`
	ProviderType string    `json:"provider_type"`
	Name         string    `json:"name"`
	BaseURL      *string   `json:"base_url"`
	Priority     int       `json:"priority"`
	Enabled      bool      `json:"enabled"`
	HasAPIKey    bool      `json:"has_api_key"`
}

// standardBody mirrors one standard account of GET /api/v1/accounts.
type standardBody struct {
	AccountID    uuid.UUID `json:"account_id"`
	ProviderID   string    `json:"provider_id"`
	ProviderType string    `json:"provider_type"`
	BaseURL      *string   `json:"base_url"`
	HasAPIKey    bool      `json:"has_api_key"`
}

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage provider accounts",
		Long: "List, add, update, and delete the managed accounts of a running gateway. " +
			"Standard accounts come from the providers section of the config and are listed read-only.",
	}

	cmd.AddCommand(
		newAccountsListCmd(),
		newAccountsAddCmd(),
		newAccountsUpdateCmd(),
		newAccountsDeleteCmd(),
	)

	return cmd
}

func newAccountsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List managed and standard accounts",
		RunE:  runAccountsList,
	}
	cmd.Flags().Int("limit", 0, "maximum managed accounts to list (0 for the gateway default)")
	cmd.Flags().Int("offset", 0, "managed accounts to skip")
	return cmd
}

func newAccountsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <provider-type>",
		Short: "Add a managed account",
		Long: `Add a managed account for a provider type or alias (e.g. "zai", "gemini").

--api-key accepts a keyring://service/key reference, resolved locally before
the key is sent. With --validate the key is first checked against the
provider's model listing endpoint.`,
		Args: cobra.ExactArgs(1),
		RunE: runAccountsAdd,
	}

	cmd.Flags().String("name", "", "display name (defaults to the provider type)")
	cmd.Flags().String("api-key", "", "API key or keyring:// reference")
	cmd.Flags().String("base-url", "", "override the provider's API root")
	cmd.Flags().Int("priority", 0, "order among accounts of the same type; lower runs first")
	cmd.Flags().Bool("disabled", false, "create the account disabled")
	cmd.Flags().Bool("validate", false, "check the key with the provider before adding")

	return cmd
}

func newAccountsUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <account-id>",
		Short: "Change a managed account",
		Long: `Change a managed account. Only the flags given are sent; an empty
--api-key or --base-url clears the stored value.`,
		Args: cobra.ExactArgs(1),
		RunE: runAccountsUpdate,
	}

	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("api-key", "", "API key or keyring:// reference")
	cmd.Flags().String("base-url", "", "override the provider's API root")
	cmd.Flags().Int("priority", 0, "order among accounts of the same type; lower runs first")
	cmd.Flags().Bool("enable", false, "enable the account")
	cmd.Flags().Bool("disable", false, "disable the account")
	cmd.MarkFlagsMutuallyExclusive("enable", "disable")

	return cmd
}

func newAccountsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete a managed account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsDelete,
	}
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	var body struct {
		Accounts []accountBody  `json:"accounts"`
		Standard []standardBody `json:"standard"`
	}
	path := fmt.Sprintf("/api/v1/accounts?offset=%d", offset)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}
	if err := gatewayFromCmd(cmd).getJSON(path, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Accounts) == 0 && len(body.Standard) == 0 {
		_, _ = fmt.Fprintln(out, "No accounts.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSOURCE\tTYPE\tNAME\tPRIORITY\tENABLED\tKEY")
	for _, a := range body.Accounts {
		_, _ = fmt.Fprintf(tw, "%s\tmanaged\t%s\t%s\t%d\t%t\t%s\n",
			a.ID, a.ProviderType, a.Name, a.Priority, a.Enabled, yesNo(a.HasAPIKey))
	}
	for _, s := range body.Standard {
		_, _ = fmt.Fprintf(tw, "%s\tconfig\t%s\t%s\t-\ttrue\t%s\n",
			s.AccountID, s.ProviderType, s.ProviderID, yesNo(s.HasAPIKey))
	}
	return tw.Flush()
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	pt, ok := provider.ProviderTypeFromID(args[0])
	if !ok {
		return routeerr.Errorf(routeerr.CodeCLIInputInvalid, "unknown provider type %q", args[0])
	}

	name, _ := cmd.Flags().GetString("name")
	apiKey, _ := cmd.Flags().GetString("api-key")
	baseURL, _ := cmd.Flags().GetString("base-url")
	priority, _ := cmd.Flags().GetInt("priority")
	disabled, _ := cmd.Flags().GetBool("disabled")
	validate, _ := cmd.Flags().GetBool("validate")

	if secrets.IsKeyringURI(apiKey) {
		resolved, err := secrets.ResolveKeyringURI(secretStoreFactory(), apiKey)
		if err != nil {
			return err
		}
		apiKey = resolved
	}

	if validate {
		if err := provider.ValidateKey(cmd.Context(), initHTTPClient, pt, apiKey, baseURL); err != nil {
			return err
		}
	}

	req := map[string]any{
		"provider_type": string(pt),
		"name":          name,
		"priority":      priority,
		"enabled":       !disabled,
	}
	if apiKey != "" {
		req["api_key"] = apiKey
	}
	if baseURL != "" {
		req["base_url"] = baseURL
	}

	var created accountBody
	if err := gatewayFromCmd(cmd).doJSON(http.MethodPost, "/api/v1/accounts", req, &created); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %s account %q: %s\n", created.ProviderType, created.Name, created.ID)
	return nil
}

func runAccountsUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseUUIDArg(args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	req := map[string]any{}
	if flags.Changed("name") {
		req["name"], _ = flags.GetString("name")
	}
	if flags.Changed("api-key") {
		apiKey, _ := flags.GetString("api-key")
		if secrets.IsKeyringURI(apiKey) {
			if apiKey, err = secrets.ResolveKeyringURI(secretStoreFactory(), apiKey); err != nil {
				return err
			}
		}
		req["api_key"] = apiKey
	}
	if flags.Changed("base-url") {
		req["base_url"], _ = flags.GetString("base-url")
	}
	if flags.Changed("priority") {
		req["priority"], _ = flags.GetInt("priority")
	}
	if flags.Changed("enable") {
		req["enabled"], _ = flags.GetBool("enable")
	}
	if flags.Changed("disable") {
		disable, _ := flags.GetBool("disable")
		req["enabled"] = !disable
	}
	if len(req) == 0 {
		return routeerr.New(routeerr.CodeCLIInputInvalid, "nothing to update; pass at least one flag")
	}

	var updated accountBody
	if err := gatewayFromCmd(cmd).doJSON(http.MethodPatch, "/api/v1/accounts/"+id.String(), req, &updated); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %s account %q: priority %d, enabled %t\n",
		updated.ProviderType, updated.Name, updated.Priority, updated.Enabled)
	return nil
}

func runAccountsDelete(cmd *cobra.Command, args []string) error {
	id, err := parseUUIDArg(args[0])
	if err != nil {
		return err
	}
	if err := gatewayFromCmd(cmd).doJSON(http.MethodDelete, "/api/v1/accounts/"+id.String(), nil, nil); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted account: %s\n", id)
	return nil
}

func yesNo(b bool) string {
	return lo.Ternary(b, "yes", "no")
}
