// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/relay"
	"github.com/sigil-dev/chainroute/internal/store"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
	"github.com/sigil-dev/chainroute/pkg/health"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Status endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "gateway-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Gateway status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	// Health endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-account-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health/accounts",
		Summary:     "Health of every tracked account",
		Tags:        []string{"health"},
	}, s.handleListHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-account-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health/accounts/{id}",
		Summary:     "Health of one account",
		Tags:        []string{"health"},
	}, s.handleGetHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "clear-account-cooldown",
		Method:      http.MethodPost,
		Path:        "/api/v1/health/accounts/{id}/clear-cooldown",
		Summary:     "Make an account healthy again",
		Tags:        []string{"health"},
	}, s.handleClearCooldown)

	// Chain endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-chains",
		Method:      http.MethodGet,
		Path:        "/api/v1/chains",
		Summary:     "List chains",
		Tags:        []string{"chains"},
	}, s.handleListChains)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-default-chain",
		Method:      http.MethodGet,
		Path:        "/api/v1/chains/default",
		Summary:     "Get the default chain",
		Tags:        []string{"chains"},
	}, s.handleDefaultChain)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-chain",
		Method:      http.MethodGet,
		Path:        "/api/v1/chains/{id}",
		Summary:     "Get a chain",
		Description: "Chain ids may contain '/', which must be sent escaped as %2F.",
		Tags:        []string{"chains"},
	}, s.handleGetChain)

	huma.Register(s.api, huma.Operation{
		OperationID: "put-chain",
		Method:      http.MethodPut,
		Path:        "/api/v1/chains/{id}",
		Summary:     "Create or replace a chain",
		Tags:        []string{"chains"},
	}, s.handlePutChain)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-chain",
		Method:        http.MethodDelete,
		Path:          "/api/v1/chains/{id}",
		Summary:       "Delete a chain",
		Description:   "The last remaining chain cannot be deleted.",
		Tags:          []string{"chains"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteChain)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolve-chain",
		Method:      http.MethodGet,
		Path:        "/api/v1/chains/{id}/resolve",
		Summary:     "Resolve a chain into routes",
		Tags:        []string{"chains"},
	}, s.handleResolveChain)

	huma.Register(s.api, huma.Operation{
		OperationID: "probe-chain",
		Method:      http.MethodPost,
		Path:        "/api/v1/chains/{id}/probe",
		Summary:     "Walk a chain against the providers' model endpoints",
		Description: "Failures cool accounts down exactly like relayed traffic.",
		Tags:        []string{"chains"},
	}, s.handleProbeChain)

	// Account endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-accounts",
		Method:      http.MethodGet,
		Path:        "/api/v1/accounts",
		Summary:     "List managed and standard accounts",
		Tags:        []string{"accounts"},
	}, s.handleListAccounts)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-account",
		Method:        http.MethodPost,
		Path:          "/api/v1/accounts",
		Summary:       "Add a managed account",
		Tags:          []string{"accounts"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateAccount)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-account",
		Method:      http.MethodPatch,
		Path:        "/api/v1/accounts/{id}",
		Summary:     "Change fields of a managed account",
		Tags:        []string{"accounts"},
	}, s.handleUpdateAccount)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-account",
		Method:        http.MethodDelete,
		Path:          "/api/v1/accounts/{id}",
		Summary:       "Delete a managed account",
		Tags:          []string{"accounts"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteAccount)

	// OpenAI-compatible model listing
	huma.Register(s.api, huma.Operation{
		OperationID: "list-models",
		Method:      http.MethodGet,
		Path:        "/v1/models",
		Summary:     "List chains as models",
		Tags:        []string{"openai"},
	}, s.handleListModels)
}

// --- Request/Response types for huma ---

type statusOutput struct {
	Body struct {
		Status           string `json:"status" example:"ok" doc:"Gateway status"`
		Chains           int    `json:"chains" doc:"Number of chains in the catalog"`
		TrackedAccounts  int    `json:"tracked_accounts" doc:"Accounts with health history"`
		StandardAccounts int    `json:"standard_accounts" doc:"Accounts defined in configuration"`
	}
}

type accountIDInput struct {
	ID string `path:"id" doc:"Account UUID"`
}

type listHealthOutput struct {
	Body struct {
		Accounts []health.AccountSnapshot `json:"accounts"`
	}
}

type healthOutput struct {
	Body health.AccountSnapshot
}

type chainIDInput struct {
	ID string `path:"id" doc:"Chain id, URL-escaped"`
}

type listChainsOutput struct {
	Body struct {
		Chains []chain.ModelChain `json:"chains"`
	}
}

type chainOutput struct {
	Body chain.ModelChain
}

type putChainInput struct {
	ID   string `path:"id" doc:"Chain id, URL-escaped"`
	Body struct {
		Name      string             `json:"name,omitempty"`
		Entries   []chain.ChainEntry `json:"entries"`
		IsDefault bool               `json:"is_default,omitempty"`
	}
}

// RouteView is a resolved route with the api key redacted.
type RouteView struct {
	ProviderID   string    `json:"provider_id"`
	ProviderType string    `json:"provider_type"`
	ModelID      string    `json:"model_id"`
	AccountID    uuid.UUID `json:"account_id"`
	HasAPIKey    bool      `json:"has_api_key"`
	BaseURL      *string   `json:"base_url"`
}

type resolveOutput struct {
	Body struct {
		ChainID string      `json:"chain_id"`
		Routes  []RouteView `json:"routes"`
	}
}

type probeOutput struct {
	Body struct {
		ChainID    string     `json:"chain_id"`
		OK         bool       `json:"ok" doc:"A route answered with 2xx"`
		Attempts   int        `json:"attempts"`
		StatusCode int        `json:"status_code,omitempty" doc:"Status of the last attempt"`
		ProviderID string     `json:"provider_id,omitempty"`
		ModelID    string     `json:"model_id,omitempty"`
		AccountID  *uuid.UUID `json:"account_id,omitempty"`
		Error      string     `json:"error,omitempty"`
	}
}

// AccountView is a managed account without its api key.
type AccountView struct {
	ID           uuid.UUID `json:"id"`
	ProviderType string    `json:"provider_type"`
	Name         string    `json:"name"`
	BaseURL      *string   `json:"base_url"`
	Priority     int       `json:"priority"`
	Enabled      bool      `json:"enabled"`
	HasAPIKey    bool      `json:"has_api_key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StandardAccountView is a config-defined account without its api key.
type StandardAccountView struct {
	AccountID    uuid.UUID `json:"account_id"`
	ProviderID   string    `json:"provider_id"`
	ProviderType string    `json:"provider_type"`
	BaseURL      *string   `json:"base_url"`
	HasAPIKey    bool      `json:"has_api_key"`
}

type listAccountsInput struct {
	Limit  int `query:"limit" default:"100" minimum:"0" maximum:"1000"`
	Offset int `query:"offset" minimum:"0"`
}

type listAccountsOutput struct {
	Body struct {
		Accounts []AccountView         `json:"accounts"`
		Standard []StandardAccountView `json:"standard"`
	}
}

type createAccountInput struct {
	Body struct {
		ProviderType string `json:"provider_type" minLength:"1" doc:"Provider type or alias"`
		Name         string `json:"name,omitempty"`
		APIKey       string `json:"api_key,omitempty" doc:"Write-only"`
		BaseURL      string `json:"base_url,omitempty"`
		Priority     int    `json:"priority,omitempty" minimum:"0" doc:"Lower runs first"`
		Enabled      *bool  `json:"enabled,omitempty" doc:"Defaults to true"`
	}
}

// updateAccountInput changes only the fields present in the body. An
// empty api_key or base_url clears the stored value.
type updateAccountInput struct {
	ID   string `path:"id" doc:"Account UUID"`
	Body struct {
		Name     *string `json:"name,omitempty"`
		APIKey   *string `json:"api_key,omitempty" doc:"Write-only"`
		BaseURL  *string `json:"base_url,omitempty"`
		Priority *int    `json:"priority,omitempty" minimum:"0" doc:"Lower runs first"`
		Enabled  *bool   `json:"enabled,omitempty"`
	}
}

type accountOutput struct {
	Body AccountView
}

// ModelObject is one entry of the OpenAI-style model list.
type ModelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type listModelsOutput struct {
	Body struct {
		Object string        `json:"object"`
		Data   []ModelObject `json:"data"`
	}
}

// --- Handlers ---

func (s *Server) handleStatus(_ context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.Chains = s.services.chains.Len()
	out.Body.TrackedAccounts = len(s.services.health.AllHealth())
	out.Body.StandardAccounts = len(s.services.standard)
	return out, nil
}

func (s *Server) handleListHealth(_ context.Context, _ *struct{}) (*listHealthOutput, error) {
	out := &listHealthOutput{}
	out.Body.Accounts = s.services.health.AllHealth()
	return out, nil
}

func (s *Server) handleGetHealth(_ context.Context, input *accountIDInput) (*healthOutput, error) {
	id, err := parseAccountID(input.ID)
	if err != nil {
		return nil, err
	}
	return &healthOutput{Body: s.services.health.Health(id)}, nil
}

func (s *Server) handleClearCooldown(_ context.Context, input *accountIDInput) (*healthOutput, error) {
	id, err := parseAccountID(input.ID)
	if err != nil {
		return nil, err
	}
	s.services.health.ClearCooldown(id)
	slog.Info("cooldown cleared via API", "account_id", id)
	return &healthOutput{Body: s.services.health.Health(id)}, nil
}

func (s *Server) handleListChains(_ context.Context, _ *struct{}) (*listChainsOutput, error) {
	out := &listChainsOutput{}
	out.Body.Chains = s.services.chains.List()
	return out, nil
}

func (s *Server) handleDefaultChain(_ context.Context, _ *struct{}) (*chainOutput, error) {
	c, ok := s.services.chains.Default()
	if !ok {
		return nil, huma.Error404NotFound("no chains configured")
	}
	return &chainOutput{Body: c}, nil
}

func (s *Server) handleGetChain(_ context.Context, input *chainIDInput) (*chainOutput, error) {
	id, err := s.lookupChain(input.ID)
	if err != nil {
		return nil, err
	}
	c, ok := s.services.chains.Get(id)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("chain %q not found", id))
	}
	return &chainOutput{Body: c}, nil
}

func (s *Server) handlePutChain(_ context.Context, input *putChainInput) (*chainOutput, error) {
	id, err := chainID(input.ID)
	if err != nil {
		return nil, err
	}
	c := chain.ModelChain{
		ID:        id,
		Name:      input.Body.Name,
		Entries:   input.Body.Entries,
		IsDefault: input.Body.IsDefault,
	}
	if c.Name == "" {
		c.Name = id
	}
	if err := c.Validate(); err != nil {
		return nil, apiError(err, "invalid chain")
	}
	return &chainOutput{Body: s.services.chains.Upsert(c)}, nil
}

func (s *Server) handleDeleteChain(_ context.Context, input *chainIDInput) (*struct{}, error) {
	id, err := chainID(input.ID)
	if err != nil {
		return nil, err
	}
	if _, ok := s.services.chains.Get(id); !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("chain %q not found", id))
	}
	if !s.services.chains.Delete(id) {
		// A concurrent delete may have removed it since the Get above.
		if _, ok := s.services.chains.Get(id); !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("chain %q not found", id))
		}
		return nil, apiError(routeerr.New(routeerr.CodeChainDeleteConflict, "cannot delete the last chain",
			routeerr.FieldChainID(id)), "cannot delete the last chain")
	}
	return nil, nil
}

func (s *Server) handleResolveChain(ctx context.Context, input *chainIDInput) (*resolveOutput, error) {
	id, err := s.lookupChain(input.ID)
	if err != nil {
		return nil, err
	}

	resolved := s.services.chains.Resolve(ctx, id, s.services.accounts, s.services.standard,
		s.services.health, s.services.registry)

	out := &resolveOutput{}
	out.Body.ChainID = id
	out.Body.Routes = lo.Map(resolved, func(e chain.ResolvedEntry, _ int) RouteView {
		return RouteView{
			ProviderID:   e.ProviderID,
			ProviderType: e.ProviderType.String(),
			ModelID:      e.ModelID,
			AccountID:    e.AccountID,
			HasAPIKey:    e.APIKey != nil && *e.APIKey != "",
			BaseURL:      e.BaseURL,
		}
	})
	return out, nil
}

func (s *Server) handleProbeChain(ctx context.Context, input *chainIDInput) (*probeOutput, error) {
	if s.services.waterfall == nil {
		return nil, huma.Error503ServiceUnavailable("chain probing is not enabled")
	}
	id, err := s.lookupChain(input.ID)
	if err != nil {
		return nil, err
	}

	resolved := s.services.chains.Resolve(ctx, id, s.services.accounts, s.services.standard,
		s.services.health, s.services.registry)

	client := s.services.probeClient
	res, err := s.services.waterfall.Run(ctx, resolved, func(ctx context.Context, e chain.ResolvedEntry) (relay.Outcome, error) {
		if _, ok := provider.ModelsURL(e.ProviderType, lo.FromPtr(e.BaseURL)); !ok {
			return relay.Outcome{}, routeerr.New(routeerr.CodeRoutingAttemptSkipped,
				fmt.Sprintf("provider %s has no models endpoint; set a base URL", e.ProviderID),
				routeerr.Field("account_id", e.AccountID))
		}
		status, retryAfter, err := provider.ProbeModels(ctx, client, e.ProviderType,
			lo.FromPtr(e.APIKey), lo.FromPtr(e.BaseURL))
		return relay.Outcome{StatusCode: status, RetryAfter: retryAfter}, err
	})
	if routeerr.IsCanceled(err) {
		return nil, apiError(err, "probe canceled")
	}

	out := &probeOutput{}
	out.Body.ChainID = id
	out.Body.Attempts = res.Attempts
	out.Body.StatusCode = res.Outcome.StatusCode
	if res.Attempts > 0 {
		out.Body.ProviderID = res.Entry.ProviderID
		out.Body.ModelID = res.Entry.ModelID
		out.Body.AccountID = &res.Entry.AccountID
	}
	out.Body.OK = err == nil && res.Outcome.StatusCode >= 200 && res.Outcome.StatusCode < 300
	if err != nil {
		out.Body.Error = err.Error()
	} else if !out.Body.OK {
		out.Body.Error = fmt.Sprintf("upstream answered HTTP %d", res.Outcome.StatusCode)
	}
	return out, nil
}

func (s *Server) handleListAccounts(ctx context.Context, input *listAccountsInput) (*listAccountsOutput, error) {
	accounts, err := s.services.accounts.List(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, apiError(err, "listing accounts")
	}

	out := &listAccountsOutput{}
	out.Body.Accounts = lo.Map(accounts, func(a *store.Account, _ int) AccountView { return accountView(a) })
	out.Body.Standard = lo.Map(s.services.standard, func(sa chain.StandardAccount, _ int) StandardAccountView {
		return StandardAccountView{
			AccountID:    sa.AccountID,
			ProviderID:   sa.ProviderID,
			ProviderType: sa.ProviderType.String(),
			BaseURL:      sa.BaseURL,
			HasAPIKey:    sa.APIKey != nil,
		}
	})
	return out, nil
}

func (s *Server) handleCreateAccount(ctx context.Context, input *createAccountInput) (*accountOutput, error) {
	pt, ok := s.services.registry.FromID(input.Body.ProviderType)
	if !ok {
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown provider type %q", input.Body.ProviderType))
	}

	a := &store.Account{
		ID:           uuid.New(),
		ProviderType: pt,
		Name:         strings.TrimSpace(input.Body.Name),
		APIKey:       lo.EmptyableToPtr(input.Body.APIKey),
		BaseURL:      lo.EmptyableToPtr(input.Body.BaseURL),
		Priority:     input.Body.Priority,
		Enabled:      input.Body.Enabled == nil || *input.Body.Enabled,
	}
	if a.Name == "" {
		a.Name = pt.String()
	}
	if err := s.services.accounts.Create(ctx, a); err != nil {
		return nil, apiError(err, "creating account")
	}
	slog.Info("account created via API", "account_id", a.ID, "provider_type", pt)
	return &accountOutput{Body: accountView(a)}, nil
}

func (s *Server) handleUpdateAccount(ctx context.Context, input *updateAccountInput) (*accountOutput, error) {
	id, err := parseAccountID(input.ID)
	if err != nil {
		return nil, err
	}
	a, err := s.services.accounts.Get(ctx, id)
	if err != nil {
		return nil, apiError(err, fmt.Sprintf("getting account %s", id))
	}

	body := input.Body
	if body.Name != nil {
		if name := strings.TrimSpace(*body.Name); name != "" {
			a.Name = name
		}
	}
	if body.APIKey != nil {
		a.APIKey = lo.EmptyableToPtr(*body.APIKey)
	}
	if body.BaseURL != nil {
		a.BaseURL = lo.EmptyableToPtr(*body.BaseURL)
	}
	if body.Priority != nil {
		a.Priority = *body.Priority
	}
	if body.Enabled != nil {
		a.Enabled = *body.Enabled
	}

	if err := s.services.accounts.Update(ctx, a); err != nil {
		return nil, apiError(err, fmt.Sprintf("updating account %s", id))
	}
	slog.Info("account updated via API", "account_id", id)
	return &accountOutput{Body: accountView(a)}, nil
}

func (s *Server) handleDeleteAccount(ctx context.Context, input *accountIDInput) (*struct{}, error) {
	id, err := parseAccountID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := s.services.accounts.Delete(ctx, id); err != nil {
		return nil, apiError(err, fmt.Sprintf("deleting account %s", id))
	}
	return nil, nil
}

func (s *Server) handleListModels(_ context.Context, _ *struct{}) (*listModelsOutput, error) {
	out := &listModelsOutput{}
	out.Body.Object = "list"
	out.Body.Data = lo.Map(s.services.chains.List(), func(c chain.ModelChain, _ int) ModelObject {
		return ModelObject{
			ID:      c.ID,
			Object:  "model",
			Created: c.CreatedAt.Unix(),
			OwnedBy: "chainroute",
		}
	})
	return out, nil
}

// --- helpers ---

func accountView(a *store.Account) AccountView {
	return AccountView{
		ID:           a.ID,
		ProviderType: a.ProviderType.String(),
		Name:         a.Name,
		BaseURL:      a.BaseURL,
		Priority:     a.Priority,
		Enabled:      a.Enabled,
		HasAPIKey:    a.APIKey != nil && *a.APIKey != "",
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func parseAccountID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, huma.Error400BadRequest(fmt.Sprintf("invalid account id %q", raw), err)
	}
	return id, nil
}

// chainID decodes an escaped chain id path parameter.
func chainID(raw string) (string, error) {
	id, err := url.PathUnescape(raw)
	if err != nil {
		return "", huma.Error400BadRequest(fmt.Sprintf("invalid chain id %q", raw), err)
	}
	return id, nil
}

// lookupChain decodes a chain id path parameter and maps it to a stored
// chain id, falling back to the builtin chain of that name.
func (s *Server) lookupChain(raw string) (string, error) {
	requested, err := chainID(raw)
	if err != nil {
		return "", err
	}
	id, ok := s.services.chains.LookupID(requested)
	if !ok {
		return "", huma.Error404NotFound(fmt.Sprintf("chain %q not found", requested))
	}
	return id, nil
}

// apiError maps a coded error to its HTTP status.
func apiError(err error, msg string) error {
	status := routeerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "error", err)
	}
	return huma.NewError(status, msg, err)
}
