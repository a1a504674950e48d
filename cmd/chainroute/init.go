// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/chainroute/internal/chain"
	"github.com/sigil-dev/chainroute/internal/config"
	"github.com/sigil-dev/chainroute/internal/provider"
	"github.com/sigil-dev/chainroute/internal/secrets"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// initHTTPClient is the HTTP client used for key validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// StarterChainID names the chain written by the wizard.
const StarterChainID = "starter"

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepProvider    initWizardStep = iota // select provider
	stepAPIKey                            // enter API key
	stepValidateKey                       // validating key (spinner)
	stepModel                             // starter chain model
	stepDone                              // wizard complete
	stepError                             // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Provider provider.ProviderType
	APIKey   string
	// ModelID is the starter chain's only entry; empty skips the chain.
	ModelID string
}

type (
	validationSuccessMsg struct{}
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// supportedProviders are the types whose keys can be checked without a
// base URL.
var supportedProviders = lo.Filter(provider.KnownTypes(), func(t provider.ProviderType, _ int) bool {
	_, ok := provider.ModelsURL(t, "")
	return ok
})

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	providerIdx    int
	apiKeyInput    textinput.Model
	modelInput     textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	skipChain      bool
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	model := textinput.New()
	model.Placeholder = "model id"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		modelInput:  model,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		if m.skipChain {
			m.result.ModelID = ""
			return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
		}
		m.step = stepModel
		m.modelInput.SetValue(defaultModelForProvider(m.result.Provider))
		m.modelInput.Focus()
		return m, textinput.Blink

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		m.step = stepAPIKey
		m.apiKeyInput.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInputs(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepModel:
		return m.handleModelInput(msg)
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidateKey
		return m, tea.Batch(
			m.spinner.Tick,
			validateProviderKeyCmd(m.result.Provider, key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleModelInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		model := strings.TrimSpace(m.modelInput.Value())
		if model == "" {
			m.validationErr = "model id must not be empty (esc to skip the starter chain)"
			return m, nil
		}
		m.result.ModelID = model
		m.validationErr = ""
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	case "esc":
		m.result.ModelID = ""
		m.validationErr = ""
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.modelInput, cmd = m.modelInput.Update(msg)
	return m, cmd
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.step {
	case stepAPIKey:
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	case stepModel:
		m.modelInput, cmd = m.modelInput.Update(msg)
	}
	return m, cmd
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  chainroute setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/2: Add a standard provider account") + "\n\n")
		for i, p := range supportedProviders {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+string(p)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+string(p)) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+string(m.result.Provider)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Provider) + " API key…\n")

	case stepModel:
		b.WriteString(promptStyle.Render("Step 2/2: Model for the starter chain") + "\n\n")
		b.WriteString(m.modelInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to skip  ctrl+c to quit"))

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("chainroute start") + " to serve the admin API.\n")
		b.WriteString("Run " + promptStyle.Render("chainroute doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func validateProviderKeyCmd(p provider.ProviderType, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, p, key, ""); err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// secretName is the keyring key holding a provider's API key.
func secretName(p provider.ProviderType) string {
	return string(p) + "-api-key"
}

// GenerateConfigYAML produces a minimal chainroute.yaml from the wizard
// result. The API key is referenced through a keyring:// URI; the secret is
// stored separately by storeSecretAndWriteConfig.
func GenerateConfigYAML(result initResult, dataDir string) string {
	var sb strings.Builder
	sb.WriteString("# chainroute configuration, generated by chainroute init\n\n")

	sb.WriteString("networking:\n")
	sb.WriteString("  listen: \"127.0.0.1:18790\"\n\n")

	sb.WriteString(fmt.Sprintf("data_dir: %q\n\n", dataDir))

	sb.WriteString("storage:\n")
	sb.WriteString("  backend: sqlite\n\n")

	sb.WriteString("providers:\n")
	sb.WriteString(fmt.Sprintf("  %s:\n", result.Provider))
	sb.WriteString(fmt.Sprintf("    api_key: %q\n\n", secrets.KeyringURI(secrets.DefaultService, secretName(result.Provider))))

	sb.WriteString("server:\n")
	sb.WriteString("  auth_tokens: []\n")

	return sb.String()
}

// defaultModelForProvider suggests a starter model; empty when there is no
// obvious choice.
func defaultModelForProvider(p provider.ProviderType) string {
	switch p {
	case provider.TypeAnthropic:
		return "claude-sonnet-4-5"
	case provider.TypeOpenAI:
		return "gpt-4o"
	case provider.TypeGoogle:
		return "gemini-2.0-flash"
	case provider.TypeZAI:
		return "glm-4-plus"
	case provider.TypeMinimax:
		return "MiniMax-M1"
	case provider.TypeCerebras:
		return "llama-4-scout-17b-16e-instruct"
	case provider.TypeGroq:
		return "llama-3.3-70b-versatile"
	case provider.TypeOpenRouter:
		return "anthropic/claude-sonnet-4.5"
	case provider.TypeMistral:
		return "mistral-large-latest"
	default:
		return ""
	}
}

// storeSecretAndWriteConfig saves the API key to the keyring, writes the
// config to the default path, and seeds the starter chain as the catalog
// default when a model was chosen.
//
// An existing config is only replaced when forceOverwrite is set. A key
// stored before a failed config write is left in the keyring; a rerun
// overwrites it.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	if err := store.Store(secrets.DefaultService, secretName(result.Provider), result.APIKey); err != nil {
		return "", routeerr.Errorf(routeerr.CodeSecretStoreFailure, "storing %s API key: %v", result.Provider, err)
	}

	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", routeerr.Errorf(routeerr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", routeerr.Errorf(routeerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}

	dataDir := filepath.Join(dir, "data")
	if err := os.WriteFile(cfgPath, []byte(GenerateConfigYAML(result, dataDir)), 0o600); err != nil {
		return "", routeerr.Errorf(routeerr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}

	if result.ModelID != "" {
		chains := chain.NewStore(filepath.Join(dataDir, config.DefaultChainsFile))
		chains.Upsert(chain.ModelChain{
			ID:        StarterChainID,
			Name:      "Starter",
			Entries:   []chain.ChainEntry{{ProviderID: string(result.Provider), ModelID: result.ModelID}},
			IsDefault: true,
		})
	}

	return cfgPath, nil
}

// configPathForWrite returns the config location the wizard writes to.
// A variable so tests can override it.
var configPathForWrite = config.DefaultConfigPath

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard for chainroute",
		Long: `Run an interactive TUI wizard that walks you through:
  1. Adding a standard provider account (API key checked against the provider)
  2. Seeding a starter chain as the catalog default

API keys are stored in the OS keyring and referenced via keyring:// URIs in
the config file. No secrets are written in plain text.

After completion, run:
  chainroute start    start the gateway
  chainroute doctor   verify your setup`,
		Annotations: map[string]string{annotationNoBootstrap: "true"},
		RunE:        runInit,
	}

	cmd.Flags().Bool("skip-chain", false, "do not seed a starter chain")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"chainroute init requires an interactive terminal.\n"+
				"To configure chainroute non-interactively, edit ~/.config/chainroute/chainroute.yaml directly.")
		return routeerr.New(routeerr.CodeCLISetupFailure, "chainroute init: not an interactive terminal")
	}

	skipChain, _ := cmd.Flags().GetBool("skip-chain")
	forceOverwrite, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.skipChain = skipChain
	m.forceOverwrite = forceOverwrite

	finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return routeerr.Errorf(routeerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return routeerr.New(routeerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return routeerr.Errorf(routeerr.CodeCLISetupFailure, "init failed: %v", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
