// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/chainroute/internal/config"
	routeerr "github.com/sigil-dev/chainroute/pkg/errors"
)

// annotationNoBootstrap marks commands that must not write a default config
// when none is found.
const annotationNoBootstrap = "chainroute/no-bootstrap"

// NewRootCmd creates the root chainroute command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chainroute",
		Short:         "chainroute: failover routing for multi-account LLM gateways",
		Long:          "chainroute resolves model chains into ordered provider routes and fails over across accounts when upstreams rate-limit or break.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), viper.GetBool("verbose"))
			return nil
		},
	}

	// Global flags. These map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	// Gateway client flags, shared by every command that talks to a running gateway.
	root.PersistentFlags().String("address", "", "gateway address (defaults to networking.listen)")
	root.PersistentFlags().String("token", "", "admin API bearer token (defaults to $CHAINROUTE_TOKEN)")

	root.AddCommand(
		newInitCmd(),
		newStartCmd(),
		newStatusCmd(),
		newVersionCmd(),
		newDoctorCmd(),
		newChainsCmd(),
		newHealthCmd(),
		newAccountsCmd(),
		newSecretCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return routeerr.Errorf(routeerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset: with a type, Viper also tries the bare
		// name, which collides with a ./chainroute binary.
		v.SetConfigName("chainroute")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/chainroute")
		v.AddConfigPath("/etc/chainroute")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return routeerr.Errorf(routeerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if cmd.Annotations[annotationNoBootstrap] != "" {
				return bindGlobalFlags(cmd, v)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return routeerr.Errorf(routeerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	return bindGlobalFlags(cmd, v)
}

func bindGlobalFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("data_dir", flags.Lookup("data-dir")); err != nil {
		return routeerr.Errorf(routeerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return routeerr.Errorf(routeerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	return nil
}

// setupLogging installs a text slog handler on w; debug level when verbose.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
