// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pubmed-fetcher CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-fetcher/internal/config"
	"github.com/pdiddy/pubmed-fetcher/internal/logging"
	"github.com/pdiddy/pubmed-fetcher/internal/secrets"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// appConfig and logger are built once in PersistentPreRunE and only read
// afterwards.
var (
	appConfig types.Config
	logger    = zap.NewNop()
)

// rootCmd is the base command for the pubmed-fetcher CLI.
var rootCmd = &cobra.Command{
	Use:   "pubmed-fetcher",
	Short: "Find PubMed papers with industry-affiliated authors",
	Long: `pubmed-fetcher queries PubMed through NCBI E-utilities, parses the MEDLINE
records, and flags author affiliations that look non-academic (companies,
hospitals, institutes). Results print as a table or export to CSV, JSON, or
YAML, and can be saved to a local SQLite store.

Configuration comes from pubmed-fetcher.yaml, PUBMED_FETCHER_* environment
variables (a .env file is loaded first), and the .secrets/ directory
(entrez-email, ncbi-api-key).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir, nil)
		if err != nil {
			return err
		}

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		secrets.ApplyFetch(&cfg.Fetch, s)
		if err := config.ValidateExport(cfg.Export); err != nil {
			return err
		}

		l, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		logger = l
		appConfig = cfg

		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("using config file", zap.String("path", used))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./pubmed-fetcher.yaml or ~/.config/pubmed-fetcher/pubmed-fetcher.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets/", "directory holding entrez-email and ncbi-api-key")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default info)")
	rootCmd.PersistentFlags().String("email", "", "Entrez contact email (overrides config and secrets)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("fetch.email", rootCmd.PersistentFlags().Lookup("email"))
}

func initConfig() {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pubmed-fetcher")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pubmed-fetcher"))
		}
	}

	config.BindEnv(viper.GetViper())

	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		fmt.Fprintln(os.Stderr, "warning: reading config:", err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
