// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pubmed-fetcher/internal/classify"
	"github.com/pdiddy/pubmed-fetcher/internal/config"
	"github.com/pdiddy/pubmed-fetcher/internal/metrics"
	"github.com/pdiddy/pubmed-fetcher/internal/pubmed"
	"github.com/pdiddy/pubmed-fetcher/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /search and /download over HTTP",
	Long: `Serve starts the HTTP API:

  GET /search?query=...&year=YYYY    records as JSON
  GET /download?query=...&year=YYYY  records as output.csv
  GET /healthz                       liveness
  GET /metrics                       Prometheus metrics

It stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig
		if err := config.Validate(cfg); err != nil {
			return err
		}

		cl, err := classify.FromConfig(cfg.Classifier)
		if err != nil {
			return err
		}

		client := pubmed.NewClient(cfg.Fetch, pubmed.WithLogger(logger))
		m := metrics.New(prometheus.DefaultRegisterer)
		srv := server.New(cfg.Server, client, cl, logger, m)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Run(ctx, srv, cfg.Server.ShutdownTimeout, logger)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :5000)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}
