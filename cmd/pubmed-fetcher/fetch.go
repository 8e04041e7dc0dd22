// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-fetcher/internal/classify"
	"github.com/pdiddy/pubmed-fetcher/internal/config"
	"github.com/pdiddy/pubmed-fetcher/internal/medline"
	"github.com/pdiddy/pubmed-fetcher/internal/pubmed"
	"github.com/pdiddy/pubmed-fetcher/internal/store"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

const defaultConcurrency = 2

// newFetcher builds the E-utilities client used by fetch. Tests replace it.
var newFetcher = func(cfg types.FetchConfig) pubmed.Fetcher {
	return pubmed.NewClient(cfg, pubmed.WithLogger(logger))
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [QUERY...]",
	Short: "Search PubMed and report papers with non-academic authors",
	Long: `Fetch runs each query against PubMed (esearch, then efetch in MEDLINE
format), parses the records, and classifies every author affiliation.

Several queries run concurrently and their records are concatenated in
argument order. A failed retrieval is an error; --lenient reports it as a
warning and treats the failed query as having no results.

Queries can also come from a YAML file (--queries) with a "queries" list of
{query, from_year, max_results} entries. --record writes the queries and
their results to a file in the same layout.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Int("year", 0, "only papers published in or after this year")
	fetchCmd.Flags().Int("max-results", 0, "maximum PMIDs per query (default from config, 5)")
	fetchCmd.Flags().Int("concurrency", defaultConcurrency, "queries fetched in parallel")
	fetchCmd.Flags().Bool("save", false, "save the run to the local store")
	fetchCmd.Flags().BoolP("verbose", "v", false, "print each affiliation decision to stderr")
	fetchCmd.Flags().Bool("lenient", false, "treat retrieval failures as empty results")
	fetchCmd.Flags().String("queries", "", "YAML file with additional queries")
	fetchCmd.Flags().String("record", "", "write queries and results to this YAML file")
	addOutputFlags(fetchCmd)

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if n, _ := cmd.Flags().GetInt("max-results"); n > 0 {
		cfg.Fetch.MaxResults = n
	}
	if err := config.ValidateFetch(cfg.Fetch); err != nil {
		return err
	}

	cl, err := classify.FromConfig(cfg.Classifier)
	if err != nil {
		return err
	}

	year, _ := cmd.Flags().GetInt("year")
	if year < 0 {
		return fmt.Errorf("--year must be positive, got %d", year)
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	verbose, _ := cmd.Flags().GetBool("verbose")
	lenient, _ := cmd.Flags().GetBool("lenient")
	save, _ := cmd.Flags().GetBool("save")

	queries := make([]pubmed.Query, 0, len(args))
	for _, a := range args {
		queries = append(queries, pubmed.Query{Text: a, FromYear: year})
	}
	if path, _ := cmd.Flags().GetString("queries"); path != "" {
		qf, err := pubmed.ReadQueryFile(path)
		if err != nil {
			return err
		}
		queries = append(queries, qf.Queries...)
	}
	if len(queries) == 0 {
		return fmt.Errorf("provide one or more queries, or --queries FILE")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newFetcher(cfg.Fetch)
	classifier := medline.Traced(cl, affiliationTracer(cmd.ErrOrStderr(), cl, verbose))

	results := pubmed.FetchAll(ctx, client, queries, classifier, concurrency)
	records, errs := pubmed.Merge(results)

	if path, _ := cmd.Flags().GetString("record"); path != "" {
		if err := pubmed.WriteQueryFile(path, results); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Recorded %d queries to %s\n", len(results), path)
	}
	if len(errs) > 0 {
		if !lenient {
			return errors.Join(errs...)
		}
		for _, e := range errs {
			logger.Warn("retrieval failed, continuing with no results", zap.Error(e))
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
		}
	}

	if save {
		if err := saveResults(ctx, cmd, cfg.Store, results); err != nil {
			return err
		}
	}

	return writeRecords(cmd, records)
}

// saveResults stores every successful result as its own run.
func saveResults(ctx context.Context, cmd *cobra.Command, cfg types.StoreConfig, results []pubmed.Result) error {
	s, err := store.Open(cfg, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	for _, res := range results {
		if !res.OK() {
			continue
		}
		runID, err := s.SaveRun(ctx, res.Query, res.Records)
		if err != nil {
			return fmt.Errorf("saving %q: %w", res.Query.Text, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved run %s (%d records) for %q\n", runID, len(res.Records), res.Query.Text)
	}
	return nil
}
