// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-fetcher/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect runs saved with fetch --save",
	Long: `Store reads the local SQLite database written by "fetch --save". Papers
are keyed by PMID; a paper found again by a later run belongs to that run.`,
}

var storeRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List saved runs, newest first",
	RunE:  runStoreRuns,
}

var storeRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print saved records",
	RunE:  runStoreRecords,
}

var storeExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write runs and records to a YAML snapshot",
	RunE:  runStoreExport,
}

func runStoreRuns(cmd *cobra.Command, args []string) error {
	s, err := store.Open(appConfig.Store, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(runs); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
	default:
		return fmt.Errorf("unsupported format %q: use table, json, or yaml", format)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No saved runs.")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-20s  %-5s  %-7s  %s\n", "RUN", "CREATED", "YEAR", "RECORDS", "QUERY")
	for _, r := range runs {
		year := "-"
		if r.FromYear > 0 {
			year = fmt.Sprint(r.FromYear)
		}
		fmt.Fprintf(out, "%-36s  %-20s  %-5s  %-7d  %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), year, r.RecordCount, r.Query)
	}
	return nil
}

func runStoreRecords(cmd *cobra.Command, args []string) error {
	s, err := store.Open(appConfig.Store, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.Records(cmd.Context(), recordFilterFromFlags(cmd))
	if err != nil {
		return err
	}
	return writeRecords(cmd, records)
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	s, err := store.Open(appConfig.Store, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	output, _ := cmd.Flags().GetString("output")
	path, err := s.ExportYAML(cmd.Context(), output, recordFilterFromFlags(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", path)
	return nil
}

func recordFilterFromFlags(cmd *cobra.Command) store.RecordFilter {
	runID, _ := cmd.Flags().GetString("run")
	companyOnly, _ := cmd.Flags().GetBool("company-only")
	title, _ := cmd.Flags().GetString("title")
	limit, _ := cmd.Flags().GetInt("limit")
	return store.RecordFilter{
		RunID:       runID,
		CompanyOnly: companyOnly,
		Title:       title,
		Limit:       limit,
	}
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("run", "", "only records from this run ID")
	cmd.Flags().Bool("company-only", false, "only records with a non-academic affiliation")
	cmd.Flags().String("title", "", "full-text search on titles")
	cmd.Flags().Int("limit", 0, "maximum records (0 = all)")
}

func init() {
	storeCmd.PersistentFlags().String("dir", "", "store directory (default .pubmed-fetcher)")
	viper.BindPFlag("store.dir", storeCmd.PersistentFlags().Lookup("dir"))

	storeRunsCmd.Flags().String("format", "table", "output format: table, json, or yaml")

	addFilterFlags(storeRecordsCmd)
	addOutputFlags(storeRecordsCmd)

	addFilterFlags(storeExportCmd)
	storeExportCmd.Flags().StringP("output", "o", "", "snapshot path (default <dir>/export.yaml)")

	storeCmd.AddCommand(storeRunsCmd)
	storeCmd.AddCommand(storeRecordsCmd)
	storeCmd.AddCommand(storeExportCmd)

	rootCmd.AddCommand(storeCmd)
}
