// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-fetcher/internal/classify"
	"github.com/pdiddy/pubmed-fetcher/internal/export"
	"github.com/pdiddy/pubmed-fetcher/internal/medline"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// addOutputFlags registers --output and --format on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "write results to this file instead of stdout")
	cmd.Flags().String("format", "", "output format: table, csv, json, yaml, csl (default from config, or csv when --output ends in .csv)")
}

// outputFormat resolves the format from --format, the output file
// extension, and the configured default, in that order.
func outputFormat(cmd *cobra.Command, output string) types.ExportFormat {
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		return types.ExportFormat(strings.ToLower(f))
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".csv":
		return types.FormatCSV
	case ".json":
		return types.FormatJSON
	case ".yaml", ".yml":
		return types.FormatYAML
	}
	if output != "" {
		return types.FormatCSV
	}
	if appConfig.Export.Format != "" {
		return appConfig.Export.Format
	}
	return types.FormatTable
}

// writeRecords renders records to --output or stdout.
func writeRecords(cmd *cobra.Command, records []types.PaperRecord) error {
	output, _ := cmd.Flags().GetString("output")
	format := outputFormat(cmd, output)

	if output == "" {
		return export.Write(cmd.OutOrStdout(), format, records)
	}

	if format == types.FormatCSV {
		if err := export.WriteCSVFile(output, records); err != nil {
			return err
		}
	} else if err := writeFile(output, func(w io.Writer) error {
		return export.Write(w, format, records)
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Results saved to %s\n", output)
	return nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	return fn(f)
}

// affiliationTracer returns a callback that prints each classification
// decision to w, or nil when verbose is off.
func affiliationTracer(w io.Writer, c *classify.Classifier, verbose bool) medline.AffiliationFunc {
	if !verbose {
		return nil
	}
	return func(affiliation string, nonAcademic bool) {
		if !nonAcademic {
			fmt.Fprintf(w, "  academic     %s\n", affiliation)
			return
		}
		kw, _ := c.Match(affiliation)
		fmt.Fprintf(w, "  non-academic %s (matched %q)\n", affiliation, kw)
	}
}
