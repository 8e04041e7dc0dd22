// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-fetcher/internal/classify"
	"github.com/pdiddy/pubmed-fetcher/internal/medline"
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Parse a local MEDLINE text file",
	Long: `Parse reads MEDLINE-format text (as returned by efetch with
rettype=medline) from FILE, or from stdin when FILE is "-", and reports the
records without touching the network.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().BoolP("verbose", "v", false, "print each affiliation decision to stderr")
	addOutputFlags(parseCmd)

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	cl, err := classify.FromConfig(appConfig.Classifier)
	if err != nil {
		return err
	}

	var data []byte
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	records := medline.ParseWithTrace(string(data), cl, affiliationTracer(cmd.ErrOrStderr(), cl, verbose))
	return writeRecords(cmd, records)
}
