// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-fetcher/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [AFFILIATION...]",
	Short: "Classify affiliation strings as academic or non-academic",
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, err := classify.FromConfig(appConfig.Classifier)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if list, _ := cmd.Flags().GetBool("list"); list {
			for _, kw := range cl.Keywords() {
				fmt.Fprintln(out, kw)
			}
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("provide one or more affiliations, or --list")
		}

		for _, aff := range args {
			if kw, ok := cl.Match(aff); ok {
				fmt.Fprintf(out, "non-academic\t%s\t%s\n", kw, aff)
			} else {
				fmt.Fprintf(out, "academic\t-\t%s\n", aff)
			}
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().Bool("list", false, "print the configured keyword list")

	rootCmd.AddCommand(classifyCmd)
}
