// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders PaperRecords as CSV, JSON, YAML, CSL-YAML, or a
// terminal table.
//
// The CSV layout is fixed: six columns in Header order, multi-valued fields
// joined with ", ". The join is lossy; an author or affiliation that itself
// contains ", " cannot be recovered by splitting the cell.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// Header is the CSV header row.
var Header = []string{
	"PubmedID",
	"Title",
	"Publication Date",
	"Authors",
	"Company Affiliations",
	"Corresponding Author Email",
}

// Separator joins multi-valued fields into one cell.
const Separator = ", "

// Row flattens r into the six Header columns.
func Row(r types.PaperRecord) []string {
	return []string{
		r.ID,
		r.Title,
		r.PublicationDate,
		strings.Join(r.Authors, Separator),
		strings.Join(r.CompanyAffiliations, Separator),
		r.CorrespondingEmail,
	}
}

// WriteCSV writes the header and one row per record to w.
func WriteCSV(w io.Writer, records []types.PaperRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// WriteCSVFile creates path and writes records to it as CSV. The file is
// closed on every return path; a close failure is reported when the write
// itself succeeded.
func WriteCSVFile(path string, records []types.PaperRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()
	return WriteCSV(f, records)
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []types.PaperRecord) error {
	if records == nil {
		records = []types.PaperRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteYAML writes records as a YAML sequence.
func WriteYAML(w io.Writer, records []types.PaperRecord) error {
	if records == nil {
		records = []types.PaperRecord{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

// WriteTable writes a human-readable summary table to w.
func WriteTable(w io.Writer, records []types.PaperRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No papers found.")
		return err
	}

	fmt.Fprintf(w, "%-10s  %-50s  %-12s  %-20s  %-7s  %s\n",
		"PMID", "Title", "Date", "Authors", "Company", "Email")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	company := 0
	for _, r := range records {
		flag := ""
		if r.HasCompanyAffiliation() {
			flag = "yes"
			company++
		}
		fmt.Fprintf(w, "%-10s  %-50s  %-12s  %-20s  %-7s  %s\n",
			r.ID, truncate(r.Title, 50), truncate(r.PublicationDate, 12),
			formatAuthors(r.Authors), flag, r.CorrespondingEmail)
	}

	_, err := fmt.Fprintf(w, "\n%d papers (%d with company affiliations)\n", len(records), company)
	return err
}

// Write dispatches on format. An empty format selects CSV.
func Write(w io.Writer, format types.ExportFormat, records []types.PaperRecord) error {
	switch format {
	case types.FormatCSV, "":
		return WriteCSV(w, records)
	case types.FormatJSON:
		return WriteJSON(w, records)
	case types.FormatYAML:
		return WriteYAML(w, records)
	case types.FormatTable:
		return WriteTable(w, records)
	case types.FormatCSL:
		return WriteCSL(w, records)
	default:
		return fmt.Errorf("unsupported format %q: use csv, json, yaml, csl, or table", format)
	}
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

// truncate shortens s to max runes, ending in "...". It never splits a rune.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	cut := 0
	for n := 0; n < max-3; n++ {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[:cut] + "..."
}
