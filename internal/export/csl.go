// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// CSLItem is a bibliographic entry in CSL (Citation Style Language) form.
// Field names follow the CSL-YAML schema so the output loads in Pandoc and
// reference managers.
type CSLItem struct {
	ID     string    `yaml:"id"`
	Type   string    `yaml:"type"`
	Title  string    `yaml:"title"`
	Author []CSLName `yaml:"author,omitempty"`
	Issued *CSLDate  `yaml:"issued,omitempty"`
	PMID   string    `yaml:"PMID,omitempty"`
	URL    string    `yaml:"URL,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts form.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

const pubmedURL = "https://pubmed.ncbi.nlm.nih.gov/"

// WriteCSL writes records as a CSL-YAML list.
func WriteCSL(w io.Writer, records []types.PaperRecord) error {
	items := make([]CSLItem, len(records))
	for i, r := range records {
		items[i] = ToCSLItem(r, i)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encoding CSL: %w", err)
	}
	return enc.Close()
}

// ToCSLItem converts r. index names records that have no PMID.
func ToCSLItem(r types.PaperRecord, index int) CSLItem {
	item := CSLItem{
		ID:     r.ID,
		Type:   "article-journal",
		Title:  r.Title,
		Issued: parseMedlineDate(r.PublicationDate),
	}
	if r.ID == "" {
		item.ID = fmt.Sprintf("item-%d", index+1)
	} else {
		item.PMID = r.ID
		item.URL = pubmedURL + r.ID + "/"
	}
	for _, a := range r.Authors {
		if name := parseAuthorName(a); name != (CSLName{}) {
			item.Author = append(item.Author, name)
		}
	}
	return item
}

// parseAuthorName splits a MEDLINE AU value ("Smith JA", "van der Berg K")
// on the last space: the family name comes first and the initials last.
// Single-token names (collective authors) use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Family: name[:idx],
		Given:  name[idx+1:],
	}
}

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// parseMedlineDate reads the leading year, month, and day of a DP value
// such as "2023 Jan 15", "2023 Jan-Feb", or "2023 Spring". Parts that are
// not recognized end the date; a value without a year yields nil.
func parseMedlineDate(dp string) *CSLDate {
	fields := strings.Fields(dp)
	if len(fields) == 0 {
		return nil
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil || len(fields[0]) != 4 {
		return nil
	}
	parts := []int{year}

	if len(fields) > 1 && len(fields[1]) >= 3 {
		if m, ok := months[strings.ToLower(fields[1][:3])]; ok {
			parts = append(parts, m)
			if len(fields) > 2 {
				if d, err := strconv.Atoi(fields[2]); err == nil && d >= 1 && d <= 31 {
					parts = append(parts, d)
				}
			}
		}
	}
	return &CSLDate{DateParts: [][]int{parts}}
}
