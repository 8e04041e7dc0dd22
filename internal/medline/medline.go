// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package medline turns MEDLINE-format text (as returned by PubMed efetch with
// rettype=medline) into PaperRecords.
//
// A blob holds one record per blank-line separated chunk. Within a chunk each
// line is dispatched on its tag prefix, first match wins, in the order
// PMID, TI, DP, AU, AD. Only an untagged line containing "@" is taken as the
// corresponding author email, so an AD line with an embedded address stays
// an affiliation. Unrecognized lines are dropped. Nothing in this package
// returns an error: extraction is best effort.
package medline

import (
	"strings"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

const (
	tagPMID        = "PMID-"
	tagPMIDSpaced  = "PMID -"
	tagTitle       = "TI  -"
	tagDate        = "DP  -"
	tagAuthor      = "AU  -"
	tagAffiliation = "AD  -"
)

// Classifier decides whether an affiliation is non-academic.
// *classify.Classifier satisfies it.
type Classifier interface {
	IsNonAcademic(affiliation string) bool
}

// AffiliationFunc observes each classification decision made while parsing.
type AffiliationFunc func(affiliation string, nonAcademic bool)

// Split divides raw into record chunks on blank lines. Surrounding
// whitespace of the whole blob is trimmed first; an empty blob yields no
// chunks. Consecutive blank lines produce empty chunks, which Extract turns
// into empty records.
func Split(raw string) []string {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\r\n", "\n"))
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n\n")
}

// Extract builds exactly one record from chunk.
func Extract(chunk string, c Classifier) types.PaperRecord {
	var b recordBuilder
	for _, line := range strings.Split(chunk, "\n") {
		b.consume(line, c)
	}
	return b.build()
}

// Parse splits raw and extracts one record per chunk, in input order.
func Parse(raw string, c Classifier) []types.PaperRecord {
	chunks := Split(raw)
	records := make([]types.PaperRecord, 0, len(chunks))
	for _, chunk := range chunks {
		records = append(records, Extract(chunk, c))
	}
	return records
}

// ParseWithTrace is Parse with fn called for every affiliation line.
func ParseWithTrace(raw string, c Classifier, fn AffiliationFunc) []types.PaperRecord {
	return Parse(raw, Traced(c, fn))
}

// Traced wraps c so that fn observes every decision. It returns c unchanged
// when fn is nil. A nil c classifies nothing as non-academic.
func Traced(c Classifier, fn AffiliationFunc) Classifier {
	if fn == nil {
		return c
	}
	return tracingClassifier{next: c, fn: fn}
}

type tracingClassifier struct {
	next Classifier
	fn   AffiliationFunc
}

func (t tracingClassifier) IsNonAcademic(affiliation string) bool {
	ok := t.next != nil && t.next.IsNonAcademic(affiliation)
	t.fn(affiliation, ok)
	return ok
}

// recordBuilder accumulates fields for one chunk. The record it holds is
// never handed out; build returns a copy.
type recordBuilder struct {
	rec types.PaperRecord
}

func (b *recordBuilder) consume(line string, c Classifier) {
	switch {
	case strings.HasPrefix(line, tagPMID), strings.HasPrefix(line, tagPMIDSpaced):
		b.rec.ID = strings.TrimSpace(line[strings.LastIndex(line, "-")+1:])
	case strings.HasPrefix(line, tagTitle):
		b.rec.Title = value(line, tagTitle)
	case strings.HasPrefix(line, tagDate):
		b.rec.PublicationDate = value(line, tagDate)
	case strings.HasPrefix(line, tagAuthor):
		b.rec.Authors = append(b.rec.Authors, value(line, tagAuthor))
	case strings.HasPrefix(line, tagAffiliation):
		aff := value(line, tagAffiliation)
		b.rec.Affiliations = append(b.rec.Affiliations, aff)
		if c != nil && c.IsNonAcademic(aff) {
			b.rec.CompanyAffiliations = append(b.rec.CompanyAffiliations, aff)
		}
	case strings.Contains(line, "@"):
		b.rec.CorrespondingEmail = strings.TrimSpace(line)
	}
}

func (b *recordBuilder) build() types.PaperRecord {
	r := b.rec
	r.Authors = cloneStrings(r.Authors)
	r.Affiliations = cloneStrings(r.Affiliations)
	r.CompanyAffiliations = cloneStrings(r.CompanyAffiliations)
	return r
}

// value returns the trimmed text after tag.
func value(line, tag string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, tag))
}

// cloneStrings copies s, mapping nil to an empty non-nil slice so JSON
// output renders [] rather than null.
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
