// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the pubmed-fetcher pipeline:
// the parsed PaperRecord and the configuration sections for retrieval,
// classification, export, storage, serving, and logging.
package types

// PaperRecord is one parsed MEDLINE entry. Optional string fields are empty
// when the source chunk did not contain the corresponding tag.
//
// CompanyAffiliations is a filtered view of Affiliations: every element is
// also present in Affiliations, in the same relative order.
type PaperRecord struct {
	// ID is the PubMed identifier taken from the PMID line.
	ID string `json:"pubmed_id" yaml:"pubmed_id"`

	// Title is the article title (TI line).
	Title string `json:"title" yaml:"title"`

	// PublicationDate is the DP line kept as free-form text (e.g. "2023 Jan").
	PublicationDate string `json:"publication_date" yaml:"publication_date"`

	// Authors lists AU lines in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Affiliations lists AD lines in source order.
	Affiliations []string `json:"affiliations" yaml:"affiliations"`

	// CompanyAffiliations lists the affiliations classified as non-academic.
	CompanyAffiliations []string `json:"company_affiliations" yaml:"company_affiliations"`

	// CorrespondingEmail is the last untagged line containing "@".
	CorrespondingEmail string `json:"corresponding_author_email" yaml:"corresponding_author_email"`
}

// HasCompanyAffiliation reports whether at least one affiliation was
// classified as non-academic.
func (r PaperRecord) HasCompanyAffiliation() bool {
	return len(r.CompanyAffiliations) > 0
}
