// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify decides whether a free-text affiliation names a
// non-academic (commercial or industrial) organization. Classification is a
// case-insensitive substring search against a fixed keyword list; there is no
// tokenization, so a keyword may match inside a longer word.
package classify

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// DefaultKeywords is the built-in keyword list, checked in this order.
var DefaultKeywords = []string{
	"Inc.", "Ltd.", "Corporation", "Company", "Biotech", "Pharma", "Laboratories",
	"LLC", "Technologies", "Industries", "Research Institute", "Diagnostics",
	"Solutions", "Consulting", "Foundation", "Healthcare", "Medical Center",
	"Hospital", "Cancer Institute", "Genomics", "Therapeutics", "Life Sciences",
	"Biopharma", "Institute", "Private Research", "Consulting Group",
}

// Classifier holds an immutable keyword list. It is safe for concurrent use.
type Classifier struct {
	keywords []string
	lowered  []string
}

// New builds a Classifier from cfg.Keywords. An empty list selects
// DefaultKeywords. Blank entries are dropped; order is preserved.
func New(cfg types.ClassifierConfig) *Classifier {
	src := cfg.Keywords
	if len(src) == 0 {
		src = DefaultKeywords
	}

	c := &Classifier{}
	for _, kw := range src {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		c.keywords = append(c.keywords, kw)
		c.lowered = append(c.lowered, strings.ToLower(kw))
	}
	return c
}

// IsNonAcademic reports whether affiliation contains any configured keyword.
func (c *Classifier) IsNonAcademic(affiliation string) bool {
	_, ok := c.Match(affiliation)
	return ok
}

// Match returns the first keyword found in affiliation.
func (c *Classifier) Match(affiliation string) (string, bool) {
	lower := strings.ToLower(affiliation)
	for i, kw := range c.lowered {
		if strings.Contains(lower, kw) {
			return c.keywords[i], true
		}
	}
	return "", false
}

// Keywords returns a copy of the configured keyword list.
func (c *Classifier) Keywords() []string {
	out := make([]string, len(c.keywords))
	copy(out, c.keywords)
	return out
}

// keywordFile is the on-disk layout of a versioned keyword list.
type keywordFile struct {
	Version  string   `yaml:"version,omitempty"`
	Keywords []string `yaml:"keywords"`
}

// LoadKeywords reads a YAML keyword file of the form
//
//	version: "2024-01"
//	keywords:
//	  - Inc.
//	  - Pharma
func LoadKeywords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyword file: %w", err)
	}
	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parsing keyword file %s: %w", path, err)
	}
	if len(kf.Keywords) == 0 {
		return nil, fmt.Errorf("keyword file %s lists no keywords", path)
	}
	return kf.Keywords, nil
}

// FromConfig resolves cfg into a Classifier, reading KeywordsFile when no
// inline keywords are configured.
func FromConfig(cfg types.ClassifierConfig) (*Classifier, error) {
	if len(cfg.Keywords) == 0 && cfg.KeywordsFile != "" {
		kws, err := LoadKeywords(cfg.KeywordsFile)
		if err != nil {
			return nil, err
		}
		cfg.Keywords = kws
	}
	return New(cfg), nil
}
