// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// QueryFile is the on-disk form of a batch of queries. A file written by
// WriteQueryFile also carries the results, so a run can be inspected later
// without querying NCBI again.
type QueryFile struct {
	Queries []Query       `yaml:"queries"`
	Results []QueryResult `yaml:"results,omitempty"`
	Summary *QuerySummary `yaml:"summary,omitempty"`
}

// QueryResult stores the outcome of one query.
type QueryResult struct {
	Query   Query               `yaml:"query"`
	Records []types.PaperRecord `yaml:"records"`
	Error   string              `yaml:"error,omitempty"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total     int       `yaml:"total"`
	Company   int       `yaml:"company"`
	Failed    int       `yaml:"failed"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WriteQueryFile saves the queries and outcomes of results to path.
func WriteQueryFile(path string, results []Result) error {
	qf := QueryFile{Summary: &QuerySummary{Timestamp: time.Now().UTC()}}
	for _, r := range results {
		qf.Queries = append(qf.Queries, r.Query)
		qr := QueryResult{Query: r.Query, Records: r.RecordsOrEmpty()}
		if r.Err != nil {
			qr.Error = r.Err.Error()
			qf.Summary.Failed++
		}
		for _, rec := range qr.Records {
			if rec.HasCompanyAffiliation() {
				qf.Summary.Company++
			}
		}
		qf.Summary.Total += len(qr.Records)
		qf.Results = append(qf.Results, qr)
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a query file. Every query must have text.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	for i, q := range qf.Queries {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("query file %s: query %d has no text", path, i+1)
		}
		if q.FromYear < 0 || q.MaxResults < 0 {
			return nil, fmt.Errorf("query file %s: query %d has a negative from_year or max_results", path, i+1)
		}
	}
	return &qf, nil
}
