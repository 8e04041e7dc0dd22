// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/pubmed-fetcher/internal/medline"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// Stage names the E-utilities call that failed.
type Stage string

const (
	StageSearch Stage = "search"
	StageFetch  Stage = "fetch"
)

// RetrievalError reports why records could not be retrieved. It separates
// "the query failed" from "the query matched nothing".
type RetrievalError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pubmed %s: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("pubmed %s: %s", e.Stage, e.Reason)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// StatusError is a non-200 response that survived retries.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Endpoint, e.StatusCode)
}

// AsRetrievalError extracts a *RetrievalError from err.
func AsRetrievalError(err error) (*RetrievalError, bool) {
	var re *RetrievalError
	ok := errors.As(err, &re)
	return re, ok
}

// Result is the outcome of one Fetch: either records (possibly none) or an error.
type Result struct {
	Query   Query
	Records []types.PaperRecord
	Err     error
	Elapsed time.Duration
}

// OK reports whether retrieval succeeded.
func (r Result) OK() bool { return r.Err == nil }

// RecordsOrEmpty returns the records, or an empty slice when retrieval
// failed. It reproduces the lenient "failure looks like no results" mode.
func (r Result) RecordsOrEmpty() []types.PaperRecord {
	if r.Err != nil || r.Records == nil {
		return []types.PaperRecord{}
	}
	return r.Records
}

// Fetcher retrieves and parses records for one query. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, q Query, cl medline.Classifier) Result
}

// FetchAll runs queries concurrently, at most limit at a time (limit <= 0
// means one at a time), and returns results in query order. Individual
// failures are reported per Result; FetchAll itself only stops early when
// ctx is cancelled, in which case unstarted queries report ctx.Err().
func FetchAll(ctx context.Context, f Fetcher, queries []Query, cl medline.Classifier, limit int) []Result {
	if limit <= 0 {
		limit = 1
	}
	results := make([]Result, len(queries))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Query: q, Err: &RetrievalError{Stage: StageSearch, Reason: "cancelled", Err: err}}
			continue
		}
		g.Go(func() error {
			results[i] = f.Fetch(ctx, q, cl)
			return nil
		})
	}
	g.Wait()
	return results
}

// Merge concatenates the records of successful results in order and returns
// the errors of the failed ones.
func Merge(results []Result) ([]types.PaperRecord, []error) {
	records := []types.PaperRecord{}
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("query %q: %w", r.Query.Text, r.Err))
			continue
		}
		records = append(records, r.Records...)
	}
	return records, errs
}
