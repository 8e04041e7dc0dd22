// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-fetcher/internal/medline"
	"github.com/pdiddy/pubmed-fetcher/internal/pubmed"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// --- test helpers ---

// stubFetcher answers each query with one record whose PMID is the query
// text, or with the configured failure.
type stubFetcher struct {
	mu      sync.Mutex
	seen    []pubmed.Query
	failing map[string]error
}

func (f *stubFetcher) Fetch(_ context.Context, q pubmed.Query, cl medline.Classifier) pubmed.Result {
	f.mu.Lock()
	f.seen = append(f.seen, q)
	f.mu.Unlock()

	if err, ok := f.failing[q.Text]; ok {
		return pubmed.Result{Query: q, Err: err}
	}
	raw := fmt.Sprintf("PMID- %s\nTI  - Paper for %s\nAD  - Acme Pharma Inc., Boston\n", q.Text, q.Text)
	return pubmed.Result{Query: q, Records: medline.Parse(raw, cl)}
}

func (f *stubFetcher) queries() []pubmed.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pubmed.Query(nil), f.seen...)
}

func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

// runCLI executes the root command with args against stub and returns
// stdout, stderr, and the command error.
func runCLI(t *testing.T, stub pubmed.Fetcher, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("PUBMED_FETCHER_FETCH_EMAIL", "test@example.org")
	t.Setenv("PUBMED_FETCHER_LOG_LEVEL", "error")

	oldFetcher, oldConfig, oldLogger := newFetcher, appConfig, logger
	newFetcher = func(types.FetchConfig) pubmed.Fetcher { return stub }
	t.Cleanup(func() {
		newFetcher, appConfig, logger = oldFetcher, oldConfig, oldLogger
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	resetFlags(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		resetFlags(c.Flags())
	}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func pmidsFromCSV(t *testing.T, out string) []string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	ids := []string{}
	for _, row := range rows[1:] {
		ids = append(ids, row[0])
	}
	return ids
}

var errEfetch = &pubmed.RetrievalError{
	Stage:  pubmed.StageFetch,
	Reason: "efetch request failed",
	Err:    &pubmed.StatusError{Endpoint: "efetch.fcgi", StatusCode: 503},
}

// --- tests ---

func TestFetchRetrievalFailureIsAnError(t *testing.T) {
	stub := &stubFetcher{failing: map[string]error{"broken": errEfetch}}
	record := filepath.Join(t.TempDir(), "run.yaml")

	out, _, err := runCLI(t, stub, "fetch", "good", "broken", "--format", "csv", "--record", record)
	require.Error(t, err)

	re, ok := pubmed.AsRetrievalError(err)
	require.True(t, ok, "error should carry the retrieval failure: %v", err)
	assert.Equal(t, pubmed.StageFetch, re.Stage)
	assert.Contains(t, err.Error(), `query "broken"`)
	assert.Empty(t, out, "no records are printed on failure")

	qf, err := pubmed.ReadQueryFile(record)
	require.NoError(t, err, "the record file is written before the error is returned")
	require.Len(t, qf.Results, 2)
	assert.Len(t, qf.Results[0].Records, 1)
	assert.Contains(t, qf.Results[1].Error, "efetch request failed")
	assert.Equal(t, 1, qf.Summary.Failed)
}

func TestFetchLenientWarnsAndContinues(t *testing.T) {
	stub := &stubFetcher{failing: map[string]error{"broken": errEfetch}}

	out, errOut, err := runCLI(t, stub, "fetch", "good", "broken", "--lenient", "--format", "csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"good"}, pmidsFromCSV(t, out))
	assert.Contains(t, errOut, "warning:")
	assert.Contains(t, errOut, "efetch request failed")
}

func TestFetchLenientAllFailedIsHeaderOnly(t *testing.T) {
	stub := &stubFetcher{failing: map[string]error{"broken": errEfetch}}

	out, errOut, err := runCLI(t, stub, "fetch", "broken", "--lenient", "--format", "csv")
	require.NoError(t, err)
	assert.Empty(t, pmidsFromCSV(t, out))
	assert.Contains(t, errOut, "warning:")
}

func TestFetchMergesQueryFileInOrder(t *testing.T) {
	queries := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(queries, []byte(`queries:
  - query: second
    from_year: 2019
  - query: third
    max_results: 7
`), 0o644))

	stub := &stubFetcher{}
	out, _, err := runCLI(t, stub, "fetch", "first", "--year", "2020",
		"--queries", queries, "--concurrency", "3", "--format", "json")
	require.NoError(t, err)

	var records []types.PaperRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		assert.True(t, r.HasCompanyAffiliation())
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids)

	assert.ElementsMatch(t, []pubmed.Query{
		{Text: "first", FromYear: 2020},
		{Text: "second", FromYear: 2019},
		{Text: "third", MaxResults: 7},
	}, stub.queries())
}

func TestFetchRequiresQuery(t *testing.T) {
	stub := &stubFetcher{}
	_, _, err := runCLI(t, stub, "fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provide one or more queries")
	assert.Empty(t, stub.queries())
}

func TestStartupRejectsUnknownExportFormat(t *testing.T) {
	t.Setenv("PUBMED_FETCHER_EXPORT_FORMAT", "xml")
	stub := &stubFetcher{}

	_, _, err := runCLI(t, stub, "fetch", "good")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `export.format "xml"`)
	assert.Empty(t, stub.queries())
}

func TestCommandsShareRoot(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"fetch", "parse", "classify", "serve", "store", "version"} {
		assert.True(t, names[want], want)
	}
}
