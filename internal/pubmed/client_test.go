// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pubmed-fetcher/internal/classify"
	"github.com/pdiddy/pubmed-fetcher/internal/httputil"
	"github.com/pdiddy/pubmed-fetcher/internal/medline"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"))
}

const medlineFixture = `PMID- 111
TI  - Industrial enzymes
DP  - 2024 Feb 3
AU  - Lee K
AD  - Novozymes Biotech Inc., Davis, CA
      kim.lee@example.com

PMID- 222
TI  - Academic enzymes
DP  - 2023
AU  - Park S
AD  - Department of Chemistry, Seoul National University
`

// --- fake E-utilities server ---

type fakeEutils struct {
	mu       sync.Mutex
	searches []url.Values
	fetches  []url.Values

	ids         []string
	searchBody  string
	searchCode  int
	fetchCode   int
	fetchBody   string
	searchDelay time.Duration
}

func (f *fakeEutils) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.searches = append(f.searches, r.URL.Query())
		f.mu.Unlock()
		if f.searchDelay > 0 {
			time.Sleep(f.searchDelay)
		}
		if f.searchCode != 0 {
			w.WriteHeader(f.searchCode)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if f.searchBody != "" {
			fmt.Fprint(w, f.searchBody)
			return
		}
		quoted := make([]string, len(f.ids))
		for i, id := range f.ids {
			quoted[i] = `"` + id + `"`
		}
		fmt.Fprintf(w, `{"header":{"type":"esearch"},"esearchresult":{"count":"%d","retmax":"%d","idlist":[%s]}}`,
			len(f.ids), len(f.ids), strings.Join(quoted, ","))
	})
	mux.HandleFunc("/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.fetches = append(f.fetches, r.URL.Query())
		f.mu.Unlock()
		if f.fetchCode != 0 {
			w.WriteHeader(f.fetchCode)
			return
		}
		fmt.Fprint(w, f.fetchBody)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeEutils, cfg types.FetchConfig) *Client {
	t.Helper()
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	return NewClient(cfg,
		WithBaseURL(ts.URL),
		WithHTTPClient(ts.Client()),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
}

func testConfig() types.FetchConfig {
	return types.FetchConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test/0.1"},
		Email:      "someone@example.org",
		MaxRetries: 1,
	}
}

// --- Query ---

func TestQueryTerm(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"plain", Query{Text: "cancer immunotherapy"}, "cancer immunotherapy"},
		{"trimmed", Query{Text: "  crispr  "}, "crispr"},
		{"year filter", Query{Text: "crispr", FromYear: 2020}, "crispr AND (2020[PDAT] : 3000[PDAT])"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.Term())
		})
	}
}

// --- Search / FetchMedline ---

func TestSearchSendsEntrezParameters(t *testing.T) {
	f := &fakeEutils{ids: []string{"111", "222"}}
	cfg := testConfig()
	cfg.APIKey = "key123"
	cfg.MaxResults = 7
	c := newTestClient(t, f, cfg)

	ids, err := c.Search(context.Background(), Query{Text: "enzymes", FromYear: 2023})
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222"}, ids)

	require.Len(t, f.searches, 1)
	q := f.searches[0]
	assert.Equal(t, "pubmed", q.Get("db"))
	assert.Equal(t, "enzymes AND (2023[PDAT] : 3000[PDAT])", q.Get("term"))
	assert.Equal(t, "7", q.Get("retmax"))
	assert.Equal(t, "json", q.Get("retmode"))
	assert.Equal(t, "someone@example.org", q.Get("email"))
	assert.Equal(t, "pubmed-fetcher", q.Get("tool"))
	assert.Equal(t, "key123", q.Get("api_key"))
}

func TestSearchQueryMaxResultsOverride(t *testing.T) {
	f := &fakeEutils{}
	c := newTestClient(t, f, testConfig())

	_, err := c.Search(context.Background(), Query{Text: "x", MaxResults: 50})
	require.NoError(t, err)
	assert.Equal(t, "50", f.searches[0].Get("retmax"))
}

func TestSearchDefaultMaxResults(t *testing.T) {
	f := &fakeEutils{}
	c := newTestClient(t, f, testConfig())

	_, err := c.Search(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "5", f.searches[0].Get("retmax"))
	assert.Empty(t, f.searches[0].Get("api_key"))
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		f      *fakeEutils
		query  Query
		reason string
	}{
		{"empty query", &fakeEutils{}, Query{Text: "  "}, "query is empty"},
		{"http error", &fakeEutils{searchCode: http.StatusBadRequest}, Query{Text: "x"}, "esearch request failed"},
		{"bad json", &fakeEutils{searchBody: "<html>"}, Query{Text: "x"}, "parsing esearch response"},
		{"esearch ERROR field", &fakeEutils{searchBody: `{"esearchresult":{"ERROR":"Invalid query"}}`}, Query{Text: "x"}, "Invalid query"},
		{"top-level error", &fakeEutils{searchBody: `{"error":"API key invalid"}`}, Query{Text: "x"}, "API key invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.f, testConfig())
			_, err := c.Search(context.Background(), tt.query)
			require.Error(t, err)

			re, ok := AsRetrievalError(err)
			require.True(t, ok, "want *RetrievalError, got %T", err)
			assert.Equal(t, StageSearch, re.Stage)
			assert.Contains(t, re.Error(), tt.reason)
		})
	}
}

func TestSearchStatusErrorUnwraps(t *testing.T) {
	c := newTestClient(t, &fakeEutils{searchCode: http.StatusInternalServerError}, testConfig())
	_, err := c.Search(context.Background(), Query{Text: "x"})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "esearch.fcgi", se.Endpoint)
}

func TestFetchMedline(t *testing.T) {
	f := &fakeEutils{fetchBody: medlineFixture}
	c := newTestClient(t, f, testConfig())

	raw, err := c.FetchMedline(context.Background(), []string{"111", "222"})
	require.NoError(t, err)
	assert.Equal(t, medlineFixture, raw)

	require.Len(t, f.fetches, 1)
	assert.Equal(t, "111,222", f.fetches[0].Get("id"))
	assert.Equal(t, "medline", f.fetches[0].Get("rettype"))
	assert.Equal(t, "text", f.fetches[0].Get("retmode"))
}

func TestFetchMedlineNoIDs(t *testing.T) {
	f := &fakeEutils{}
	c := newTestClient(t, f, testConfig())

	raw, err := c.FetchMedline(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, raw)
	assert.Empty(t, f.fetches)
}

// --- Fetch ---

func TestFetchParsesAndClassifies(t *testing.T) {
	f := &fakeEutils{ids: []string{"111", "222"}, fetchBody: medlineFixture}
	c := newTestClient(t, f, testConfig())

	res := c.Fetch(context.Background(), Query{Text: "enzymes"}, classify.New(types.ClassifierConfig{}))
	require.True(t, res.OK(), "unexpected error: %v", res.Err)
	require.Len(t, res.Records, 2)

	first := res.Records[0]
	assert.Equal(t, "111", first.ID)
	assert.Equal(t, []string{"Novozymes Biotech Inc., Davis, CA"}, first.CompanyAffiliations)
	assert.Equal(t, "kim.lee@example.com", first.CorrespondingEmail)

	second := res.Records[1]
	assert.Equal(t, "222", second.ID)
	assert.Empty(t, second.CompanyAffiliations)
	assert.Equal(t, "enzymes", res.Query.Text)
}

func TestFetchNoResultsIsOK(t *testing.T) {
	f := &fakeEutils{}
	c := newTestClient(t, f, testConfig())

	res := c.Fetch(context.Background(), Query{Text: "nothing matches"}, classify.New(types.ClassifierConfig{}))
	assert.True(t, res.OK())
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Empty(t, f.fetches, "efetch should not run without ids")
}

func TestFetchFailureIsDistinctFromEmpty(t *testing.T) {
	f := &fakeEutils{ids: []string{"111"}, fetchCode: http.StatusServiceUnavailable}
	c := newTestClient(t, f, testConfig())

	res := c.Fetch(context.Background(), Query{Text: "enzymes"}, classify.New(types.ClassifierConfig{}))
	require.False(t, res.OK())

	re, ok := AsRetrievalError(res.Err)
	require.True(t, ok)
	assert.Equal(t, StageFetch, re.Stage)
	assert.Empty(t, res.RecordsOrEmpty())
	assert.NotNil(t, res.RecordsOrEmpty())
	// 1 initial + 1 retry.
	assert.Len(t, f.fetches, 2)
}

func TestFetchContextCancelled(t *testing.T) {
	f := &fakeEutils{ids: []string{"111"}}
	c := newTestClient(t, f, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Fetch(ctx, Query{Text: "x"}, classify.New(types.ClassifierConfig{}))
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

// --- FetchAll ---

type stubFetcher struct {
	inFlight, peak atomic.Int32
	fail           map[string]bool
}

func (s *stubFetcher) Fetch(_ context.Context, q Query, _ medline.Classifier) Result {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	s.inFlight.Add(-1)

	if s.fail[q.Text] {
		return Result{Query: q, Err: &RetrievalError{Stage: StageSearch, Reason: "boom"}}
	}
	return Result{Query: q, Records: []types.PaperRecord{{ID: q.Text}}}
}

func TestFetchAllPreservesOrderAndLimit(t *testing.T) {
	s := &stubFetcher{fail: map[string]bool{"c": true}}
	queries := []Query{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}, {Text: "e"}}

	results := FetchAll(context.Background(), s, queries, nil, 2)
	require.Len(t, results, len(queries))
	for i, r := range results {
		assert.Equal(t, queries[i].Text, r.Query.Text)
	}
	assert.LessOrEqual(t, s.peak.Load(), int32(2))

	records, errs := Merge(results)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `query "c"`)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "b", "d", "e"}, ids)
}

func TestFetchAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := FetchAll(ctx, &stubFetcher{}, []Query{{Text: "a"}, {Text: "b"}}, nil, 0)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestFetchAllAgainstServer(t *testing.T) {
	f := &fakeEutils{ids: []string{"111", "222"}, fetchBody: medlineFixture, searchDelay: 2 * time.Millisecond}
	c := newTestClient(t, f, testConfig())

	results := FetchAll(context.Background(), c, []Query{{Text: "a"}, {Text: "b"}, {Text: "c"}}, classify.New(types.ClassifierConfig{}), 3)
	records, errs := Merge(results)
	assert.Empty(t, errs)
	assert.Len(t, records, 6)
	assert.Len(t, f.searches, 3)
}
