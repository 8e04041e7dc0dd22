// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed retrieves MEDLINE records from NCBI E-utilities and hands
// the raw text to the medline parser.
//
// A fetch is two calls: esearch resolves a query to PMIDs and efetch returns
// those records in MEDLINE text format. Both are rate-limited per NCBI policy
// (3 req/s, or 10 req/s with an API key) and retried on 429/502/503.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pubmed-fetcher/internal/httputil"
	"github.com/pdiddy/pubmed-fetcher/internal/medline"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// DefaultBaseURL is the E-utilities endpoint root.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const (
	defaultTool       = "pubmed-fetcher"
	defaultMaxResults = 5
	defaultTimeout    = 30 * time.Second

	// NCBI allows 3 requests per second without a key, 10 with one.
	anonymousRate = 3.0
	keyedRate     = 10.0
)

// Client is a rate-limited E-utilities client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	cfg        types.FetchConfig
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different E-utilities root (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger used for request and retry events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithLimiter replaces the default NCBI rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a client from cfg. cfg is copied; later changes to the
// caller's value have no effect.
func NewClient(cfg types.FetchConfig, opts ...Option) *Client {
	if cfg.Tool == "" {
		cfg.Tool = defaultTool
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = anonymousRate
		if cfg.APIKey != "" {
			rps = keyedRate
		}
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    DefaultBaseURL,
		cfg:        cfg,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query is a PubMed search.
type Query struct {
	// Text is the PubMed search expression.
	Text string `json:"query" yaml:"query"`

	// FromYear restricts results to publication dates from that year on.
	// Zero disables the filter.
	FromYear int `json:"from_year,omitempty" yaml:"from_year,omitempty"`

	// MaxResults overrides the client's retmax when positive.
	MaxResults int `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

// Term renders the esearch term, appending a PDAT range for FromYear.
func (q Query) Term() string {
	term := strings.TrimSpace(q.Text)
	if q.FromYear > 0 {
		term = fmt.Sprintf("%s AND (%d[PDAT] : 3000[PDAT])", term, q.FromYear)
	}
	return term
}

// Search runs esearch and returns the matching PMIDs in relevance order.
func (c *Client) Search(ctx context.Context, q Query) ([]string, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, &RetrievalError{Stage: StageSearch, Reason: "query is empty"}
	}

	retmax := c.cfg.MaxResults
	if q.MaxResults > 0 {
		retmax = q.MaxResults
	}

	params := c.params()
	params.Set("term", q.Term())
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(retmax))

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, &RetrievalError{Stage: StageSearch, Reason: "esearch request failed", Err: err}
	}

	var esr esearchResponse
	if err := json.Unmarshal(body, &esr); err != nil {
		return nil, &RetrievalError{Stage: StageSearch, Reason: "parsing esearch response", Err: err}
	}
	if esr.Error != "" {
		return nil, &RetrievalError{Stage: StageSearch, Reason: esr.Error}
	}
	if esr.Result.Error != "" {
		return nil, &RetrievalError{Stage: StageSearch, Reason: esr.Result.Error}
	}

	c.log.Debug("esearch complete",
		zap.String("term", q.Term()),
		zap.String("count", esr.Result.Count),
		zap.Int("ids", len(esr.Result.IDList)),
	)
	return esr.Result.IDList, nil
}

// FetchMedline runs efetch for ids and returns the MEDLINE text.
func (c *Client) FetchMedline(ctx context.Context, ids []string) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}

	params := c.params()
	params.Set("id", strings.Join(ids, ","))
	params.Set("rettype", "medline")
	params.Set("retmode", "text")

	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return "", &RetrievalError{Stage: StageFetch, Reason: "efetch request failed", Err: err}
	}
	return string(body), nil
}

// Fetch searches, downloads, and parses. A query that legitimately matches
// nothing is a successful Result with no records; any failure sets Err to a
// *RetrievalError.
func (c *Client) Fetch(ctx context.Context, q Query, cl medline.Classifier) Result {
	start := time.Now()
	res := Result{Query: q}

	ids, err := c.Search(ctx, q)
	if err != nil {
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}
	if len(ids) == 0 {
		c.log.Info("no papers found", zap.String("query", q.Text))
		res.Records = []types.PaperRecord{}
		res.Elapsed = time.Since(start)
		return res
	}

	raw, err := c.FetchMedline(ctx, ids)
	if err != nil {
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}

	res.Records = medline.Parse(raw, cl)
	res.Elapsed = time.Since(start)
	c.log.Info("fetched papers",
		zap.String("query", q.Text),
		zap.Int("from_year", q.FromYear),
		zap.Int("records", len(res.Records)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res
}

func (c *Client) params() url.Values {
	v := url.Values{
		"db":   {"pubmed"},
		"tool": {c.cfg.Tool},
	}
	if c.cfg.Email != "" {
		v.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		v.Set("api_key", c.cfg.APIKey)
	}
	return v
}

// get issues the request with retry, waiting for the limiter before every
// attempt, and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, c.httpClient, req, c.cfg.MaxRetries, c.log, httputil.WithLimiter(c.limiter))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}
	return body, nil
}

// esearch JSON structures.
type esearchResponse struct {
	Result esearchResult `json:"esearchresult"`
	Error  string        `json:"error"`
}

type esearchResult struct {
	Count  string   `json:"count"`
	RetMax string   `json:"retmax"`
	IDList []string `json:"idlist"`
	Error  string   `json:"ERROR"`
}
