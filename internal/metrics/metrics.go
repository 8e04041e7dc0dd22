// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus instrumentation for retrieval and parsing.
package metrics

import (

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pdiddy/pubmed-fetcher/internal/pubmed"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

// Metrics holds the application's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Parsed records, and the subset with a company affiliation.
	Records        prometheus.Counter
	CompanyRecords prometheus.Counter

	// Retrieval failures by E-utilities stage.
	RetrievalErrors *prometheus.CounterVec

	// End-to-end fetch latency (esearch + efetch + parse).
	FetchDuration prometheus.Histogram
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Records: f.NewCounter(prometheus.CounterOpts{
			Name: "pubmed_fetcher_records_total",
			Help: "Total number of MEDLINE records parsed",
		}),
		CompanyRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "pubmed_fetcher_company_records_total",
			Help: "Total number of parsed records with at least one non-academic affiliation",
		}),
		RetrievalErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pubmed_fetcher_retrieval_errors_total",
			Help: "Total number of failed PubMed retrievals by stage",
		}, []string{"stage"}), // stage: "search", "fetch", "unknown"
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pubmed_fetcher_fetch_duration_seconds",
			Help:    "Duration of a full PubMed fetch including parsing",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveRecords counts parsed records.
func (m *Metrics) ObserveRecords(records []types.PaperRecord) {
	if m == nil {
		return
	}
	m.Records.Add(float64(len(records)))
	for _, r := range records {
		if r.HasCompanyAffiliation() {
			m.CompanyRecords.Inc()
		}
	}
}

// ObserveResult records latency and either the records or the failure stage.
func (m *Metrics) ObserveResult(res pubmed.Result) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(res.Elapsed.Seconds())
	if res.Err != nil {
		stage := "unknown"
		if re, ok := pubmed.AsRetrievalError(res.Err); ok {
			stage = string(re.Stage)
		}
		m.RetrievalErrors.WithLabelValues(stage).Inc()
		return
	}
	m.ObserveRecords(res.Records)
}
