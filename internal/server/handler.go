// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-fetcher/internal/export"
	"github.com/pdiddy/pubmed-fetcher/internal/medline"
	"github.com/pdiddy/pubmed-fetcher/internal/metrics"
	"github.com/pdiddy/pubmed-fetcher/internal/pubmed"
)

const (
	errQueryRequired = "Query parameter is required"
	errBadYear       = "year must be a positive integer"
	downloadName     = "output.csv"
)

// Handler serves the search and download endpoints.
type Handler struct {
	fetcher    pubmed.Fetcher
	classifier medline.Classifier
	log        *zap.Logger
	metrics    *metrics.Metrics
	maxResults int
}

// NewHandler builds a Handler. log and m may be nil.
func NewHandler(fetcher pubmed.Fetcher, classifier medline.Classifier, log *zap.Logger, m *metrics.Metrics, maxResults int) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		fetcher:    fetcher,
		classifier: classifier,
		log:        log,
		metrics:    m,
		maxResults: maxResults,
	}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/search", h.HandleSearch)
	r.Get("/download", h.HandleDownload)
	r.Get("/healthz", h.HandleHealth)
}

// HandleSearch handles GET /search and responds with the records as JSON.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	res, ok := h.fetch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.RecordsOrEmpty())
}

// HandleDownload handles GET /download and responds with a CSV attachment.
// The document is rendered in memory so concurrent requests never share a
// file.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	res, ok := h.fetch(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, res.RecordsOrEmpty()); err != nil {
		h.log.Error("rendering csv", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
		writeError(w, http.StatusInternalServerError, "rendering csv failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fetch validates the query parameters and runs the retrieval. On failure it
// has already written the response and returns false.
func (h *Handler) fetch(w http.ResponseWriter, r *http.Request) (pubmed.Result, bool) {
	ctx := r.Context()
	params := r.URL.Query()

	text := strings.TrimSpace(params.Get("query"))
	if text == "" {
		writeError(w, http.StatusBadRequest, errQueryRequired)
		return pubmed.Result{}, false
	}

	q := pubmed.Query{Text: text, MaxResults: h.maxResults}
	if raw := strings.TrimSpace(params.Get("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year <= 0 {
			writeError(w, http.StatusBadRequest, errBadYear)
			return pubmed.Result{}, false
		}
		q.FromYear = year
	}

	res := h.fetcher.Fetch(ctx, q, h.classifier)
	h.metrics.ObserveResult(res)
	if res.Err != nil {
		h.log.Error("retrieval failed",
			zap.String("request_id", middleware.GetReqID(ctx)),
			zap.String("query", q.Text),
			zap.Int("from_year", q.FromYear),
			zap.Error(res.Err),
		)
		writeError(w, http.StatusBadGateway, res.Err.Error())
		return pubmed.Result{}, false
	}

	h.log.Info("query served",
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.String("query", q.Text),
		zap.Int("records", len(res.Records)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
