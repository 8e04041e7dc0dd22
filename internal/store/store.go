// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists fetch runs and their parsed records in SQLite.
//
// Each saved run gets a UUID. Papers are keyed by PMID and upserted, so a
// paper seen by a later run moves to that run. Records without a PMID are
// kept under a synthetic key and read back with an empty ID.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-fetcher/internal/pubmed"
	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

const (
	dbFile       = "pubmed.db"
	syntheticKey = "run:"

	// timeLayout is fixed-width so runs.created_at sorts as text in time
	// order. RFC3339Nano trims trailing zeros and does not.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store manages the run database.
type Store struct {
	db    *sql.DB
	dir   string
	fts   bool
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Run describes one saved fetch.
type Run struct {
	ID          string    `json:"id" yaml:"id"`
	Query       string    `json:"query" yaml:"query"`
	FromYear    int       `json:"from_year,omitempty" yaml:"from_year,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	RecordCount int       `json:"record_count" yaml:"record_count"`
}

// RecordFilter narrows Records. The zero value returns everything.
type RecordFilter struct {
	RunID       string
	CompanyOnly bool

	// Title is a full-text phrase matched against paper titles.
	Title string

	// Limit caps the result count. Zero means no limit.
	Limit int
}

// Open opens or creates <cfg.Dir>/pubmed.db and its schema.
func Open(cfg types.StoreConfig, opts ...Option) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:    db,
		dir:   dir,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// FullText reports whether title search uses FTS5.
func (s *Store) FullText() bool { return s.fts }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			from_year INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			record_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			pmid TEXT PRIMARY KEY,
			title TEXT,
			publication_date TEXT,
			authors TEXT,
			affiliations TEXT,
			company_affiliations TEXT,
			email TEXT,
			has_company INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			run_id TEXT NOT NULL REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_run_id ON papers(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='papers_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		s.fts = true
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE papers_fts USING fts5(title, content=papers, content_rowid=rowid)`,
		`CREATE TRIGGER papers_ai AFTER INSERT ON papers BEGIN
			INSERT INTO papers_fts(rowid, title) VALUES (new.rowid, new.title);
		END`,
		`CREATE TRIGGER papers_ad AFTER DELETE ON papers BEGIN
			INSERT INTO papers_fts(papers_fts, rowid, title) VALUES('delete', old.rowid, old.title);
		END`,
		`CREATE TRIGGER papers_au AFTER UPDATE ON papers BEGIN
			INSERT INTO papers_fts(papers_fts, rowid, title) VALUES('delete', old.rowid, old.title);
			INSERT INTO papers_fts(rowid, title) VALUES (new.rowid, new.title);
		END`,
	}

	// The driver only ships FTS5 when built with -tags sqlite_fts5.
	if _, err := s.db.Exec(ftsStatements[0]); err != nil {
		s.log.Warn("full-text search unavailable, title filter uses LIKE", zap.Error(err))
		return nil
	}
	for _, stmt := range ftsStatements[1:] {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	s.fts = true
	return nil
}

// SaveRun stores records under a new run for q and returns the run ID.
func (s *Store) SaveRun(ctx context.Context, q pubmed.Query, records []types.PaperRecord) (string, error) {
	runID := s.newID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, query, from_year, created_at, record_count) VALUES (?, ?, ?, ?, ?)`,
		runID, q.Text, q.FromYear, s.now().UTC().Format(timeLayout), len(records),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (pmid, title, publication_date, authors, affiliations,
			company_affiliations, email, has_company, position, run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pmid) DO UPDATE SET
			title=excluded.title, publication_date=excluded.publication_date,
			authors=excluded.authors, affiliations=excluded.affiliations,
			company_affiliations=excluded.company_affiliations, email=excluded.email,
			has_company=excluded.has_company, position=excluded.position,
			run_id=excluded.run_id`)
	if err != nil {
		return "", fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		key := r.ID
		if key == "" {
			key = fmt.Sprintf("%s%s:%d", syntheticKey, runID, i)
		}
		_, err := stmt.ExecContext(ctx,
			key, r.Title, r.PublicationDate,
			encodeList(r.Authors), encodeList(r.Affiliations), encodeList(r.CompanyAffiliations),
			r.CorrespondingEmail, boolInt(r.HasCompanyAffiliation()), i, runID,
		)
		if err != nil {
			return "", fmt.Errorf("upserting paper %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}
	s.log.Info("saved run",
		zap.String("run_id", runID),
		zap.String("query", q.Text),
		zap.Int("records", len(records)),
	)
	return runID, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, from_year, created_at, record_count FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r       Run
			created string
		)
		if err := rows.Scan(&r.ID, &r.Query, &r.FromYear, &created, &r.RecordCount); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("run %s has bad timestamp %q: %w", r.ID, created, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Records returns stored papers matching f, oldest run first and in the
// order each run received them.
func (s *Store) Records(ctx context.Context, f RecordFilter) ([]types.PaperRecord, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(
		`SELECT p.pmid, p.title, p.publication_date, p.authors, p.affiliations,
			p.company_affiliations, p.email
		FROM papers p
		JOIN runs r ON r.id = p.run_id
		WHERE 1=1`)

	if f.RunID != "" {
		qb.WriteString(` AND p.run_id = ?`)
		args = append(args, f.RunID)
	}
	if f.CompanyOnly {
		qb.WriteString(` AND p.has_company = 1`)
	}
	if title := strings.TrimSpace(f.Title); title != "" {
		if s.fts {
			qb.WriteString(` AND p.rowid IN (SELECT rowid FROM papers_fts WHERE papers_fts MATCH ?)`)
			args = append(args, phrase(title))
		} else {
			qb.WriteString(` AND p.title LIKE ? ESCAPE '\'`)
			args = append(args, "%"+likeEscape(title)+"%")
		}
	}

	qb.WriteString(` ORDER BY r.created_at, p.run_id, p.position`)
	if f.Limit > 0 {
		qb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	records := []types.PaperRecord{}
	for rows.Next() {
		var r types.PaperRecord
		var title, date, email, authors, affiliations, company sql.NullString
		if err := rows.Scan(&r.ID, &title, &date, &authors, &affiliations, &company, &email); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		if strings.HasPrefix(r.ID, syntheticKey) {
			r.ID = ""
		}
		r.Title = title.String
		r.PublicationDate = date.String
		r.CorrespondingEmail = email.String
		r.Authors = decodeList(authors)
		r.Affiliations = decodeList(affiliations)
		r.CompanyAffiliations = decodeList(company)
		records = append(records, r)
	}
	return records, rows.Err()
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeList(v sql.NullString) []string {
	out := []string{}
	if v.Valid && v.String != "" {
		json.Unmarshal([]byte(v.String), &out)
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// phrase quotes s as a single FTS5 phrase so user input cannot inject
// query syntax.
func phrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
