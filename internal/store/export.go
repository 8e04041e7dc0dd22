// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

const exportFile = "export.yaml"

// Snapshot is the document written by ExportYAML.
type Snapshot struct {
	ExportedAt string              `yaml:"exported_at"`
	Runs       []Run               `yaml:"runs"`
	Records    []types.PaperRecord `yaml:"records"`
}

// ExportYAML writes the runs and the records matching f to path. An empty
// path writes <store dir>/export.yaml. It returns the path written.
func (s *Store) ExportYAML(ctx context.Context, path string, f RecordFilter) (string, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return "", fmt.Errorf("querying runs for export: %w", err)
	}
	if f.RunID != "" {
		filtered := []Run{}
		for _, r := range runs {
			if r.ID == f.RunID {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	records, err := s.Records(ctx, f)
	if err != nil {
		return "", fmt.Errorf("querying records for export: %w", err)
	}

	data, err := yaml.Marshal(Snapshot{
		ExportedAt: s.now().UTC().Format("2006-01-02T15:04:05Z"),
		Runs:       runs,
		Records:    records,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}

	if path == "" {
		path = filepath.Join(s.dir, exportFile)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
