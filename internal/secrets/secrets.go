// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file is one secret: the filename is the key and the trimmed contents
// are the value.
//
// Recognized keys: entrez-email, ncbi-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-fetcher/pkg/types"
)

const (
	// KeyEntrezEmail holds the contact address sent to NCBI.
	KeyEntrezEmail = "entrez-email"

	// KeyNCBIAPIKey holds an optional NCBI API key.
	KeyNCBIAPIKey = "ncbi-api-key"
)

// Load reads every regular, non-hidden file in dir. A missing directory is
// not an error and yields an empty map. Unreadable files are logged and
// skipped. log may be nil.
func Load(dir string, log *zap.Logger) (map[string]string, error) {
	if log == nil {
		log = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// ApplyFetch fills empty credential fields of cfg from secrets. Values
// already set by flags, config, or environment are kept.
func ApplyFetch(cfg *types.FetchConfig, secrets map[string]string) {
	if cfg.Email == "" {
		cfg.Email = secrets[KeyEntrezEmail]
	}
	if cfg.APIKey == "" {
		cfg.APIKey = secrets[KeyNCBIAPIKey]
	}
}
