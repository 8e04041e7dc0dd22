package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pubmed-fetcher/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// FetchConfig holds settings for the PubMed retrieval adapter. It is built
// once at process start and passed by value into the client.
type FetchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Email is the contact address NCBI requires on every E-utilities call.
	Email string `json:"email" yaml:"email" mapstructure:"email"`

	// APIKey is an optional NCBI API key that raises the rate limit to 10 req/s.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Tool identifies this program to NCBI (default "pubmed-fetcher").
	Tool string `json:"tool" yaml:"tool" mapstructure:"tool"`

	// MaxResults is the retmax passed to esearch (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// RequestsPerSecond caps E-utilities traffic. Zero derives it from APIKey.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// MaxRetries is the number of retries on HTTP 429/503 (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// ClassifierConfig holds the non-academic keyword list. Keywords takes
// precedence over KeywordsFile; when both are empty the built-in list is used.
type ClassifierConfig struct {
	Keywords     []string `json:"keywords,omitempty" yaml:"keywords,omitempty" mapstructure:"keywords"`
	KeywordsFile string   `json:"keywords_file,omitempty" yaml:"keywords_file,omitempty" mapstructure:"keywords_file"`
}

// ExportFormat selects how records are rendered.
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"
	FormatJSON  ExportFormat = "json"
	FormatYAML  ExportFormat = "yaml"
	FormatTable ExportFormat = "table"

	// FormatCSL is CSL-YAML, the bibliography format read by Pandoc.
	FormatCSL ExportFormat = "csl"
)

// ExportConfig holds defaults for the fetch and parse commands' output.
type ExportConfig struct {
	// Format is the default output format when --format is not given.
	Format ExportFormat `json:"format" yaml:"format" mapstructure:"format"`
}

// StoreConfig holds settings for the SQLite run store.
type StoreConfig struct {
	// Dir is the directory holding pubmed.db.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr              string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// MaxResults is the retmax used by /search and /download (default 5).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// LogConfig selects the zap logger flavour.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `json:"development" yaml:"development" mapstructure:"development"`
}

// Config groups all sections read from pubmed-fetcher.yaml.
type Config struct {
	Fetch      FetchConfig      `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier" mapstructure:"classifier"`
	Export     ExportConfig     `json:"export" yaml:"export" mapstructure:"export"`
	Store      StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}
