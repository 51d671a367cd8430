// Package config provides configuration loading and validation for the CLI and server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults used when neither the config file nor the environment set a value.
const (
	DefaultPort                 = "8080"
	DefaultEBIEmail             = "bioview@example.org"
	DefaultFetchRetries         = 2
	DefaultFetchRetryDelay      = 2 * time.Second
	DefaultSubmitTimeout        = 20 * time.Second
	DefaultStatusTimeout        = 10 * time.Second
	DefaultResultTimeout        = 60 * time.Second
	DefaultMaxSequences         = 100
	DefaultMaxSequenceLength    = 20000
	DefaultMetadataCacheTTL     = 24 * time.Hour
	DefaultStructureConcurrency = 4
	DefaultPollInterval         = 5 * time.Second
)

// Duration is a time.Duration that reads "90s" style strings from JSON and YAML.
// Bare JSON numbers are taken as seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON writes the duration in its string form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "1m30s" or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return parsed, nil
}

// Config holds the settings shared by the CLI and the HTTP server. It can be loaded
// from a JSON or YAML file; unset fields fall back to the environment and then to
// the package defaults.
type Config struct {
	// Server
	Port      string `json:"port,omitempty" yaml:"port,omitempty"`
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`

	// EBI job dispatcher
	EBIEmail           string `json:"ebi_email,omitempty" yaml:"ebi_email,omitempty"`
	ClustalOmegaURL    string `json:"clustalo_base_url,omitempty" yaml:"clustalo_base_url,omitempty"`
	SimplePhylogenyURL string `json:"simple_phylogeny_base_url,omitempty" yaml:"simple_phylogeny_base_url,omitempty"`

	// Structure sources
	RCSBURL      string `json:"rcsb_base_url,omitempty" yaml:"rcsb_base_url,omitempty"`
	AlphaFoldURL string `json:"alphafold_base_url,omitempty" yaml:"alphafold_base_url,omitempty"`
	DownloadURL  string `json:"download_base_url,omitempty" yaml:"download_base_url,omitempty"`

	// Outbound requests
	FetchRetries    *int     `json:"fetch_retries,omitempty" yaml:"fetch_retries,omitempty"`
	FetchRetryDelay Duration `json:"fetch_retry_delay,omitempty" yaml:"fetch_retry_delay,omitempty"`
	SubmitTimeout   Duration `json:"submit_timeout,omitempty" yaml:"submit_timeout,omitempty"`
	StatusTimeout   Duration `json:"status_timeout,omitempty" yaml:"status_timeout,omitempty"`
	ResultTimeout   Duration `json:"result_timeout,omitempty" yaml:"result_timeout,omitempty"`

	// Limits
	MaxSequences         int `json:"max_sequences,omitempty" yaml:"max_sequences,omitempty"`
	MaxSequenceLength    int `json:"max_sequence_length,omitempty" yaml:"max_sequence_length,omitempty"`
	StructureConcurrency int `json:"structure_concurrency,omitempty" yaml:"structure_concurrency,omitempty"`

	// Storage
	DatabaseURL      string   `json:"database_url,omitempty" yaml:"database_url,omitempty"`
	MetadataCacheTTL Duration `json:"metadata_cache_ttl,omitempty" yaml:"metadata_cache_ttl,omitempty"`

	// Behavior
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	Verbose      bool     `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	retries := DefaultFetchRetries
	return Config{
		Port:                 DefaultPort,
		EBIEmail:             DefaultEBIEmail,
		FetchRetries:         &retries,
		FetchRetryDelay:      Duration(DefaultFetchRetryDelay),
		SubmitTimeout:        Duration(DefaultSubmitTimeout),
		StatusTimeout:        Duration(DefaultStatusTimeout),
		ResultTimeout:        Duration(DefaultResultTimeout),
		MaxSequences:         DefaultMaxSequences,
		MaxSequenceLength:    DefaultMaxSequenceLength,
		StructureConcurrency: DefaultStructureConcurrency,
		MetadataCacheTTL:     Duration(DefaultMetadataCacheTTL),
		PollInterval:         Duration(DefaultPollInterval),
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// FromEnv reads the configuration from environment variables through getenv.
// Variables that are unset or unparsable leave the field empty.
func FromEnv(getenv func(string) string) Config {
	var cfg Config
	cfg.Port = getenv("PORT")
	cfg.JWTSecret = getenv("API_JWT_SECRET")
	cfg.EBIEmail = getenv("EBI_EMAIL")
	cfg.ClustalOmegaURL = getenv("CLUSTALO_BASE_URL")
	cfg.SimplePhylogenyURL = getenv("SIMPLE_PHYLOGENY_BASE_URL")
	cfg.RCSBURL = getenv("RCSB_BASE_URL")
	cfg.AlphaFoldURL = getenv("ALPHAFOLD_BASE_URL")
	cfg.DownloadURL = getenv("RCSB_DOWNLOAD_URL")
	cfg.DatabaseURL = getenv("DATABASE_URL")

	if v := getenv("FETCH_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchRetries = &n
		}
	}
	cfg.FetchRetryDelay = envDuration(getenv, "FETCH_RETRY_DELAY")
	cfg.MetadataCacheTTL = envDuration(getenv, "METADATA_CACHE_TTL")
	cfg.PollInterval = envDuration(getenv, "POLL_INTERVAL")
	cfg.MaxSequences = envInt(getenv, "MAX_SEQUENCES")
	cfg.MaxSequenceLength = envInt(getenv, "MAX_SEQUENCE_LENGTH")

	if v, err := strconv.ParseBool(getenv("VERBOSE")); err == nil {
		cfg.Verbose = v
	}
	return cfg
}

func envDuration(getenv func(string) string, key string) Duration {
	d, err := parseDuration(getenv(key))
	if err != nil {
		return 0
	}
	return Duration(d)
}

func envInt(getenv func(string) string, key string) int {
	n, err := strconv.Atoi(getenv(key))
	if err != nil {
		return 0
	}
	return n
}

// Load resolves the effective configuration: environment first, then the file at
// path (if any), then defaults.
func Load(path string) (*Config, error) {
	cfg := FromEnv(os.Getenv)
	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = cfg.MergeWithDefaults(*fileCfg)
	}
	cfg = cfg.MergeWithDefaults(Default())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.FetchRetries != nil && *c.FetchRetries < 0 {
		return fmt.Errorf("config error: 'fetch_retries' must be non-negative")
	}
	if c.MaxSequences < 0 {
		return fmt.Errorf("config error: 'max_sequences' must be non-negative")
	}
	if c.MaxSequences > 0 && c.MaxSequences < 2 {
		return fmt.Errorf("config error: 'max_sequences' must be at least 2")
	}
	if c.MaxSequenceLength < 0 {
		return fmt.Errorf("config error: 'max_sequence_length' must be non-negative")
	}
	if c.StructureConcurrency < 0 {
		return fmt.Errorf("config error: 'structure_concurrency' must be non-negative")
	}

	durations := map[string]Duration{
		"fetch_retry_delay":  c.FetchRetryDelay,
		"submit_timeout":     c.SubmitTimeout,
		"status_timeout":     c.StatusTimeout,
		"result_timeout":     c.ResultTimeout,
		"metadata_cache_ttl": c.MetadataCacheTTL,
		"poll_interval":      c.PollInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("config error: '%s' must be non-negative", name)
		}
	}

	if c.EBIEmail != "" && !strings.Contains(c.EBIEmail, "@") {
		return fmt.Errorf("config error: 'ebi_email' is not an email address: %s", c.EBIEmail)
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	mergeString(&result.Port, defaults.Port)
	mergeString(&result.JWTSecret, defaults.JWTSecret)
	mergeString(&result.EBIEmail, defaults.EBIEmail)
	mergeString(&result.ClustalOmegaURL, defaults.ClustalOmegaURL)
	mergeString(&result.SimplePhylogenyURL, defaults.SimplePhylogenyURL)
	mergeString(&result.RCSBURL, defaults.RCSBURL)
	mergeString(&result.AlphaFoldURL, defaults.AlphaFoldURL)
	mergeString(&result.DownloadURL, defaults.DownloadURL)
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)

	// Retries keep an explicit zero
	if result.FetchRetries == nil && defaults.FetchRetries != nil {
		n := *defaults.FetchRetries
		result.FetchRetries = &n
	}

	// Int and duration fields: use default if zero
	if result.MaxSequences == 0 {
		result.MaxSequences = defaults.MaxSequences
	}
	if result.MaxSequenceLength == 0 {
		result.MaxSequenceLength = defaults.MaxSequenceLength
	}
	if result.StructureConcurrency == 0 {
		result.StructureConcurrency = defaults.StructureConcurrency
	}
	mergeDuration(&result.FetchRetryDelay, defaults.FetchRetryDelay)
	mergeDuration(&result.SubmitTimeout, defaults.SubmitTimeout)
	mergeDuration(&result.StatusTimeout, defaults.StatusTimeout)
	mergeDuration(&result.ResultTimeout, defaults.ResultTimeout)
	mergeDuration(&result.MetadataCacheTTL, defaults.MetadataCacheTTL)
	mergeDuration(&result.PollInterval, defaults.PollInterval)

	// Bool fields: cannot distinguish unset from false, so either side turns it on
	result.Verbose = result.Verbose || defaults.Verbose

	return result
}

// Retries returns the configured retry count, or the default when unset.
func (c *Config) Retries() int {
	if c.FetchRetries == nil {
		return DefaultFetchRetries
	}
	return *c.FetchRetries
}

func mergeString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func mergeDuration(dst *Duration, def Duration) {
	if *dst == 0 {
		*dst = def
	}
}
