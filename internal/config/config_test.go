package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"ebi_email": "lab@example.org",
		"clustalo_base_url": "http://localhost:9000/clustalo",
		"fetch_retries": 0,
		"fetch_retry_delay": "500ms",
		"result_timeout": 90,
		"max_sequences": 50,
		"verbose": true
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "lab@example.org", cfg.EBIEmail)
	assert.Equal(t, "http://localhost:9000/clustalo", cfg.ClustalOmegaURL)
	require.NotNil(t, cfg.FetchRetries)
	assert.Equal(t, 0, *cfg.FetchRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.FetchRetryDelay.Std())
	assert.Equal(t, 90*time.Second, cfg.ResultTimeout.Std())
	assert.Equal(t, 50, cfg.MaxSequences)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
ebi_email: lab@example.org
rcsb_base_url: http://localhost:9000/rcsb
metadata_cache_ttl: 168h
status_timeout: 15
max_sequence_length: 5000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "lab@example.org", cfg.EBIEmail)
	assert.Equal(t, "http://localhost:9000/rcsb", cfg.RCSBURL)
	assert.Equal(t, 168*time.Hour, cfg.MetadataCacheTTL.Std())
	assert.Equal(t, 15*time.Second, cfg.StatusTimeout.Std())
	assert.Equal(t, 5000, cfg.MaxSequenceLength)
	assert.Nil(t, cfg.FetchRetries)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{ invalid json }`)

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yml", "poll_interval: soon\n")

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestFromEnv(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{
		"PORT":               "9090",
		"EBI_EMAIL":          "env@example.org",
		"FETCH_RETRIES":      "0",
		"FETCH_RETRY_DELAY":  "1s",
		"METADATA_CACHE_TTL": "not a duration",
		"MAX_SEQUENCES":      "12",
		"API_JWT_SECRET":     "0123456789abcdef",
		"VERBOSE":            "true",
	}))

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "env@example.org", cfg.EBIEmail)
	require.NotNil(t, cfg.FetchRetries)
	assert.Equal(t, 0, *cfg.FetchRetries)
	assert.Equal(t, time.Second, cfg.FetchRetryDelay.Std())
	assert.Zero(t, cfg.MetadataCacheTTL, "unparsable values are ignored")
	assert.Equal(t, 12, cfg.MaxSequences)
	assert.Equal(t, "0123456789abcdef", cfg.JWTSecret)
	assert.True(t, cfg.Verbose)
}

func TestFromEnv_Empty(t *testing.T) {
	cfg := FromEnv(envMap(nil))
	assert.Nil(t, cfg.FetchRetries)
	assert.Equal(t, DefaultFetchRetries, cfg.Retries())
	assert.Empty(t, cfg.EBIEmail)
}

func TestValidate_NegativeValues(t *testing.T) {
	negative := -1
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"retries", Config{FetchRetries: &negative}, "fetch_retries"},
		{"max sequences", Config{MaxSequences: -1}, "max_sequences"},
		{"single sequence", Config{MaxSequences: 1}, "max_sequences"},
		{"sequence length", Config{MaxSequenceLength: -5}, "max_sequence_length"},
		{"concurrency", Config{StructureConcurrency: -2}, "structure_concurrency"},
		{"timeout", Config{StatusTimeout: Duration(-time.Second)}, "status_timeout"},
		{"email", Config{EBIEmail: "nobody"}, "ebi_email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestMergeWithDefaults(t *testing.T) {
	zero := 0
	partial := Config{
		EBIEmail:     "custom@example.org",
		FetchRetries: &zero,
		MaxSequences: 10,
	}

	merged := partial.MergeWithDefaults(Default())

	// Custom values should be preserved
	assert.Equal(t, "custom@example.org", merged.EBIEmail)
	assert.Equal(t, 0, merged.Retries(), "explicit zero retries survive the merge")
	assert.Equal(t, 10, merged.MaxSequences)

	// Default values should fill in empty fields
	assert.Equal(t, DefaultPort, merged.Port)
	assert.Equal(t, DefaultMaxSequenceLength, merged.MaxSequenceLength)
	assert.Equal(t, DefaultSubmitTimeout, merged.SubmitTimeout.Std())
	assert.Equal(t, DefaultPollInterval, merged.PollInterval.Std())
}

func TestMergeWithDefaults_DoesNotAliasRetries(t *testing.T) {
	defaults := Default()
	merged := (&Config{}).MergeWithDefaults(defaults)
	*merged.FetchRetries = 7
	assert.Equal(t, DefaultFetchRetries, *defaults.FetchRetries)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
ebi_email: file@example.org
max_sequences: 20
`)
	t.Setenv("EBI_EMAIL", "env@example.org")
	t.Setenv("MAX_SEQUENCES", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env@example.org", cfg.EBIEmail, "environment wins over the file")
	assert.Equal(t, 20, cfg.MaxSequences, "file wins over defaults")
	assert.Equal(t, DefaultMaxSequenceLength, cfg.MaxSequenceLength)
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "config.json", `{"max_sequences": 1}`)
	t.Setenv("MAX_SEQUENCES", "")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_sequences")
}
