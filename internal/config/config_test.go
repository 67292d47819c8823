package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	assert.Equal(t, 8480, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "chromem", cfg.Store.VectorProvider)
	assert.Equal(t, 384, cfg.Store.VectorSize)
	assert.Equal(t, 384, cfg.Embeddings.Dimension)
	assert.Equal(t, 0.7, cfg.Pipeline.CuratedThreshold)
	assert.Equal(t, 5, cfg.Pipeline.RetrievalK)
	assert.Equal(t, 3, cfg.Pipeline.MinCandidates)
	assert.Equal(t, 2, cfg.Pipeline.MinPositiveKeywords)
	assert.Equal(t, 10, cfg.Pipeline.MergeTolerance)
	assert.Equal(t, 20, cfg.Pipeline.NGramMinChars)
	assert.Equal(t, 50, cfg.Pipeline.SnippetContext)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "port",
		},
		{
			name:    "unknown vector provider",
			mutate:  func(c *Config) { c.Store.VectorProvider = "faiss" },
			wantErr: "vector provider",
		},
		{
			name: "dimension mismatch",
			mutate: func(c *Config) {
				c.Embeddings.Dimension = 768
			},
			wantErr: "does not match",
		},
		{
			name:    "curated threshold out of range",
			mutate:  func(c *Config) { c.Pipeline.CuratedThreshold = 1.5 },
			wantErr: "curated threshold",
		},
		{
			name: "ngram bounds inverted",
			mutate: func(c *Config) {
				c.Pipeline.NGramMinTokens = 12
			},
			wantErr: "ngram_min_tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			applyDefaults(&cfg)
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithFileReadsYAMLAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "answerd")
	require.NoError(t, os.MkdirAll(dir, 0700))

	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9000\npipeline:\n  retrieval_k: 7\n")
	require.NoError(t, os.WriteFile(path, content, 0600))

	t.Setenv("PIPELINE_MERGE_TOLERANCE", "4")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Pipeline.RetrievalK)
	assert.Equal(t, 4, cfg.Pipeline.MergeTolerance)
	// Untouched fields keep defaults
	assert.Equal(t, "chromem", cfg.Store.VectorProvider)
}

func TestLoadWithFileRejectsInsecurePermissions(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "answerd")
	require.NoError(t, os.MkdirAll(dir, 0700))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadWithFileRejectsPathOutsideAllowedDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	outside := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(outside, []byte(""), 0600))

	_, err := LoadWithFile(outside)
	require.Error(t, err)
}
