package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendBrowser, cfg.Scraper.Backend)
	assert.Equal(t, "https://www.amazon.in", cfg.Scraper.BaseURL)
	assert.Equal(t, 5, cfg.Scraper.BatchSize)
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Scraper.RetryDelay)
	assert.Equal(t, 5, cfg.Scraper.ImagesPerRow)

	ranges := cfg.Pacing.Ranges()
	assert.Equal(t, 10*time.Second, ranges.Item.Min)
	assert.Equal(t, 20*time.Second, ranges.Item.Max)
	assert.Equal(t, 30*time.Second, ranges.Batch.Min)
	assert.Equal(t, 60*time.Second, ranges.Batch.Max)

	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Minio.Enabled())
	assert.False(t, cfg.Database.ArchiveEnabled)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
}

func TestLoad_LLMBackendDefaultsToLargerBatches(t *testing.T) {
	t.Setenv("SCRAPER_BACKEND", "LLM")
	t.Setenv("OPENAI_API_KEY", "dummy")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendLLM, cfg.Scraper.Backend)
	assert.Equal(t, 10, cfg.Scraper.BatchSize)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PACING_ITEM_MIN=1s\nPACING_ITEM_MAX=2s\nCORS_ALLOWED_ORIGINS=http://a.test, http://b.test\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PACING_ITEM_MIN")
		os.Unsetenv("PACING_ITEM_MAX")
		os.Unsetenv("CORS_ALLOWED_ORIGINS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Pacing.ItemMin)
	assert.Equal(t, 2*time.Second, cfg.Pacing.ItemMax)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown backend",
			env:     map[string]string{"SCRAPER_BACKEND": "carrier-pigeon"},
			wantErr: "unknown SCRAPER_BACKEND",
		},
		{
			name:    "llm without key",
			env:     map[string]string{"SCRAPER_BACKEND": "llm"},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "inverted item range",
			env:     map[string]string{"PACING_ITEM_MIN": "30s", "PACING_ITEM_MAX": "10s"},
			wantErr: "item pacing",
		},
		{
			name:    "zero batch size",
			env:     map[string]string{"SCRAPER_BATCH_SIZE": "0"},
			wantErr: "SCRAPER_BATCH_SIZE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			require.NoError(t, err)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
