package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"OUTPUT_DEFAULT_NAME", "BLOB_BACKEND", "BLOB_TTL", "PORT", "PREVIEW_DPI", "SESSION_IDLE_TIMEOUT", "MERGE_MAX_INFLIGHT", "WEB_LOGIN_TTL", "AXIOM_BATCH_SIZE", "AXIOM_BUFFER"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()

	assert.Equal(t, "merged.pdf", cfg.Output.DefaultName)
	assert.Equal(t, "memory", cfg.Blob.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Blob.TTL)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 36, cfg.Preview.DPI)
	assert.Equal(t, time.Hour, cfg.Session.IdleTimeout)
	assert.Equal(t, 4, cfg.Merge.MaxInflight)
	assert.Equal(t, 12*time.Hour, cfg.Web.LoginTTL)
	assert.Equal(t, 200, cfg.Axiom.BatchSize)
	assert.Equal(t, 1000, cfg.Axiom.Buffer)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("OUTPUT_DEFAULT_NAME", "combined.pdf")
	t.Setenv("BLOB_BACKEND", "REDIS")
	t.Setenv("BLOB_TTL", "30s")
	t.Setenv("MAX_UPLOAD_MB", "8")
	t.Setenv("EXPORT_SAVE_COPY", "yes")
	t.Setenv("PREVIEW_DPI", "-4")
	t.Setenv("AXIOM_DATASET", "prod")

	cfg := FromEnv()

	assert.Equal(t, "combined.pdf", cfg.Output.DefaultName)
	assert.Equal(t, "redis", cfg.Blob.Backend)
	assert.Equal(t, 30*time.Second, cfg.Blob.TTL)
	assert.Equal(t, int64(8), cfg.HTTP.MaxUploadMB)
	assert.True(t, cfg.Output.SaveCopy)
	assert.Equal(t, 36, cfg.Preview.DPI)
	assert.Equal(t, "prod_pdfmerger", cfg.Axiom.Dataset)
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("BLOB_TTL", "soon")
	t.Setenv("MAX_UPLOAD_MB", "lots")

	cfg := FromEnv()

	assert.Equal(t, 5*time.Minute, cfg.Blob.TTL)
	assert.Equal(t, int64(64), cfg.HTTP.MaxUploadMB)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PDFMERGER_DOTENV_CHECK=from-file\n"), 0o644))
	t.Setenv("DOTENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("PDFMERGER_DOTENV_CHECK") })

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "from-file", os.Getenv("PDFMERGER_DOTENV_CHECK"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	t.Setenv("DOTENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, LoadDotEnv())
}
