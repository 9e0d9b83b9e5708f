package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Research.MaxSteps)
	assert.Equal(t, 120000, cfg.Research.MaxTotalTokens)
	assert.False(t, cfg.Python.Enabled)
	assert.Equal(t, "python3", cfg.Python.Interpreter)
	assert.Equal(t, 3, cfg.Quality.MinFindings)
	assert.Equal(t, 0.5, cfg.Quality.MaxP2Ratio)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corawiki.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
research:
  max_steps: 5
python:
  enabled: true
  on_failure: skip
quality:
  min_references: 7
artifact:
  dir: /tmp/corawiki
`), 0o644))

	t.Setenv("CORAWIKI_MAX_STEPS", "6")
	t.Setenv("ARTIFACT_S3_BUCKET", "runs")
	t.Setenv("MINIO_ROOT_USER", "minio")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Research.MaxSteps)
	assert.True(t, cfg.Python.Enabled)
	assert.Equal(t, "skip", cfg.Python.OnFailure)
	assert.Equal(t, 7, cfg.Quality.MinReferences)
	assert.Equal(t, 3, cfg.Quality.MinFindings, "unset thresholds keep defaults")
	assert.Equal(t, "/tmp/corawiki", cfg.Artifact.Dir)
	assert.Equal(t, "runs", cfg.Artifact.S3.Bucket)
	assert.Equal(t, "minio", cfg.Artifact.S3.AccessKey)
	assert.False(t, cfg.Artifact.S3.Complete())
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("CORAWIKI_MAX_STEPS", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "CORAWIKI_MAX_STEPS")

	t.Setenv("CORAWIKI_MAX_STEPS", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "max_steps")

	t.Setenv("CORAWIKI_MAX_STEPS", "")
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("python:\n  on_failure: ask\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "on_failure")
}
