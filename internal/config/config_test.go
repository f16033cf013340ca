package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, "data", cfg.Storage.Root)
	assert.Equal(t, "imagen-3.0-generate-002", cfg.Generation.Model)
	assert.Equal(t, 3*time.Second, cfg.GetStagger())
	assert.Equal(t, 8, cfg.Workers.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: aws
storage:
  bucket: campaign-assets
queue:
  url: https://sqs.us-east-1.amazonaws.com/123/briefs
generation:
  model: imagen-4.0-generate-001
  stagger: 5s
workers:
  generator_function: adforge-generator
  variants_function: adforge-variants
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeAWS, cfg.Mode)
	assert.Equal(t, "campaign-assets", cfg.Storage.Bucket)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/briefs", cfg.Queue.URL)
	assert.Equal(t, "imagen-4.0-generate-001", cfg.Generation.Model)
	assert.Equal(t, 5*time.Second, cfg.GetStagger())
	assert.Equal(t, "adforge-generator", cfg.Workers.GeneratorFunction)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: local\nstorage:\n  root: filedir\n"), 0o644))

	t.Setenv("ADFORGE_MODE", "aws")
	t.Setenv("S3_BUCKET_NAME", "env-bucket")
	t.Setenv("ADFORGE_QUEUE_URL", "https://sqs.test/q")
	t.Setenv("IMAGE_MODEL_ID", "env-model")
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("ADFORGE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeAWS, cfg.Mode)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "https://sqs.test/q", cfg.Queue.URL)
	assert.Equal(t, "env-model", cfg.Generation.Model)
	assert.Equal(t, "env-key", cfg.Generation.APIKey)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "filedir", cfg.Storage.Root, "file value survives where no env override exists")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"local without root", func(c *Config) { c.Storage.Root = "" }, true},
		{"aws without bucket", func(c *Config) {
			c.Mode = ModeAWS
			c.Queue.URL = "https://sqs.test/q"
		}, true},
		{"aws without queue", func(c *Config) {
			c.Mode = ModeAWS
			c.Storage.Bucket = "b"
		}, true},
		{"aws complete", func(c *Config) {
			c.Mode = ModeAWS
			c.Storage.Bucket = "b"
			c.Queue.URL = "https://sqs.test/q"
		}, false},
		{"unknown mode", func(c *Config) { c.Mode = "hybrid" }, true},
		{"missing model", func(c *Config) { c.Generation.Model = "" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetStagger_FallsBackOnBadValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generation.Stagger = "soon"
	assert.Equal(t, 3*time.Second, cfg.GetStagger())

	cfg.Generation.Stagger = "-2s"
	assert.Equal(t, 3*time.Second, cfg.GetStagger())

	cfg.Generation.Stagger = "0s"
	assert.Equal(t, time.Duration(0), cfg.GetStagger())
}
