package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")

	path := writeConfig(t, `
default_provider: openai
system_prompt: "You are a helpful assistant."
providers:
  - name: openai
    type: openai
    api_key: ${TEST_OPENAI_KEY}
    model: gpt-4o-mini
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, "sk-from-env", p.APIKey)
	assert.True(t, p.Configured())
	assert.Equal(t, DefaultTemperature, p.Temperature)
	assert.Equal(t, DefaultMaxTokens, p.MaxTokens)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "local", cfg.Knowledge.Backend)
	assert.Equal(t, int64(10*1024*1024), cfg.Documents.MaxFileSize)
	assert.Contains(t, cfg.Documents.AllowedExtensions, "docx")
}

func TestLoadRejectsUnknownProviderType(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: farm
    type: llama-farm
    api_key: x
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestLoadRejectsDuplicateProviderNames(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: openai
    type: openai
    api_key: a
  - name: OpenAI
    type: openai
    api_key: b
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadRejectsUnknownDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
default_provider: missing
providers:
  - name: openai
    type: openai
    api_key: a
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_provider")
}

func TestLoadRequiresBucketForS3Backend(t *testing.T) {
	path := writeConfig(t, `
knowledge:
  backend: s3
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestUnconfiguredProvider(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: anthropic
    type: anthropic
    api_key: ${UNSET_KEY_VAR_12345}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Providers[0].Configured(),
		"empty expansion leaves the provider registered but unconfigured")
}
