package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/subtagger/internal/tagging"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("source_url: https://probe.example.com/tags.json\n")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "name", cfg.Mode)
	require.Equal(t, tagging.ModeName, cfg.TagMode())
	require.Equal(t, []string{"openai"}, cfg.AIProviderPriority)
	require.False(t, cfg.IncludeRegionSuffix)
	require.Equal(t, 15*time.Second, cfg.FetchTimeout)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestParse_AllFields(t *testing.T) {
	cfg, err := Parse(`
source_url: /var/lib/probe/tags.json
mode: both
ai_provider_priority: [claude, openai]
include_region_suffix: true
fetch_timeout: 3s
cache_bust_param: nocache
workers: 2
log:
  level: debug
  format: console
`)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, tagging.ModeBoth, cfg.TagMode())
	require.Equal(t, tagging.ResolverOptions{AIProviders: []string{"claude", "openai"}, RegionSuffix: true}, cfg.ResolverOptions())
	fo := cfg.FetchOptions()
	require.Equal(t, 3*time.Second, fo.Timeout)
	require.Equal(t, "nocache", fo.CacheBustParam)
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, "console", cfg.Log.Format)
}

func TestParse_Strict(t *testing.T) {
	_, err := Parse("source_url: x\nsorce_url: y\n")
	require.Error(t, err)
	require.Contains(t, err.Error(), "sorce_url")

	_, err = Parse("source_url: a\n---\nsource_url: b\n")
	require.ErrorContains(t, err, "multiple YAML documents")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.ErrorContains(t, err, "source_url is required")

	cfg.SourceURL = "tags.json"
	cfg.Mode = "prefix"
	cfg.AIProviderPriority = []string{"openai", "bard"}
	cfg.FetchTimeout = 0
	cfg.Workers = 0
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"mode", "bard", "fetch_timeout", "workers", "log.level", "log.format"} {
		require.ErrorContains(t, err, want)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "subtagger.yaml", `
source_url: https://file.example.com/tags.json
mode: tags
workers: 4
`)
	dotenv := writeFile(t, dir, ".env", "SUBTAGGER_MODE=both\nSUBTAGGER_LOG_LEVEL=warn\n")

	t.Setenv("SUBTAGGER_WORKERS", "16")
	t.Setenv("SUBTAGGER_AI_PROVIDER_PRIORITY", "gemini,openai")
	t.Setenv("SUBTAGGER_FETCH_TIMEOUT", "750ms")
	// godotenv never overrides variables that already exist.
	t.Setenv("SUBTAGGER_LOG_LEVEL", "error")
	t.Cleanup(func() { os.Unsetenv("SUBTAGGER_MODE") })

	cfg, err := Load(Options{Path: path, DotEnv: []string{dotenv}})
	require.NoError(t, err)

	require.Equal(t, "https://file.example.com/tags.json", cfg.SourceURL)
	require.Equal(t, "both", cfg.Mode)
	require.Equal(t, 16, cfg.Workers)
	require.Equal(t, []string{"gemini", "openai"}, cfg.AIProviderPriority)
	require.Equal(t, 750*time.Millisecond, cfg.FetchTimeout)
	require.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SUBTAGGER_SOURCE_URL", "https://env.example.com/tags.json")

	cfg, err := Load(Options{DotEnv: []string{filepath.Join(dir, ".env")}})
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com/tags.json", cfg.SourceURL)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	noEnv := []string{filepath.Join(dir, "none.env")}

	_, err := Load(Options{Path: filepath.Join(dir, "missing.yaml"), DotEnv: noEnv})
	require.ErrorContains(t, err, "missing.yaml")

	bad := writeFile(t, dir, "bad.yaml", "source_url: [unterminated\n")
	_, err = Load(Options{Path: bad, DotEnv: noEnv})
	require.ErrorContains(t, err, "bad.yaml")

	ok := writeFile(t, dir, "ok.yaml", "source_url: tags.json\n")
	t.Setenv("SUBTAGGER_WORKERS", "many")
	_, err = Load(Options{Path: ok, DotEnv: noEnv})
	require.ErrorContains(t, err, "environment")
}

func TestLoad_OverrideWinsOverEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SUBTAGGER_SOURCE_URL", "https://env.example.com/tags.json")
	t.Setenv("SUBTAGGER_MODE", "tags")

	cfg, err := Load(Options{
		DotEnv: []string{filepath.Join(dir, ".env")},
		Override: func(c *Config) {
			c.Mode = "both"
		},
	})
	require.NoError(t, err)
	require.Equal(t, tagging.ModeBoth, cfg.TagMode())
	require.Equal(t, "https://env.example.com/tags.json", cfg.SourceURL)

	_, err = Load(Options{
		DotEnv:   []string{filepath.Join(dir, ".env")},
		Override: func(c *Config) { c.Workers = 0 },
	})
	require.ErrorContains(t, err, "workers")
}
