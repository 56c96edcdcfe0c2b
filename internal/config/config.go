// Package config loads tagger settings from a YAML file, a .env file and
// SUBTAGGER_* environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/subtagger/internal/fetch"
	"github.com/John-Robertt/subtagger/internal/logging"
	"github.com/John-Robertt/subtagger/internal/tagging"
)

const EnvPrefix = "SUBTAGGER"

type Config struct {
	// SourceURL locates the probe result table: http(s) URL or local file.
	SourceURL string `yaml:"source_url" envconfig:"SOURCE_URL"`

	Mode                string   `yaml:"mode" envconfig:"MODE"`
	AIProviderPriority  []string `yaml:"ai_provider_priority" envconfig:"AI_PROVIDER_PRIORITY"`
	IncludeRegionSuffix bool     `yaml:"include_region_suffix" envconfig:"INCLUDE_REGION_SUFFIX"`

	FetchTimeout   time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT"`
	CacheBustParam string        `yaml:"cache_bust_param" envconfig:"CACHE_BUST_PARAM"`

	Workers int `yaml:"workers" envconfig:"WORKERS"`

	Log LogConfig `yaml:"log" envconfig:"LOG"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

func Default() Config {
	return Config{
		Mode:               "name",
		AIProviderPriority: append([]string(nil), tagging.DefaultAIProviders...),
		FetchTimeout:       15 * time.Second,
		Workers:            8,
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
	}
}

type Options struct {
	// Path of the YAML file; empty skips it.
	Path string
	// DotEnv files to load before reading the environment. Missing files are
	// ignored. Nil means ".env".
	DotEnv []string
	// Override runs after the environment is applied and before validation;
	// command-line flags hook in here.
	Override func(*Config)
}

// Load builds a Config: defaults, then the YAML file, then .env, then the
// environment, then Override. The result is validated.
func Load(opt Options) (Config, error) {
	cfg := Default()

	if opt.Path != "" {
		b, err := os.ReadFile(opt.Path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", opt.Path, err)
		}
		if err := decodeStrict(string(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", opt.Path, err)
		}
	}

	dotenv := opt.DotEnv
	if dotenv == nil {
		dotenv = []string{".env"}
	}
	for _, p := range dotenv {
		// A missing .env is normal; real environment variables still apply.
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", p, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	if opt.Override != nil {
		opt.Override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML content on top of the defaults without touching the
// environment. Unknown keys and multiple documents are rejected.
func Parse(content string) (Config, error) {
	cfg := Default()
	if err := decodeStrict(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decodeStrict(content string, out *Config) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return err
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.SourceURL) == "" {
		errs = append(errs, errors.New("source_url is required"))
	}
	if _, err := tagging.ParseMode(c.Mode); err != nil {
		errs = append(errs, fmt.Errorf("mode: %w", err))
	}
	if _, err := tagging.NewResolver(c.ResolverOptions()); err != nil {
		errs = append(errs, fmt.Errorf("ai_provider_priority: %w", err))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported %q (json/console)", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// TagMode is the parsed Mode; call Validate first.
func (c Config) TagMode() tagging.Mode {
	m, _ := tagging.ParseMode(c.Mode)
	return m
}

func (c Config) ResolverOptions() tagging.ResolverOptions {
	return tagging.ResolverOptions{
		AIProviders:  c.AIProviderPriority,
		RegionSuffix: c.IncludeRegionSuffix,
	}
}

func (c Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:        c.FetchTimeout,
		CacheBustParam: c.CacheBustParam,
	}
}
