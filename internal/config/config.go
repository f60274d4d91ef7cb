// Package config loads the per-repository configuration object that is
// constructed once per process and passed into every component.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/repoassist/pkg/types"
)

const (
	// DirName is the repo-relative directory holding configuration and the index
	DirName = ".ai_assistant"
	// FileName is the configuration file inside DirName
	FileName = "config.yaml"
	// DBName is the persisted index inside DirName
	DBName = "index.db"

	DefaultMaxTokens       = 250
	DefaultOversizedFactor = 50
	DefaultTokenizer       = "r50k_base"
	DefaultSearchLimit     = 10
)

// OversizedPolicy decides what happens to files whose token count exceeds
// OversizedFileFactor × MaxTokens. Files are never truncated.
type OversizedPolicy string

const (
	PolicyReject  OversizedPolicy = "reject"
	PolicyPrompt  OversizedPolicy = "prompt"
	PolicyInclude OversizedPolicy = "include"
)

// Valid reports whether p is a known policy
func (p OversizedPolicy) Valid() bool {
	switch p {
	case PolicyReject, PolicyPrompt, PolicyInclude:
		return true
	}
	return false
}

// Config holds all configuration for one repository
type Config struct {
	// Root is the repository root the config was loaded from
	Root string `yaml:"-"`

	MaxTokens           int             `yaml:"max_tokens"`
	IgnorePatterns      []string        `yaml:"ignore_patterns"`
	OversizedFilePolicy OversizedPolicy `yaml:"oversized_file_policy"`
	OversizedFileFactor int             `yaml:"oversized_file_factor"`
	Tokenizer           string          `yaml:"tokenizer"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
}

// EmbeddingConfig configures the external embedding service and the updater
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	Dimension         int           `yaml:"dimension,omitempty"`
	Workers           int           `yaml:"workers"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`

	// APIKey comes from the environment, never from the file
	APIKey string `yaml:"-"`
}

// IndexConfig configures the index maintainer
type IndexConfig struct {
	Workers int `yaml:"workers"`
}

// SearchConfig configures the search engine
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// Default returns a configuration populated with default values
func Default() *Config {
	return &Config{
		MaxTokens:           DefaultMaxTokens,
		IgnorePatterns:      []string{},
		OversizedFilePolicy: PolicyReject,
		OversizedFileFactor: DefaultOversizedFactor,
		Tokenizer:           DefaultTokenizer,
		Embedding: EmbeddingConfig{
			Provider:          "openai",
			Model:             "text-embedding-3-large",
			Workers:           4,
			RequestsPerSecond: 0,
			MaxAttempts:       3,
			BaseDelay:         time.Second,
			MaxDelay:          20 * time.Second,
		},
		Index:  IndexConfig{Workers: 4},
		Search: SearchConfig{DefaultLimit: DefaultSearchLimit},
	}
}

// Dir returns the absolute path of the configuration directory
func (c *Config) Dir() string {
	return filepath.Join(c.Root, DirName)
}

// Path returns the absolute path of the configuration file
func (c *Config) Path() string {
	return filepath.Join(c.Root, DirName, FileName)
}

// DBPath returns the absolute path of the persisted index
func (c *Config) DBPath() string {
	return filepath.Join(c.Root, DirName, DBName)
}

// OversizedFileLimit returns the whole-file token count above which the
// oversized-file policy applies
func (c *Config) OversizedFileLimit() int {
	return c.OversizedFileFactor * c.MaxTokens
}

// Load reads <root>/.ai_assistant/config.yaml, then loads <root>/.env and
// applies environment overrides. Variables already set in the environment
// take precedence over .env values.
//
// A missing configuration file returns an error wrapping types.ErrConfigMissing.
func Load(root string) (*Config, error) {
	cfg := Default()
	cfg.Root = root

	data, err := os.ReadFile(cfg.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found, run `repoassist init` first", types.ErrConfigMissing, cfg.Path())
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfg.Path(), err)
	}

	// .env is optional
	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if provider := getEnv("REPOASSIST_EMBEDDING_PROVIDER", c.Embedding.Provider); provider != c.Embedding.Provider {
		// The configured model belongs to the old provider; fall back to the new provider's default
		c.Embedding.Provider = provider
		c.Embedding.Model = ""
	}
	c.Embedding.Model = getEnv("REPOASSIST_EMBEDDING_MODEL", c.Embedding.Model)

	switch c.Embedding.Provider {
	case "openai":
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	case "jina":
		c.Embedding.APIKey = os.Getenv("JINA_API_KEY")
	case "ollama":
		c.Embedding.BaseURL = getEnv("OLLAMA_HOST", c.Embedding.BaseURL)
	}
}

// Validate checks the configuration for values no component can work with
func (c *Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.OversizedFileFactor <= 0 {
		return fmt.Errorf("oversized_file_factor must be positive, got %d", c.OversizedFileFactor)
	}
	if !c.OversizedFilePolicy.Valid() {
		return fmt.Errorf("unknown oversized_file_policy %q", c.OversizedFilePolicy)
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 1
	}
	if c.Embedding.MaxAttempts <= 0 {
		c.Embedding.MaxAttempts = 1
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second cannot be negative")
	}
	if c.Index.Workers <= 0 {
		c.Index.Workers = 1
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = DefaultSearchLimit
	}
	return nil
}

// Save writes the configuration file, creating the directory if needed
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", c.Dir(), err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(c.Path(), data, 0o644)
}

// Init writes a default configuration under root unless one already exists,
// and makes sure the configuration directory is git-ignored.
// It returns the effective configuration and whether a new file was created.
func Init(root string) (*Config, bool, error) {
	if cfg, err := Load(root); err == nil {
		return cfg, false, nil
	} else if !errors.Is(err, types.ErrConfigMissing) {
		return nil, false, err
	}

	cfg := Default()
	cfg.Root = root
	if err := cfg.Save(); err != nil {
		return nil, false, err
	}

	if err := ensureGitignored(root, DirName+"/"); err != nil {
		return nil, false, err
	}

	cfg.applyEnv()
	return cfg, true, nil
}

func ensureGitignored(root, entry string) error {
	path := filepath.Join(root, ".gitignore")

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry || strings.TrimSpace(line) == strings.TrimSuffix(entry, "/") {
			return nil
		}
	}

	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(entry + "\n")

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
