package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the fonds API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexes   IndexesConfig   `yaml:"indexes"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// MetadataConfig holds the photo metadata store settings.
type MetadataConfig struct {
	Path string `yaml:"path"` // SQLite database file, ":memory:" for tests
}

// EmbeddingConfig holds the two embedding provider bindings.
// Text is the 1024-dim description-text space, visual the 512-dim
// joint image/text space. The two models are not interchangeable.
type EmbeddingConfig struct {
	Text      ProviderConfig `yaml:"text"`
	Visual    ProviderConfig `yaml:"visual"`
	CacheSize int            `yaml:"cache_size"` // LRU entries per provider
}

// ProviderConfig holds a single embedding provider's settings.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxChars   int    `yaml:"max_chars"` // input truncated, never rejected
}

// IndexesConfig binds the two vector index instances, one per embedding space.
// An index with an empty driver is unconfigured; the router reports the
// corresponding modes as not available.
type IndexesConfig struct {
	Text   IndexConfig `yaml:"text"`
	Visual IndexConfig `yaml:"visual"`
}

// IndexConfig holds a single vector index binding.
type IndexConfig struct {
	Driver     string `yaml:"driver"` // vectorize, redis, memory
	Dimensions int    `yaml:"dimensions"`

	// vectorize driver
	AccountID string `yaml:"account_id"`
	APIToken  string `yaml:"api_token"`
	IndexName string `yaml:"index_name"`

	// redis driver
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`

	// memory driver
	SnapshotPath string `yaml:"snapshot_path"`

	TimeoutSec int `yaml:"timeout_sec"`
}

// SearchConfig holds query routing settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	TopK         int `yaml:"top_k"`
	// LexicalFallback degrades semantic/visual/hybrid searches to a lexical
	// scan when embedding generation fails. When false, those failures
	// surface to the caller instead. Deployment policy, deliberately explicit.
	LexicalFallback *bool `yaml:"lexical_fallback"`
}

// LexicalFallbackEnabled reports the fallback policy, defaulting to true.
func (s SearchConfig) LexicalFallbackEnabled() bool {
	return s.LexicalFallback == nil || *s.LexicalFallback
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Metadata.Path == "" {
		c.Metadata.Path = "fonds.db"
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 1024
	}
	if c.Embedding.Text.Dimensions <= 0 {
		c.Embedding.Text.Dimensions = 1024
	}
	if c.Embedding.Visual.Dimensions <= 0 {
		c.Embedding.Visual.Dimensions = 512
	}
	applyProviderDefaults(&c.Embedding.Text)
	applyProviderDefaults(&c.Embedding.Visual)
	if c.Indexes.Text.Dimensions <= 0 {
		c.Indexes.Text.Dimensions = c.Embedding.Text.Dimensions
	}
	if c.Indexes.Visual.Dimensions <= 0 {
		c.Indexes.Visual.Dimensions = c.Embedding.Visual.Dimensions
	}
	applyIndexDefaults(&c.Indexes.Text)
	applyIndexDefaults(&c.Indexes.Visual)
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 25
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 50
	}
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.TimeoutSec <= 0 {
		p.TimeoutSec = 30
	}
	if p.MaxChars <= 0 {
		p.MaxChars = 2048
	}
}

func applyIndexDefaults(i *IndexConfig) {
	if i.TimeoutSec <= 0 {
		i.TimeoutSec = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit %d is below search.default_limit %d",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	for name, idx := range map[string]IndexConfig{"text": c.Indexes.Text, "visual": c.Indexes.Visual} {
		if err := validateIndex(name, idx); err != nil {
			return err
		}
	}
	if c.Indexes.Text.Dimensions != c.Embedding.Text.Dimensions {
		return fmt.Errorf("indexes.text.dimensions %d does not match embedding.text.dimensions %d",
			c.Indexes.Text.Dimensions, c.Embedding.Text.Dimensions)
	}
	if c.Indexes.Visual.Dimensions != c.Embedding.Visual.Dimensions {
		return fmt.Errorf("indexes.visual.dimensions %d does not match embedding.visual.dimensions %d",
			c.Indexes.Visual.Dimensions, c.Embedding.Visual.Dimensions)
	}
	return nil
}

func validateIndex(name string, idx IndexConfig) error {
	switch idx.Driver {
	case "":
		// unconfigured index is allowed; the mode is reported unavailable
		return nil
	case "vectorize":
		if idx.AccountID == "" || idx.IndexName == "" {
			return fmt.Errorf("indexes.%s: vectorize driver requires account_id and index_name", name)
		}
	case "redis":
		if len(idx.Addrs) == 0 {
			return fmt.Errorf("indexes.%s: redis driver requires addrs", name)
		}
	case "memory":
		if idx.SnapshotPath == "" {
			return fmt.Errorf("indexes.%s: memory driver requires snapshot_path", name)
		}
	default:
		return fmt.Errorf("indexes.%s: unknown driver %q", name, idx.Driver)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
