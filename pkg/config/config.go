package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	versionV1 = "1"
	// Version exposes the current config format version for tooling.
	Version = versionV1

	envPrefix = "FUNNELS_"
)

// Config is the service configuration document.
type Config struct {
	Version   string    `yaml:"version"`
	Analytics Analytics `yaml:"analytics"`
	Poll      Poll      `yaml:"poll"`
	Cache     Cache     `yaml:"cache"`
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Source    string    `yaml:"-"`
}

// Analytics locates the remote analytics backend.
type Analytics struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Poll controls the funnel polling loop.
type Poll struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Cache sizes the result and chart caches.
type Cache struct {
	Size      int           `yaml:"size"`
	ChartSize int           `yaml:"chart_size"`
	ChartTTL  time.Duration `yaml:"chart_ttl"`
}

// Server configures the HTTP API.
type Server struct {
	Addr       string `yaml:"addr"`
	BasePath   string `yaml:"base_path"`
	// StreamAddr serves the slot state WebSocket/SSE streams; empty disables them.
	StreamAddr string `yaml:"stream_addr"`
}

// Log configures the zerolog logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads an optional .env file, the YAML document at path (if any) and FUNNELS_* env
// overrides, in that order of precedence from lowest to highest.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
	}
	cfg := &Config{}
	if path != "" {
		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		cfg, err = Decode(f)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		cfg.Source = path
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads a config document from any reader.
func Decode(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			cfg.applyDefaults()
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Validate ensures the config satisfies required fields.
func (c *Config) Validate() error {
	if c.Version != versionV1 {
		return fmt.Errorf("config: unsupported version %q", c.Version)
	}
	if c.Poll.Interval > c.Poll.Timeout {
		return fmt.Errorf("config: poll interval %s exceeds timeout %s", c.Poll.Interval, c.Poll.Timeout)
	}
	if c.Cache.Size < 0 || c.Cache.ChartSize < 0 {
		return fmt.Errorf("config: cache sizes must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unsupported log format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = versionV1
	}
	if c.Analytics.Timeout <= 0 {
		c.Analytics.Timeout = 30 * time.Second
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = time.Second
	}
	if c.Poll.Timeout <= 0 {
		c.Poll.Timeout = 180 * time.Second
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 128
	}
	if c.Cache.ChartSize == 0 {
		c.Cache.ChartSize = 64
	}
	if c.Cache.ChartTTL == 0 {
		c.Cache.ChartTTL = 5 * time.Minute
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(envPrefix + "ANALYTICS_BASE_URL"); v != "" {
		c.Analytics.BaseURL = v
	}
	if v := getenv(envPrefix + "ANALYTICS_API_KEY"); v != "" {
		c.Analytics.APIKey = v
	}
	if v := getenv(envPrefix + "SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv(envPrefix + "STREAM_ADDR"); v != "" {
		c.Server.StreamAddr = v
	}
	if v := getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv(envPrefix + "LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := getenv(envPrefix + "POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Poll.Timeout = d
		}
	}
	if v := getenv(envPrefix + "CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Size = n
		}
	}
}
