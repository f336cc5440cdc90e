package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fetchhttp "github.com/imager-service/worker/internal/http"
	"github.com/imager-service/worker/internal/progress"
)

// Progress styles.
const (
	ProgressDots = "dots"
	ProgressBar  = "bar"
	ProgressNone = "none"
)

// MaxChunkSize bounds ChunkSize; each transfer allocates one chunk buffer.
const MaxChunkSize = 64 << 20 // 64 MiB

// Config defines configuration for the fetch CLI.
type Config struct {
	URL       string        `yaml:"url"`
	Output    string        `yaml:"output"`
	Bucket    string        `yaml:"bucket"`
	Object    string        `yaml:"object"`
	ChunkSize int64         `yaml:"chunk_size"`
	Progress  string        `yaml:"progress"`
	Checksum  string        `yaml:"checksum"`
	Device    string        `yaml:"device"`
	Timeout   time.Duration `yaml:"timeout"`
	Retry     RetryConfig   `yaml:"retry"`
	Log       LogConfig     `yaml:"log"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Total         int           `yaml:"total"`
	Connect       int           `yaml:"connect"`
	Read          int           `yaml:"read"`
	Status        int           `yaml:"status"`
	BackoffFactor time.Duration `yaml:"backoff_factor"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	StatusCodes   []int         `yaml:"status_codes"`
	MaxRedirects  int           `yaml:"max_redirects"`
}

// LogConfig defines logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	policy := fetchhttp.DefaultRetryPolicy()
	return Config{
		ChunkSize: 1024,
		Progress:  ProgressDots,
		Retry: RetryConfig{
			Total:         policy.Total,
			Connect:       policy.Connect,
			Read:          policy.Read,
			Status:        policy.Status,
			BackoffFactor: policy.BackoffFactor,
			MaxBackoff:    policy.MaxBackoff,
			StatusCodes:   policy.StatusForcelist,
			MaxRedirects:  policy.MaxRedirects,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// RetryPolicy converts the retry section into a client policy.
func (c Config) RetryPolicy() fetchhttp.RetryPolicy {
	return fetchhttp.RetryPolicy{
		Total:           c.Retry.Total,
		Connect:         c.Retry.Connect,
		Read:            c.Retry.Read,
		Status:          c.Retry.Status,
		BackoffFactor:   c.Retry.BackoffFactor,
		MaxBackoff:      c.Retry.MaxBackoff,
		StatusForcelist: slices.Clone(c.Retry.StatusCodes),
		MaxRedirects:    c.Retry.MaxRedirects,
	}
}

// HTTPOptions returns client options built from the config.
func (c Config) HTTPOptions() fetchhttp.Options {
	opts := fetchhttp.DefaultOptions()
	opts.Timeout = c.Timeout
	opts.Retry = c.RetryPolicy()
	return opts
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
// Pointer fields distinguish an explicit zero from an absent key.
type yamlConfig struct {
	URL       string          `yaml:"url"`
	Output    string          `yaml:"output"`
	Bucket    string          `yaml:"bucket"`
	Object    string          `yaml:"object"`
	ChunkSize string          `yaml:"chunk_size"`
	Progress  string          `yaml:"progress"`
	Checksum  string          `yaml:"checksum"`
	Device    string          `yaml:"device"`
	Timeout   string          `yaml:"timeout"`
	Retry     yamlRetryConfig `yaml:"retry"`
	Log       LogConfig       `yaml:"log"`
}

type yamlRetryConfig struct {
	Total         *int   `yaml:"total"`
	Connect       *int   `yaml:"connect"`
	Read          *int   `yaml:"read"`
	Status        *int   `yaml:"status"`
	BackoffFactor string `yaml:"backoff_factor"`
	MaxBackoff    string `yaml:"max_backoff"`
	StatusCodes   []int  `yaml:"status_codes"`
	MaxRedirects  *int   `yaml:"max_redirects"`
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.URL != "" {
		cfg.URL = yc.URL
	}
	if yc.Output != "" {
		cfg.Output = yc.Output
	}
	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.Object != "" {
		cfg.Object = yc.Object
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	if yc.Progress != "" {
		cfg.Progress = yc.Progress
	}
	if yc.Checksum != "" {
		cfg.Checksum = yc.Checksum
	}
	if yc.Device != "" {
		cfg.Device = yc.Device
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}

	setInt(&cfg.Retry.Total, yc.Retry.Total)
	setInt(&cfg.Retry.Connect, yc.Retry.Connect)
	setInt(&cfg.Retry.Read, yc.Retry.Read)
	setInt(&cfg.Retry.Status, yc.Retry.Status)
	setInt(&cfg.Retry.MaxRedirects, yc.Retry.MaxRedirects)
	if yc.Retry.BackoffFactor != "" {
		d, err := time.ParseDuration(yc.Retry.BackoffFactor)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff_factor: %w", err)
		}
		cfg.Retry.BackoffFactor = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}
	if yc.Retry.StatusCodes != nil {
		cfg.Retry.StatusCodes = yc.Retry.StatusCodes
	}

	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	if yc.Log.Format != "" {
		cfg.Log.Format = yc.Log.Format
	}

	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the FETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FETCH_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("FETCH_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("FETCH_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("FETCH_OBJECT"); v != "" {
		c.Object = v
	}
	if v := os.Getenv("FETCH_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse FETCH_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("FETCH_PROGRESS"); v != "" {
		c.Progress = v
	}
	if v := os.Getenv("FETCH_CHECKSUM"); v != "" {
		c.Checksum = v
	}
	if v := os.Getenv("FETCH_DEVICE"); v != "" {
		c.Device = v
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse FETCH_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"FETCH_RETRY_TOTAL", &c.Retry.Total},
		{"FETCH_RETRY_CONNECT", &c.Retry.Connect},
		{"FETCH_RETRY_READ", &c.Retry.Read},
		{"FETCH_RETRY_STATUS", &c.Retry.Status},
		{"FETCH_RETRY_MAX_REDIRECTS", &c.Retry.MaxRedirects},
	}
	for _, e := range ints {
		if v := os.Getenv(e.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", e.name, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("FETCH_RETRY_BACKOFF_FACTOR"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse FETCH_RETRY_BACKOFF_FACTOR: %w", err)
		}
		c.Retry.BackoffFactor = d
	}
	if v := os.Getenv("FETCH_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse FETCH_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}
	if v := os.Getenv("FETCH_RETRY_STATUS_CODES"); v != "" {
		codes, err := parseCodes(v)
		if err != nil {
			return fmt.Errorf("parse FETCH_RETRY_STATUS_CODES: %w", err)
		}
		c.Retry.StatusCodes = codes
	}

	if v := os.Getenv("FETCH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FETCH_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	return nil
}

// parseCodes parses a comma-separated list of status codes.
func parseCodes(s string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		codes = append(codes, n)
	}
	return codes, nil
}

// Validate validates the settings shared by every command.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("config: chunk_size must not exceed %s", progress.FormatBytes(MaxChunkSize))
	}
	switch c.Progress {
	case ProgressDots, ProgressBar, ProgressNone:
	default:
		return fmt.Errorf("config: unknown progress style %q", c.Progress)
	}
	if c.Retry.Total < 0 || c.Retry.Connect < 0 || c.Retry.Read < 0 || c.Retry.Status < 0 {
		return errors.New("config: retry budgets must not be negative")
	}
	if c.Retry.MaxRedirects < 0 {
		return errors.New("config: retry.max_redirects must not be negative")
	}
	for _, code := range c.Retry.StatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("config: invalid retry status code %d", code)
		}
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.URL != "" {
		c.URL = override.URL
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Object != "" {
		c.Object = override.Object
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Progress != "" {
		c.Progress = override.Progress
	}
	if override.Checksum != "" {
		c.Checksum = override.Checksum
	}
	if override.Device != "" {
		c.Device = override.Device
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Total != 0 {
		c.Retry.Total = override.Retry.Total
	}
	if override.Retry.Connect != 0 {
		c.Retry.Connect = override.Retry.Connect
	}
	if override.Retry.Read != 0 {
		c.Retry.Read = override.Retry.Read
	}
	if override.Retry.Status != 0 {
		c.Retry.Status = override.Retry.Status
	}
	if override.Retry.BackoffFactor != 0 {
		c.Retry.BackoffFactor = override.Retry.BackoffFactor
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if len(override.Retry.StatusCodes) > 0 {
		c.Retry.StatusCodes = override.Retry.StatusCodes
	}
	if override.Retry.MaxRedirects != 0 {
		c.Retry.MaxRedirects = override.Retry.MaxRedirects
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	return c
}
