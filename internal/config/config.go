package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	appName   = "kemote"
	envPrefix = "KEMOTE_"
)

// Config represents the kemote configuration.
type Config struct {
	CacheDir string       `yaml:"cache_dir,omitempty" env:"CACHE_DIR"`
	Endpoint string       `yaml:"endpoint" env:"ENDPOINT"`
	Image    ImageConfig  `yaml:"image" envPrefix:"IMAGE_"`
	Search   SearchConfig `yaml:"search" envPrefix:"SEARCH_"`
	Recent   RecentConfig `yaml:"recent" envPrefix:"RECENT_"`
	Fetch    FetchConfig  `yaml:"fetch" envPrefix:"FETCH_"`
	Workers  int          `yaml:"workers" env:"WORKERS"`
	Log      LogConfig    `yaml:"log" envPrefix:"LOG_"`
}

// ImageConfig selects which image variant of an emote is used.
type ImageConfig struct {
	Mime  string `yaml:"mime" env:"MIME"`
	Scale int    `yaml:"scale" env:"SCALE"`
}

// SearchConfig controls query debouncing and the remote search request.
type SearchConfig struct {
	Debounce      time.Duration `yaml:"debounce" env:"DEBOUNCE"`
	PageSize      int           `yaml:"page_size" env:"PAGE_SIZE"`
	SortBy        string        `yaml:"sort_by" env:"SORT_BY"`
	MaxQueryBytes int           `yaml:"max_query_bytes" env:"MAX_QUERY_BYTES"`
}

// RecentConfig controls the recency list.
type RecentConfig struct {
	Capacity int `yaml:"capacity" env:"CAPACITY"`
}

// FetchConfig controls outbound HTTP requests.
type FetchConfig struct {
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	UserAgent         string        `yaml:"user_agent" env:"USER_AGENT"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Endpoint: "https://api.7tv.app/v4/gql",
		Image: ImageConfig{
			Mime:  "image/webp",
			Scale: 4,
		},
		Search: SearchConfig{
			Debounce:      200 * time.Millisecond,
			PageSize:      50,
			SortBy:        "TOP_ALL_TIME",
			MaxQueryBytes: 64,
		},
		Recent: RecentConfig{
			Capacity: 15,
		},
		Fetch: FetchConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 20,
			UserAgent:         appName,
		},
		Workers: 4,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for kemote.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName), nil
		}
		return filepath.Join(home, "AppData", "Roaming", appName), nil
	default:
		return filepath.Join(home, ".config", appName), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultCacheDir returns the per-user cache directory. Development builds,
// marked by KEMOTE_DEV, use a separate directory so they never share a
// cache with an installed binary.
func DefaultCacheDir() (string, error) {
	var base string
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		base = xdg
	} else {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine cache directory: %w", err)
		}
		base = dir
	}
	name := appName
	if os.Getenv(envPrefix+"DEV") != "" {
		name = "dev-" + appName
	}
	return filepath.Join(base, name), nil
}

// ResolveCacheDir returns the configured cache directory or the default.
func (c Config) ResolveCacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	return DefaultCacheDir()
}

// LoadFile loads config from the config file. Returns zero Config and nil error if file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-empty values are applied).
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(dst *Config, src Config) {
	if src.CacheDir != "" {
		dst.CacheDir = src.CacheDir
	}
	if src.Endpoint != "" {
		dst.Endpoint = src.Endpoint
	}
	if src.Image.Mime != "" {
		dst.Image.Mime = src.Image.Mime
	}
	if src.Image.Scale > 0 {
		dst.Image.Scale = src.Image.Scale
	}
	if src.Search.Debounce > 0 {
		dst.Search.Debounce = src.Search.Debounce
	}
	if src.Search.PageSize > 0 {
		dst.Search.PageSize = src.Search.PageSize
	}
	if src.Search.SortBy != "" {
		dst.Search.SortBy = src.Search.SortBy
	}
	if src.Search.MaxQueryBytes > 0 {
		dst.Search.MaxQueryBytes = src.Search.MaxQueryBytes
	}
	if src.Recent.Capacity > 0 {
		dst.Recent.Capacity = src.Recent.Capacity
	}
	if src.Fetch.Timeout > 0 {
		dst.Fetch.Timeout = src.Fetch.Timeout
	}
	if src.Fetch.RequestsPerSecond > 0 {
		dst.Fetch.RequestsPerSecond = src.Fetch.RequestsPerSecond
	}
	if src.Fetch.UserAgent != "" {
		dst.Fetch.UserAgent = src.Fetch.UserAgent
	}
	if src.Workers > 0 {
		dst.Workers = src.Workers
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
}

// mergeEnv applies KEMOTE_* variables. Unset variables leave fields alone.
func mergeEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := overrides[k]; v != "" {
			if err := SetField(cfg, k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Keys lists the keys accepted by SetField, in display order.
func Keys() []string {
	return []string{
		"cache_dir",
		"endpoint",
		"image.mime",
		"image.scale",
		"search.debounce",
		"search.page_size",
		"search.sort_by",
		"search.max_query_bytes",
		"recent.capacity",
		"fetch.timeout",
		"fetch.requests_per_second",
		"fetch.user_agent",
		"workers",
		"log.level",
		"log.format",
	}
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "cache_dir":
		cfg.CacheDir = value
	case "endpoint":
		cfg.Endpoint = value
	case "image.mime":
		cfg.Image.Mime = value
	case "image.scale":
		cfg.Image.Scale, err = atoi(key, value)
	case "search.debounce":
		cfg.Search.Debounce, err = duration(key, value)
	case "search.page_size":
		cfg.Search.PageSize, err = atoi(key, value)
	case "search.sort_by":
		cfg.Search.SortBy = value
	case "search.max_query_bytes":
		cfg.Search.MaxQueryBytes, err = atoi(key, value)
	case "recent.capacity":
		cfg.Recent.Capacity, err = atoi(key, value)
	case "fetch.timeout":
		cfg.Fetch.Timeout, err = duration(key, value)
	case "fetch.requests_per_second":
		cfg.Fetch.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = fmt.Errorf("%s must be a number: %w", key, err)
		}
	case "fetch.user_agent":
		cfg.Fetch.UserAgent = value
	case "workers":
		cfg.Workers, err = atoi(key, value)
	case "log.level":
		cfg.Log.Level = value
	case "log.format":
		cfg.Log.Format = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

// Validate checks that numeric limits are usable.
func (c Config) Validate() error {
	var errs []error
	if c.Image.Scale <= 0 {
		errs = append(errs, errors.New("image.scale must be positive"))
	}
	if c.Search.PageSize <= 0 {
		errs = append(errs, errors.New("search.page_size must be positive"))
	}
	if c.Search.MaxQueryBytes <= 0 {
		errs = append(errs, errors.New("search.max_query_bytes must be positive"))
	}
	if c.Recent.Capacity <= 0 {
		errs = append(errs, errors.New("recent.capacity must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Search.Debounce < 0 || c.Fetch.Timeout < 0 || c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("durations and rates must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func duration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 200ms: %w", key, err)
	}
	return d, nil
}
