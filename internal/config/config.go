// Package config loads vdl settings from defaults, an optional YAML file and
// VDL_* environment variables. Command line flags are layered on top in cmd.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	TempDir           string
	DownloadDir       string
	Threads           int
	ForceStream       bool
	BufferSize        int
	ProgressInterval  time.Duration
	PollInterval      time.Duration
	LimitRate         int64 // bytes per second, 0 disables
	MinFreeSpace      int64
	DiskCheck         bool
	ProbeStripCookies bool
	DefaultExtension  string
	MetricsFile       string
	Store             StoreConfig
	HTTP              HTTPConfig
	S3                S3Config
	Log               LogConfig
}

type StoreConfig struct {
	Driver string // memory, sqlite or postgres
	Path   string
	DSN    string
}

type HTTPConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	UserAgent     string
	Proxy         string
	ProxyUsername string
	ProxyPassword string
	Headers       map[string]string
}

type S3Config struct {
	Profile string
	Region  string
}

type LogConfig struct {
	Debug      bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Default() Config {
	home := homeDir()
	return Config{
		TempDir:          filepath.Join(home, ".vdl", "tmp"),
		DownloadDir:      ".",
		Threads:          4,
		BufferSize:       32 * 1024,
		ProgressInterval: time.Second,
		PollInterval:     200 * time.Millisecond,
		DiskCheck:        true,
		DefaultExtension: ".mp4",
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(home, ".vdl", "vdl.db"),
		},
		HTTP: HTTPConfig{
			Timeout:   3 * time.Minute,
			KATimeout: 90 * time.Second,
		},
		S3: S3Config{Profile: "default"},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// DefaultPath is where Load looks when no explicit file is given.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".vdl", "config.yaml")
}

type yamlConfig struct {
	TempDir           string          `yaml:"tmp_dir"`
	DownloadDir       string          `yaml:"download_dir"`
	Threads           int             `yaml:"threads"`
	ForceStream       *bool           `yaml:"force_stream"`
	BufferSize        string          `yaml:"buffer_size"`
	ProgressInterval  string          `yaml:"progress_interval"`
	PollInterval      string          `yaml:"poll_interval"`
	LimitRate         string          `yaml:"limit_rate"`
	MinFreeSpace      string          `yaml:"min_free_space"`
	DiskCheck         *bool           `yaml:"disk_check"`
	ProbeStripCookies *bool           `yaml:"probe_strip_cookies"`
	DefaultExtension  *string         `yaml:"default_extension"`
	MetricsFile       string          `yaml:"metrics_file"`
	Store             yamlStoreConfig `yaml:"store"`
	HTTP              yamlHTTPConfig  `yaml:"http"`
	S3                S3Config        `yaml:"s3"`
	Log               yamlLogConfig   `yaml:"log"`
}

type yamlStoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type yamlHTTPConfig struct {
	Timeout       string            `yaml:"timeout"`
	KATimeout     string            `yaml:"keep_alive_timeout"`
	UserAgent     string            `yaml:"user_agent"`
	Proxy         string            `yaml:"proxy"`
	ProxyUsername string            `yaml:"proxy_username"`
	ProxyPassword string            `yaml:"proxy_password"`
	Headers       map[string]string `yaml:"headers"`
}

type yamlLogConfig struct {
	Debug      bool   `yaml:"debug"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads path when it exists and falls back to defaults otherwise.
// An explicitly requested file that is missing is an error.
func Load(path string, explicit bool) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			cfg := Default()
			return cfg, cfg.LoadFromEnv()
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.LoadFromEnv()
}

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
	if yc.TempDir != "" {
		cfg.TempDir = expandHome(yc.TempDir)
	}
	if yc.DownloadDir != "" {
		cfg.DownloadDir = expandHome(yc.DownloadDir)
	}
	if yc.Threads != 0 {
		cfg.Threads = yc.Threads
	}
	if yc.ForceStream != nil {
		cfg.ForceStream = *yc.ForceStream
	}
	if yc.DiskCheck != nil {
		cfg.DiskCheck = *yc.DiskCheck
	}
	if yc.ProbeStripCookies != nil {
		cfg.ProbeStripCookies = *yc.ProbeStripCookies
	}
	if yc.DefaultExtension != nil {
		cfg.DefaultExtension = *yc.DefaultExtension
	}
	if yc.MetricsFile != "" {
		cfg.MetricsFile = expandHome(yc.MetricsFile)
	}

	sizes := []struct {
		name string
		raw  string
		dst  *int64
	}{
		{"limit_rate", yc.LimitRate, &cfg.LimitRate},
		{"min_free_space", yc.MinFreeSpace, &cfg.MinFreeSpace},
	}
	for _, s := range sizes {
		if s.raw == "" {
			continue
		}
		n, err := ParseBytes(s.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", s.name, err)
		}
		*s.dst = n
	}
	if yc.BufferSize != "" {
		n, err := ParseBytes(yc.BufferSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
		cfg.BufferSize = int(n)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"progress_interval", yc.ProgressInterval, &cfg.ProgressInterval},
		{"poll_interval", yc.PollInterval, &cfg.PollInterval},
		{"http.timeout", yc.HTTP.Timeout, &cfg.HTTP.Timeout},
		{"http.keep_alive_timeout", yc.HTTP.KATimeout, &cfg.HTTP.KATimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if yc.Store.Driver != "" {
		cfg.Store.Driver = yc.Store.Driver
	}
	if yc.Store.Path != "" {
		cfg.Store.Path = expandHome(yc.Store.Path)
	}
	cfg.Store.DSN = yc.Store.DSN

	cfg.HTTP.UserAgent = yc.HTTP.UserAgent
	cfg.HTTP.Proxy = yc.HTTP.Proxy
	cfg.HTTP.ProxyUsername = yc.HTTP.ProxyUsername
	cfg.HTTP.ProxyPassword = yc.HTTP.ProxyPassword
	cfg.HTTP.Headers = yc.HTTP.Headers

	if yc.S3.Profile != "" {
		cfg.S3.Profile = yc.S3.Profile
	}
	cfg.S3.Region = yc.S3.Region

	cfg.Log.Debug = yc.Log.Debug
	cfg.Log.File = expandHome(yc.Log.File)
	if yc.Log.MaxSizeMB != 0 {
		cfg.Log.MaxSizeMB = yc.Log.MaxSizeMB
	}
	if yc.Log.MaxBackups != 0 {
		cfg.Log.MaxBackups = yc.Log.MaxBackups
	}
	if yc.Log.MaxAgeDays != 0 {
		cfg.Log.MaxAgeDays = yc.Log.MaxAgeDays
	}
	return cfg, nil
}

// LoadFromEnv applies VDL_* overrides.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("VDL_TMP_DIR"); v != "" {
		c.TempDir = expandHome(v)
	}
	if v := os.Getenv("VDL_DOWNLOAD_DIR"); v != "" {
		c.DownloadDir = expandHome(v)
	}
	if v := os.Getenv("VDL_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse VDL_THREADS: %w", err)
		}
		c.Threads = n
	}
	if v := os.Getenv("VDL_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("VDL_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("VDL_LIMIT_RATE"); v != "" {
		n, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse VDL_LIMIT_RATE: %w", err)
		}
		c.LimitRate = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.TempDir == "" {
		return errors.New("config: tmp_dir is required")
	}
	if c.DownloadDir == "" {
		return errors.New("config: download_dir is required")
	}
	if c.Threads < 1 {
		return fmt.Errorf("config: threads must be at least 1, got %d", c.Threads)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("config: buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.ProgressInterval <= 0 || c.PollInterval <= 0 {
		return errors.New("config: progress_interval and poll_interval must be positive")
	}
	if c.LimitRate < 0 || c.MinFreeSpace < 0 {
		return errors.New("config: limit_rate and min_free_space cannot be negative")
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// ParseBytes parses sizes such as "512", "32KiB", "10MB" or "1.5G".
// Decimal and binary suffixes are both treated as powers of 1024.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, errors.New("empty size")
	}
	multipliers := []struct {
		suffix string
		mult   float64
	}{
		{"TIB", 1 << 40}, {"GIB", 1 << 30}, {"MIB", 1 << 20}, {"KIB", 1 << 10},
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10},
		{"T", 1 << 40}, {"G", 1 << 30}, {"M", 1 << 20}, {"K", 1 << 10},
		{"B", 1},
	}
	mult := 1.0
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			mult = m.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, m.suffix))
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	return int64(v * mult), nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return home
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}
