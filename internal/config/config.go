package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ZHEYE_PARTNER_CODE or
// ZHEYE_SESSION_BACKEND.
const EnvPrefix = "ZHEYE"

// Session backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the resolved client configuration.
type Config struct {
	APIBaseURL        string        `mapstructure:"api_base_url"`
	PartnerCode       string        `mapstructure:"partner_code"`
	PageSize          int           `mapstructure:"page_size"`
	LoadingClearDelay time.Duration `mapstructure:"loading_clear_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RateLimit         float64       `mapstructure:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	Trace             bool          `mapstructure:"trace"`
	Theme             string        `mapstructure:"theme"`
	Session           Session       `mapstructure:"session"`
	Log               Log           `mapstructure:"log"`

	// Path is the config file that was read, empty when none existed.
	Path string `mapstructure:"-"`
}

// Session selects where the token is persisted.
type Session struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

const (
	defaultConfigPath  = "~/.config/zheye/config.toml"
	defaultAPIBaseURL  = "http://apis.imooc.com/api/"
	defaultSessionPath = "~/.config/zheye/session.toml"
	defaultLogFile     = "~/.local/share/zheye/zheye.log"
	defaultRedisAddr   = "localhost:6379"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base_url", defaultAPIBaseURL)
	v.SetDefault("partner_code", "")
	v.SetDefault("page_size", 6)
	v.SetDefault("loading_clear_delay", "200ms")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_burst", 1)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("trace", false)
	v.SetDefault("theme", "default")
	v.SetDefault("session.backend", BackendFile)
	v.SetDefault("session.path", defaultSessionPath)
	v.SetDefault("session.redis_addr", defaultRedisAddr)
	v.SetDefault("session.redis_key", "zheye:token")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", defaultLogFile)
}

// Load reads the TOML config at path (empty uses the default location),
// applies ZHEYE_* environment overrides and falls back to defaults when the
// file is missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found := true
	if _, err := os.Stat(resolved); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config: %w", err)
		}
		found = false
	}
	if found {
		v.SetConfigFile(resolved)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if found {
		cfg.Path = resolved
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	c.PartnerCode = strings.TrimSpace(c.PartnerCode)
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.LoadingClearDelay < 0 {
		return fmt.Errorf("loading_clear_delay must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if c.RateBurst < 1 {
		c.RateBurst = 1
	}

	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	switch c.Session.Backend {
	case "":
		c.Session.Backend = BackendFile
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	c.Session.Path = mustExpand(orDefault(c.Session.Path, defaultSessionPath))

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch c.Log.Format {
	case "":
		c.Log.Format = "json"
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if strings.TrimSpace(c.Log.File) != "" && c.Log.File != "-" {
		c.Log.File = mustExpand(c.Log.File)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
