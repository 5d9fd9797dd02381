// Package config reads process settings from the environment and an
// optional HCL file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	DefaultDomain       = "https://appthwack.com"
	DefaultAPIRoot      = "/api"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 30 * time.Second
	DefaultCacheTTL     = 24 * time.Hour
	DefaultThwackbin    = ":8080"
)

// ErrNoAPIKey is returned by RequireAPIKey when no key was configured.
var ErrNoAPIKey = errors.New("no API key configured: set APPTHWACK_API_KEY or api_key")

type Config struct {
	APIKey        string
	Domain        string
	APIRoot       string
	Timeout       time.Duration
	LogLevel      string
	DatabaseURL   string
	CacheDir      string
	CacheTTL      time.Duration
	PollInterval  time.Duration
	ThwackbinAddr string
}

// fileConfig mirrors Config for HCL decoding. Absent attributes stay nil and
// leave the environment value in place.
type fileConfig struct {
	APIKey        *string `hcl:"api_key,optional"`
	Domain        *string `hcl:"domain,optional"`
	APIRoot       *string `hcl:"api_root,optional"`
	Timeout       *string `hcl:"timeout,optional"`
	LogLevel      *string `hcl:"log_level,optional"`
	DatabaseURL   *string `hcl:"database_url,optional"`
	CacheDir      *string `hcl:"cache_dir,optional"`
	CacheTTL      *string `hcl:"cache_ttl,optional"`
	PollInterval  *string `hcl:"poll_interval,optional"`
	ThwackbinAddr *string `hcl:"thwackbin_addr,optional"`
}

// FromEnv builds a Config from APPTHWACK_* and related variables.
func FromEnv() (Config, error) {
	c := Config{
		APIKey:        os.Getenv("APPTHWACK_API_KEY"),
		Domain:        getEnvOrDefault("APPTHWACK_DOMAIN", DefaultDomain),
		APIRoot:       getEnvOrDefault("APPTHWACK_API_ROOT", DefaultAPIRoot),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		CacheDir:      getEnvOrDefault("APPTHWACK_CACHE_DIR", defaultCacheDir()),
		ThwackbinAddr: getEnvOrDefault("THWACKBIN_ADDR", DefaultThwackbin),
	}
	var err error
	if c.Timeout, err = durationFromEnv("APPTHWACK_TIMEOUT", DefaultTimeout); err != nil {
		return c, err
	}
	if c.CacheTTL, err = durationFromEnv("APPTHWACK_CACHE_TTL", DefaultCacheTTL); err != nil {
		return c, err
	}
	if c.PollInterval, err = durationFromEnv("APPTHWACK_POLL_INTERVAL", DefaultPollInterval); err != nil {
		return c, err
	}
	return c, nil
}

// Load reads the environment and then applies the file at path, if any.
func Load(path string) (Config, error) {
	c, err := FromEnv()
	if err != nil {
		return c, err
	}
	if path == "" {
		return c, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := c.ApplyHCL(path, src); err != nil {
		return c, err
	}
	return c, nil
}

// ApplyHCL overrides c with the attributes set in src. filename must end in
// .hcl or .json; it selects the syntax and appears in diagnostics.
func (c *Config) ApplyHCL(filename string, src []byte) error {
	var f fileConfig
	if err := hclsimple.Decode(filename, src, nil, &f); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}

	setString(&c.APIKey, f.APIKey)
	setString(&c.Domain, f.Domain)
	setString(&c.APIRoot, f.APIRoot)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.DatabaseURL, f.DatabaseURL)
	setString(&c.CacheDir, f.CacheDir)
	setString(&c.ThwackbinAddr, f.ThwackbinAddr)

	if err := setDuration(&c.Timeout, "timeout", f.Timeout); err != nil {
		return err
	}
	if err := setDuration(&c.CacheTTL, "cache_ttl", f.CacheTTL); err != nil {
		return err
	}
	return setDuration(&c.PollInterval, "poll_interval", f.PollInterval)
}

func (c Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func durationFromEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, name string, v *string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "thwack")
	}
	return filepath.Join(os.TempDir(), "thwack")
}
