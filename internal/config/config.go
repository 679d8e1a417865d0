// Package config implements TOML configuration loading, environment
// overrides, validation, and the atomic write-back that persists a rotated
// refresh token so a restart can resume without interactive login.
package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPath is where the config file lives unless --config says otherwise.
const DefaultPath = "config.toml"

// Defaults applied by Load for absent fields.
const (
	DefaultListen       = ":3000"
	DefaultSiteName     = "onelist"
	DefaultTenant       = "common"
	DefaultRedirectPort = 10080
	DefaultCacheTTL     = 10 * time.Minute
	DefaultListTTL      = 10 * time.Minute
)

// Config is the top-level structure parsed from the TOML file.
type Config struct {
	Server ServerConfig `toml:"server"`
	Cache  CacheConfig  `toml:"cache"`

	// RootDir is the virtual root inside the drive that the API exposes;
	// everything above it stays hidden. Normalized to a leading slash.
	RootDir string `toml:"root_dir"`

	LogLevel string `toml:"log_level"`
}

// ServerConfig holds the app registration, the session bootstrap material,
// and the HTTP listener settings.
type ServerConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	// RefreshToken is written back after every rotation; empty means the
	// next start needs an interactive login.
	RefreshToken string `toml:"refresh_token"`
	Tenant       string `toml:"tenant"`
	RedirectPort int    `toml:"redirect_port"`
	Listen       string `toml:"listen"`
	SiteName     string `toml:"site_name"`
	// UseProxy streams thumbnails and downloads through this server
	// instead of redirecting the browser to the signed upstream URL.
	UseProxy bool `toml:"use_proxy"`
}

// CacheConfig holds the cache tier TTLs as duration strings ("10m").
type CacheConfig struct {
	TTL     string `toml:"ttl"`
	ListTTL string `toml:"list_ttl"`
}

// GetTTL parses the tier TTL, falling back to the default on absence.
func (c CacheConfig) GetTTL() (time.Duration, error) {
	return parseTTL(c.TTL, DefaultCacheTTL)
}

// GetListTTL parses the listing tier TTL.
func (c CacheConfig) GetListTTL() (time.Duration, error) {
	return parseTTL(c.ListTTL, DefaultListTTL)
}

func parseTTL(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("config: duration %q must be positive", raw)
	}

	return d, nil
}

// Validate checks required fields and normalizes defaults in place.
func (c *Config) Validate() error {
	if c.Server.ClientID == "" {
		return fmt.Errorf("config: server.client_id is required")
	}

	if c.Server.ClientSecret == "" {
		return fmt.Errorf("config: server.client_secret is required")
	}

	if c.Server.Tenant == "" {
		c.Server.Tenant = DefaultTenant
	}

	if c.Server.RedirectPort == 0 {
		c.Server.RedirectPort = DefaultRedirectPort
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Server.SiteName == "" {
		c.Server.SiteName = DefaultSiteName
	}

	c.RootDir = normalizeRoot(c.RootDir)

	if _, err := c.Cache.GetTTL(); err != nil {
		return err
	}

	if _, err := c.Cache.GetListTTL(); err != nil {
		return err
	}

	return nil
}

// normalizeRoot forces a leading slash and drops a trailing one, so path
// prefix stripping behaves the same for "home", "/home" and "/home/".
func normalizeRoot(root string) string {
	root = strings.TrimSuffix(root, "/")
	if root == "" {
		return ""
	}

	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}

	return root
}
