package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ErrNotFound is returned by Load when the config file does not exist.
// The login command bootstraps a new file in that case.
var ErrNotFound = errors.New("config: file not found")

// Load reads the TOML config at path, applies ONELIST_* environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv overlays ONELIST_* environment variables onto the file values.
// Environment always wins over the file, matching container deployments
// where secrets arrive through the environment.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString("ONELIST_CLIENT_ID", &cfg.Server.ClientID)
	setString("ONELIST_CLIENT_SECRET", &cfg.Server.ClientSecret)
	setString("ONELIST_REFRESH_TOKEN", &cfg.Server.RefreshToken)
	setString("ONELIST_TENANT", &cfg.Server.Tenant)
	setString("ONELIST_LISTEN", &cfg.Server.Listen)
	setString("ONELIST_SITE_NAME", &cfg.Server.SiteName)
	setString("ONELIST_ROOT_DIR", &cfg.RootDir)
	setString("ONELIST_LOG_LEVEL", &cfg.LogLevel)

	if v, ok := os.LookupEnv("ONELIST_REDIRECT_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.RedirectPort = port
		}
	}

	if v, ok := os.LookupEnv("ONELIST_USE_PROXY"); ok {
		if useProxy, err := strconv.ParseBool(v); err == nil {
			cfg.Server.UseProxy = useProxy
		}
	}
}
