package config

import "sync"

// Holder provides thread-safe access to the loaded config and its file
// path. The refresh scheduler and the serve command both reach persistence
// through a shared Holder, so refresh-token write-back happens in exactly
// one place.
type Holder struct {
	mu   sync.Mutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder for the config loaded from path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.cfg
}

// Path returns the config file path. Immutable, so no locking.
func (h *Holder) Path() string {
	return h.path
}

// SaveRefreshToken updates the stored refresh token and writes the config
// back to disk. Called after every token rotation; a no-op when the token
// is unchanged so steady-state refreshes don't rewrite the file.
func (h *Holder) SaveRefreshToken(refreshToken string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.Server.RefreshToken == refreshToken {
		return nil
	}

	h.cfg.Server.RefreshToken = refreshToken

	return Write(h.path, h.cfg)
}
