package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chikage0o0/onelist/internal/config"
)

func TestNewRootCmd_Wiring(t *testing.T) {
	cmd := newRootCmd()

	assert.Equal(t, "onelist", cmd.Use)

	for _, flag := range []string{"config", "verbose", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing persistent flag %q", flag)
	}

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "login")
}

func TestBuildLogger_LevelPrecedence(t *testing.T) {
	origVerbose, origQuiet := flagVerbose, flagQuiet
	t.Cleanup(func() { flagVerbose, flagQuiet = origVerbose, origQuiet })

	cfg := &config.Config{LogLevel: "warn"}

	flagVerbose, flagQuiet = false, false
	logger := buildLogger(cfg)
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug), "config level warn must suppress debug")

	flagVerbose = true
	logger = buildLogger(cfg)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug), "verbose flag must win over config level")

	flagVerbose, flagQuiet = false, true
	logger = buildLogger(cfg)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo), "quiet flag must suppress info")
}
