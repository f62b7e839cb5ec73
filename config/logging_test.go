package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWithWriters_FansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	log := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	log.Info("checkpoint accepted", "race", "maraton-2026")

	require.Contains(t, stderr.String(), "checkpoint accepted")
	require.Contains(t, file.String(), `"race":"maraton-2026"`)
	require.True(t, strings.HasPrefix(strings.TrimSpace(file.String()), "{"))
}

func TestSetupLogger_NoFileFallsBackToStderr(t *testing.T) {
	log, cleanup := SetupLogger("", slog.LevelInfo)
	require.NotNil(t, log)
	require.NoError(t, cleanup())
}
