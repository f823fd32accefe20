package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupConsoleAndFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "run.log")
	closer, err := Setup(Options{Level: "DEBUG", File: file, MaxSizeMB: 1, Console: &console, NoColor: true})
	require.NoError(t, err)

	log.Debug().Str("window", "3/4").Msg("pipeline: window done")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "pipeline: window done")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"window":"3/4"`)
}

func TestSetupLevelFilters(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var console bytes.Buffer
	_, err := Setup(Options{Level: "warn", Console: &console, NoColor: true})
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestSetupBadLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}
