package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/config"
	"github.com/obiente/translate/chunkscribe/internal/media"
	"github.com/obiente/translate/chunkscribe/internal/whisper"
)

// Stand-ins for the external tools. ffmpeg touches its last argument,
// ffprobe prints a fixed duration and whisper writes one segment per clip.
const (
	fakeFFmpeg = `#!/bin/sh
for a; do last="$a"; done
printf 'RIFF' > "$last"
`
	fakeFFprobe = `#!/bin/sh
echo 12.5
`
	fakeWhisper = `#!/bin/sh
clip="$1"; shift
while [ $# -gt 0 ]; do
  if [ "$1" = "--output_dir" ]; then out="$2"; fi
  shift
done
stem=$(basename "$clip" .wav)
printf '{"text":"hi","language":"en","segments":[{"start":0.5,"end":1.5,"text":" hi"}]}' > "$out/$stem.json"
`
)

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func setupTools(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FFMPEG_PATH", writeTool(t, dir, "ffmpeg", fakeFFmpeg))
	t.Setenv("FFPROBE_PATH", writeTool(t, dir, "ffprobe", fakeFFprobe))
	t.Setenv("WHISPER_PROGRAM", writeTool(t, dir, "whisper", fakeWhisper))
	t.Setenv("CHUNKSCRIBE_TEMP_DIR", t.TempDir())
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTranscribeEndToEnd(t *testing.T) {
	setupTools(t)
	src := filepath.Join(t.TempDir(), "lecture.mp4")
	require.NoError(t, os.WriteFile(src, []byte("media"), 0o644))
	metricsFile := filepath.Join(t.TempDir(), "run.prom")

	stdout, _, err := execute(t, "transcribe", src, "--device", "cpu", "--window", "5", "--metrics-file", metricsFile)
	require.NoError(t, err)

	base := strings.TrimSuffix(src, ".mp4")
	assert.Equal(t, base+".json\n"+base+".txt\n", stdout)

	txt, err := os.ReadFile(base + ".txt")
	require.NoError(t, err)
	assert.Equal(t, "[0.5-1.5] hi\n[5.5-6.5] hi\n[10.5-11.5] hi", string(txt))

	raw, err := os.ReadFile(base + ".json")
	require.NoError(t, err)
	var doc struct {
		Segments []struct {
			Start float64 `json:"start"`
		} `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Segments, 3)
	assert.Equal(t, 10.5, doc.Segments[2].Start)

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `chunkscribe_windows_total{status="success"} 3`)
	assert.Contains(t, string(prom), `chunkscribe_command_executions_total{command="whisper",status="success"} 3`)
}

func TestTranscribeMissingSource(t *testing.T) {
	setupTools(t)
	_, _, err := execute(t, "transcribe", filepath.Join(t.TempDir(), "nope.wav"), "--device", "cpu")
	require.Error(t, err)
	assert.Equal(t, apperr.InputNotFound, apperr.KindOf(err))
	assert.Equal(t, 1, exitCode(err))
}

func TestTranscribeUsageErrors(t *testing.T) {
	_, _, err := execute(t, "transcribe")
	assert.Equal(t, 2, exitCode(err))

	_, _, err = execute(t, "transcribe", "a.wav", "--window", "soon")
	assert.Equal(t, 2, exitCode(err))

	_, _, err = execute(t, "transcribe", "a.wav", "--engine", "magic")
	assert.Equal(t, apperr.InvalidConfig, apperr.KindOf(err))
	assert.Equal(t, 2, exitCode(err))
}

func TestTranscribeFlagsOverrideEnv(t *testing.T) {
	setupTools(t)
	t.Setenv("CHUNKSCRIBE_ENGINE", "http")
	src := filepath.Join(t.TempDir(), "talk.wav")
	require.NoError(t, os.WriteFile(src, []byte("media"), 0o644))

	_, _, err := execute(t, "transcribe", src, "--device", "cpu")
	assert.Equal(t, apperr.InvalidConfig, apperr.KindOf(err))

	stdout, _, err := execute(t, "transcribe", src, "--device", "cpu", "--engine", "cli")
	require.NoError(t, err)
	base := strings.TrimSuffix(src, ".wav")
	assert.Equal(t, base+".json\n"+base+".txt\n", stdout)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "chunkscribe dev\n", stdout)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 1, exitCode(apperr.Errorf(apperr.Timeout, "ffmpeg", "too slow")))
	assert.Equal(t, 2, exitCode(usageError{errors.New("bad flag")}))
}

func TestBuildPipelineSelectsCollaborators(t *testing.T) {
	cfg := config.Default()
	cfg.Probe = "wav"
	p := buildPipeline(cfg, whisper.CPU, nil, nil)
	assert.IsType(t, media.WAVProber{}, p.Prober)
	assert.Equal(t, whisper.CPU, p.Settings.Device)

	provider, ok := p.Engines.(*whisper.Provider)
	require.True(t, ok)
	assert.IsType(t, &whisper.CLILoader{}, provider.Loader)

	cfg.Engine, cfg.EngineURL = "http", "http://localhost:8000"
	provider = buildPipeline(cfg, whisper.CPU, nil, nil).Engines.(*whisper.Provider)
	assert.IsType(t, &whisper.HTTPLoader{}, provider.Loader)
}
