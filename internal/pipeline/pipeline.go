package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/media"
	"github.com/obiente/translate/chunkscribe/internal/metrics"
	"github.com/obiente/translate/chunkscribe/internal/output"
	"github.com/obiente/translate/chunkscribe/internal/progress"
	"github.com/obiente/translate/chunkscribe/internal/transcript"
	"github.com/obiente/translate/chunkscribe/internal/whisper"
)

// Settings are the per-run knobs.
type Settings struct {
	Model           string
	Device          whisper.Device
	WindowLengthSec float64
	HighPassHz      int
	LowPassHz       int
	Language        string
	Workers         int
	// TempDir holds the per-run work directory; empty means os.TempDir().
	TempDir string
}

// Acquirer hands out a loaded engine. *whisper.Provider implements it.
type Acquirer interface {
	Acquire(ctx context.Context, model string, device whisper.Device) (whisper.Engine, error)
}

// Pipeline wires the collaborators of a run together.
type Pipeline struct {
	Settings Settings
	Engines  Acquirer
	Prober   media.Prober
	Filter   media.Filter
	Reporter progress.Reporter
	Metrics  *metrics.Recorder
	// NewRunID defaults to uuid.NewString.
	NewRunID func() string
}

type Request struct {
	Source string
	// OutputBase is the output path without extension. Empty means the
	// source path without its extension.
	OutputBase string
}

type Result struct {
	RunID    string
	JSONPath string
	TXTPath  string
	Segments []transcript.Segment
	Duration float64 // seconds of audio
	Windows  int
	Model    string
	Device   whisper.Device
	Elapsed  time.Duration
}

// OutputBase strips the extension from source.
func OutputBase(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source))
}

// Run transcribes req.Source and writes both outputs. Nothing is written
// unless every window succeeds.
func (p *Pipeline) Run(ctx context.Context, req Request) (res Result, err error) {
	began := time.Now()
	if p.NewRunID == nil {
		p.NewRunID = uuid.NewString
	}
	res.RunID = p.NewRunID()
	reporter := p.Reporter
	if reporter == nil {
		reporter = progress.Nop{}
	}
	lg := log.With().Str("run", res.RunID).Logger()

	if _, statErr := os.Stat(req.Source); statErr != nil {
		kind := apperr.InputNotFound
		if !errors.Is(statErr, os.ErrNotExist) {
			kind = apperr.MediaUnreadable
		}
		return res, apperr.New(kind, "open "+req.Source, statErr)
	}
	base := req.OutputBase
	if base == "" {
		base = OutputBase(req.Source)
	}

	reporter.Report(progress.Event{Type: progress.Started, RunID: res.RunID, Source: req.Source, Time: time.Now()})
	defer func() {
		if err != nil {
			reporter.Report(progress.Event{Type: progress.Failed, RunID: res.RunID, Detail: err.Error(), Time: time.Now()})
		}
	}()

	eng, err := p.Engines.Acquire(ctx, p.Settings.Model, p.Settings.Device)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := eng.Close(); cerr != nil {
			lg.Warn().Err(cerr).Msg("pipeline: closing engine")
		}
	}()
	res.Model, res.Device = eng.Model(), eng.Device()

	tmp := p.Settings.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	workDir := filepath.Join(tmp, "chunkscribe-"+res.RunID)
	if err := os.Mkdir(workDir, 0o700); err != nil {
		return res, apperr.New(apperr.FilterFailed, "create work dir", err)
	}
	defer func() {
		if rerr := os.RemoveAll(workDir); rerr != nil {
			lg.Warn().Err(rerr).Str("dir", workDir).Msg("pipeline: removing work dir")
		}
	}()

	normalized := filepath.Join(workDir, "normalized.wav")
	lg.Info().Str("source", req.Source).Int("high_pass_hz", p.Settings.HighPassHz).Int("low_pass_hz", p.Settings.LowPassHz).Msg("pipeline: normalizing")
	if err := p.Filter.Normalize(ctx, req.Source, normalized, p.Settings.HighPassHz, p.Settings.LowPassHz); err != nil {
		return res, err
	}

	t := &Transcriber{
		Prober:   p.Prober,
		Filter:   p.Filter,
		Language: p.Settings.Language,
		Workers:  p.Settings.Workers,
		WorkDir:  workDir,
		RunID:    res.RunID,
		Reporter: reporter,
		Metrics:  p.Metrics,
	}
	out, err := t.Transcribe(ctx, normalized, eng, p.Settings.WindowLengthSec, p.Settings.Device)
	if err != nil {
		return res, err
	}
	if verr := transcript.ValidateTimeline(out.Segments); verr != nil {
		lg.Warn().Err(verr).Msg("pipeline: transcript timeline is out of order")
	}

	res.JSONPath, res.TXTPath, err = output.Write(out.Segments, base)
	if err != nil {
		return res, err
	}
	res.Segments, res.Duration, res.Windows = out.Segments, out.Total, out.Windows
	res.Elapsed = time.Since(began)

	reporter.Report(progress.Event{
		Type:      progress.Done,
		RunID:     res.RunID,
		Source:    req.Source,
		Windows:   out.Windows,
		Processed: out.Total,
		Total:     out.Total,
		Segments:  len(out.Segments),
		Time:      time.Now(),
	})
	lg.Info().
		Str("json", res.JSONPath).
		Str("txt", res.TXTPath).
		Int("segments", len(res.Segments)).
		Dur("elapsed", res.Elapsed).
		Msg("pipeline: done")
	return res, nil
}
