package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/media"
	"github.com/obiente/translate/chunkscribe/internal/metrics"
	"github.com/obiente/translate/chunkscribe/internal/progress"
	"github.com/obiente/translate/chunkscribe/internal/transcript"
	"github.com/obiente/translate/chunkscribe/internal/whisper"
)

// Transcriber runs an engine over the windows of a normalized waveform.
type Transcriber struct {
	Prober   media.Prober
	Filter   media.Filter
	Language string
	// Workers > 1 processes that many windows at once. Engines that do not
	// report ConcurrentSafe are still entered by one window at a time.
	Workers  int
	WorkDir  string
	RunID    string
	Reporter progress.Reporter
	Metrics  *metrics.Recorder
}

// Outcome is the merged result of a transcription pass.
type Outcome struct {
	Segments []transcript.Segment
	Total    float64 // seconds of audio
	Windows  int
}

// Run returns the segments of wav on the source timeline, in window order.
func (t *Transcriber) Run(ctx context.Context, wav string, eng whisper.Engine, windowLengthSec float64, device whisper.Device) ([]transcript.Segment, error) {
	out, err := t.Transcribe(ctx, wav, eng, windowLengthSec, device)
	return out.Segments, err
}

// Transcribe is Run with the probed duration and window count.
func (t *Transcriber) Transcribe(ctx context.Context, wav string, eng whisper.Engine, windowLengthSec float64, device whisper.Device) (Outcome, error) {
	total, err := t.Prober.ProbeDuration(ctx, wav)
	if err != nil {
		return Outcome{}, err
	}
	windows := Partition(total, windowLengthSec)
	log.Info().
		Float64("total_sec", total).
		Float64("window_sec", windowLengthSec).
		Int("windows", len(windows)).
		Msg("pipeline: transcribing")

	opts := whisper.Options{
		Language:      t.Language,
		FastPrecision: device == whisper.Accelerator && eng.Device() == whisper.Accelerator,
	}
	tr := &tracker{t: t, total: total, windows: len(windows)}

	var res transcript.Result
	if t.Workers <= 1 || len(windows) <= 1 {
		for _, w := range windows {
			if err := ctx.Err(); err != nil {
				return Outcome{}, apperr.New(apperr.RecognitionFailed, "transcribe", err)
			}
			began := time.Now()
			segs, err := t.window(ctx, wav, eng, w, opts, nil)
			tr.done(w, segs, time.Since(began), err)
			if err != nil {
				return Outcome{}, err
			}
			res.Append(segs...)
		}
		return Outcome{Segments: res.Segments, Total: total, Windows: len(windows)}, nil
	}

	gateSize := int64(1)
	if cs, ok := eng.(whisper.ConcurrentSafe); ok && cs.ConcurrentSafe() {
		gateSize = int64(t.Workers)
	}
	gate := semaphore.NewWeighted(gateSize)

	perWindow := make([][]transcript.Segment, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.Workers)
	for _, w := range windows {
		w := w
		g.Go(func() error {
			began := time.Now()
			segs, err := t.window(gctx, wav, eng, w, opts, gate)
			tr.done(w, segs, time.Since(began), err)
			if err != nil {
				return err
			}
			perWindow[w.Index] = segs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}
	for _, segs := range perWindow {
		res.Append(segs...)
	}
	return Outcome{Segments: res.Segments, Total: total, Windows: len(windows)}, nil
}

// window extracts, transcribes and rebases one window. The clip is removed
// on every path.
func (t *Transcriber) window(ctx context.Context, wav string, eng whisper.Engine, w Window, opts whisper.Options, gate *semaphore.Weighted) ([]transcript.Segment, error) {
	clip := filepath.Join(t.WorkDir, fmt.Sprintf("window-%04d.wav", w.Index))
	defer os.Remove(clip)

	if err := t.Filter.ExtractRange(ctx, wav, clip, w.Start, w.Span); err != nil {
		return nil, err
	}

	if gate != nil {
		if err := gate.Acquire(ctx, 1); err != nil {
			return nil, apperr.New(apperr.RecognitionFailed, w.String(), err)
		}
		defer gate.Release(1)
	}
	raw, err := eng.Transcribe(ctx, clip, opts)
	if err != nil {
		return nil, apperr.New(apperr.RecognitionFailed, w.String(), err)
	}

	segs := make([]transcript.Segment, 0, len(raw.Segments))
	for _, s := range raw.Segments {
		segs = append(segs, Rebase(w, s))
	}
	return segs, nil
}

// tracker reports progress as windows finish, in completion order.
type tracker struct {
	t         *Transcriber
	total     float64
	windows   int
	mu        sync.Mutex
	processed float64
	finished  int
}

func (tr *tracker) done(w Window, segs []transcript.Segment, elapsed time.Duration, err error) {
	tr.mu.Lock()
	if err == nil {
		tr.processed += w.Span
		tr.finished++
	}
	processed, finished := tr.processed, tr.finished
	tr.mu.Unlock()

	tr.t.Metrics.RecordWindow(err == nil, elapsed.Seconds(), len(segs), w.Span)
	if err != nil {
		log.Error().Err(err).Int("window", w.Index).Msg("pipeline: window failed")
		return
	}
	log.Debug().
		Int("window", w.Index).
		Float64("start", w.Start).
		Float64("span", w.Span).
		Int("segments", len(segs)).
		Dur("took", elapsed).
		Msg("pipeline: window done")
	if tr.t.Reporter == nil {
		return
	}
	tr.t.Reporter.Report(progress.Event{
		Type:      progress.Window,
		RunID:     tr.t.RunID,
		Window:    w.Index + 1,
		Windows:   tr.windows,
		Processed: processed,
		Total:     tr.total,
		Segments:  len(segs),
		Detail:    fmt.Sprintf("%d/%d windows", finished, tr.windows),
		Time:      time.Now(),
	})
}
