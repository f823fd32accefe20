//go:build whisper_cpp

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/audio"
	"github.com/obiente/translate/chunkscribe/internal/transcript"
)

type cppLoader struct{ cfg CppConfig }

// NewCppLoader returns a Loader backed by the whisper.cpp Go bindings.
func NewCppLoader(cfg CppConfig) Loader {
	if cfg.Threads == 0 {
		cfg.Threads = uint(runtime.NumCPU())
		log.Info().Uint("threads", cfg.Threads).Msg("whisper: using default thread count (CPU cores)")
	}
	return &cppLoader{cfg: cfg}
}

func (l *cppLoader) Load(ctx context.Context, model string, device Device) (Engine, error) {
	path := ModelFile(l.cfg.ModelDir, model)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	m, err := whisperpkg.New(path)
	if err != nil {
		if IsResourceExhausted(err) {
			return nil, fmt.Errorf("load model %s: %w: %v", path, ErrResourceExhausted, err)
		}
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	log.Info().Str("model", path).Msg("whisper: model loaded successfully")
	return &EngineCPP{model: m, name: model, threads: l.cfg.Threads}, nil
}

// EngineCPP runs whisper.cpp in process. The bindings do not expose device
// selection, so it always reports CPU.
type EngineCPP struct {
	model   whisperpkg.Model
	name    string
	threads uint
	mu      sync.Mutex // Protect concurrent access to the model
}

func (e *EngineCPP) Name() string   { return "whispercpp" }
func (e *EngineCPP) Model() string  { return e.name }
func (e *EngineCPP) Device() Device { return CPU }

func (e *EngineCPP) Bind(device Device) error {
	if device != CPU {
		return errors.New("whisper.cpp bindings do not support device selection")
	}
	return nil
}

func (e *EngineCPP) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe decodes the clip and runs a full-context pass over it.
func (e *EngineCPP) Transcribe(ctx context.Context, clipPath string, opts Options) (RawResult, error) {
	if err := ctx.Err(); err != nil {
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "transcribe "+clipPath, err)
	}
	samples, sr, err := audio.LoadFloat32(clipPath)
	if err != nil {
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "decode "+clipPath, err)
	}
	if sr != audio.SampleRate {
		samples = audio.ResampleLinear(samples, sr, audio.SampleRate)
	}
	if len(samples) == 0 {
		return RawResult{}, nil
	}

	// Serialize access to the model to prevent concurrent processing crashes
	e.mu.Lock()
	defer e.mu.Unlock()

	wctx, err := e.model.NewContext()
	if err != nil {
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "create context", err)
	}
	wctx.SetThreads(e.threads)
	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "set language "+lang, err)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		log.Error().Err(err).Int("samples", len(samples)).Msg("whisper: process failed")
		return RawResult{}, apperr.New(apperr.RecognitionFailed, "process "+clipPath, err)
	}

	var res RawResult
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RawResult{}, apperr.New(apperr.RecognitionFailed, "read segment", err)
		}
		res.Segments = append(res.Segments, transcript.Segment{
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	res.Language = wctx.DetectedLanguage()

	log.Debug().
		Str("clip", clipPath).
		Str("lang", res.Language).
		Int("segments", len(res.Segments)).
		Int("samples", len(samples)).
		Msg("whisper: transcription complete")
	return res, nil
}
