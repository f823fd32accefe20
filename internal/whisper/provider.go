package whisper

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/metrics"
)

// Provider acquires engines. It falls back to FallbackModel once when the
// requested model does not fit in memory.
type Provider struct {
	Loader  Loader
	Metrics *metrics.Recorder
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

func (p *Provider) logger() *zerolog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return &log.Logger
}

// Acquire loads model on device and rebinds it to device. A bind failure is
// logged and the engine is used on the device it loaded on.
func (p *Provider) Acquire(ctx context.Context, model string, device Device) (Engine, error) {
	lg := p.logger()

	eng, err := p.Loader.Load(ctx, model, device)
	if err != nil {
		if !IsResourceExhausted(err) || model == FallbackModel {
			return nil, apperr.New(apperr.ModelLoadFailed, fmt.Sprintf("load model %q on %s", model, device), err)
		}
		lg.Warn().
			Err(err).
			Str("model", model).
			Str("fallback", FallbackModel).
			Str("device", string(device)).
			Msg("whisper: model does not fit, falling back to smaller model")
		p.Metrics.RecordFallback(model, FallbackModel)

		eng, err = p.Loader.Load(ctx, FallbackModel, device)
		if err != nil {
			return nil, apperr.New(apperr.ModelLoadFailed, fmt.Sprintf("load fallback model %q on %s", FallbackModel, device), err)
		}
	}

	// Some load paths quietly stay on the CPU, so bind explicitly.
	if err := eng.Bind(device); err != nil {
		lg.Warn().
			Err(err).
			Str("requested", string(device)).
			Str("device", string(eng.Device())).
			Msg("whisper: could not bind engine to requested device, using device as loaded")
	}

	lg.Info().
		Str("engine", eng.Name()).
		Str("model", eng.Model()).
		Str("device", string(eng.Device())).
		Msg("whisper: model ready")
	return eng, nil
}
