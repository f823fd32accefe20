// Package media wraps the external media tool: duration probing, normalization
// and range extraction.
package media

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/audio"
	"github.com/obiente/translate/chunkscribe/internal/command"
)

// Prober reports the total duration of a media file in seconds.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

var (
	_ Prober = (*FFprobe)(nil)
	_ Prober = WAVProber{}
)

// FFprobe asks ffprobe for the container duration.
type FFprobe struct {
	Exec    command.Executor
	Timeout time.Duration
}

func (p *FFprobe) ProbeDuration(ctx context.Context, path string) (float64, error) {
	resp, err := p.Exec.Run(ctx, command.Request{
		Name: "ffprobe",
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			path,
		},
		Timeout: p.Timeout,
	})
	if err != nil {
		return 0, apperr.New(apperr.MediaUnreadable, "probe "+path, err)
	}
	return parseSeconds(path, resp.Stdout)
}

func parseSeconds(path, out string) (float64, error) {
	// ffprobe may print one value per stream before the format entry.
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, apperr.Errorf(apperr.MediaUnreadable, "probe "+path, "no duration reported")
	}
	raw := fields[len(fields)-1]
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Errorf(apperr.MediaUnreadable, "probe "+path, "non-numeric duration %q", raw)
	}
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, apperr.Errorf(apperr.MediaUnreadable, "probe "+path, "invalid duration %v", secs)
	}
	return secs, nil
}

// WAVProber reads the duration from the RIFF header of a PCM WAV file without
// spawning a process. It only understands the normalizer's output format.
type WAVProber struct{}

func (WAVProber) ProbeDuration(_ context.Context, path string) (float64, error) {
	d, err := audio.Duration(path)
	if err != nil {
		return 0, apperr.New(apperr.MediaUnreadable, "read wav header "+path, err)
	}
	return d.Seconds(), nil
}
