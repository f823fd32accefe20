package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/audio"
	"github.com/obiente/translate/chunkscribe/internal/command"
)

// Filter produces the normalized waveform and cuts windows out of it.
type Filter interface {
	// Normalize writes a mono 16 kHz WAV of src to dst with a band-pass
	// applied. dst is only created once the tool has succeeded.
	Normalize(ctx context.Context, src, dst string, highPassHz, lowPassHz int) error
	// ExtractRange writes [startSec, startSec+lengthSec) of src to dst. The
	// tool clips lengthSec at end of stream.
	ExtractRange(ctx context.Context, src, dst string, startSec, lengthSec float64) error
}

var _ Filter = (*FFmpeg)(nil)

// FFmpeg implements Filter with the ffmpeg binary.
type FFmpeg struct {
	Exec    command.Executor
	Timeout time.Duration
}

func (f *FFmpeg) Normalize(ctx context.Context, src, dst string, highPassHz, lowPassHz int) error {
	// Same directory as dst so the final rename stays on one filesystem.
	tmp := filepath.Join(filepath.Dir(dst), ".partial-"+filepath.Base(dst))
	args := []string{"-y", "-loglevel", "error", "-i", src}
	if af := bandPass(highPassHz, lowPassHz); af != "" {
		args = append(args, "-af", af)
	}
	args = append(args,
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", "1",
		"-f", "wav",
		tmp,
	)

	_, err := f.Exec.Run(ctx, command.Request{Name: "ffmpeg", Args: args, Timeout: f.Timeout})
	if err != nil {
		_ = os.Remove(tmp)
		return apperr.New(apperr.FilterFailed, "normalize "+src, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return apperr.New(apperr.FilterFailed, "normalize "+src, err)
	}
	return nil
}

func (f *FFmpeg) ExtractRange(ctx context.Context, src, dst string, startSec, lengthSec float64) error {
	if startSec < 0 || lengthSec <= 0 {
		return apperr.Errorf(apperr.FilterFailed, "extract "+src, "invalid range start=%v length=%v", startSec, lengthSec)
	}
	args := []string{
		"-y", "-loglevel", "error",
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(lengthSec),
		"-i", src,
		dst,
	}
	_, err := f.Exec.Run(ctx, command.Request{Name: "ffmpeg", Args: args, Timeout: f.Timeout})
	if err != nil {
		_ = os.Remove(dst)
		return apperr.New(apperr.FilterFailed, fmt.Sprintf("extract %s [%s+%s]", src, formatSeconds(startSec), formatSeconds(lengthSec)), err)
	}
	return nil
}

// bandPass builds the -af graph. A cutoff of 0 or less drops that stage.
func bandPass(highPassHz, lowPassHz int) string {
	var stages []string
	if highPassHz > 0 {
		stages = append(stages, fmt.Sprintf("highpass=f=%d", highPassHz))
	}
	if lowPassHz > 0 {
		stages = append(stages, fmt.Sprintf("lowpass=f=%d", lowPassHz))
	}
	return strings.Join(stages, ",")
}

// formatSeconds keeps microseconds so a tail of a few samples is not cut to 0.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 6, 64)
}
