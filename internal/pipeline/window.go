// Package pipeline drives a transcription run: it normalizes the source,
// cuts the waveform into fixed-length windows, transcribes each window and
// rebases the segments onto the source timeline.
package pipeline

import (
	"fmt"
	"math"

	"github.com/obiente/translate/chunkscribe/internal/transcript"
)

// windowEpsilon absorbs float error in total/length so that, for example,
// 0.9s in 0.3s windows is three windows and not four.
const windowEpsilon = 1e-9

// Window is the half-open range [Start, Start+Span) of the source.
type Window struct {
	Index int
	Start float64
	Span  float64
}

func (w Window) End() float64 { return w.Start + w.Span }

func (w Window) String() string {
	return fmt.Sprintf("window %d [%.3f, %.3f)", w.Index, w.Start, w.End())
}

// Partition splits total seconds into ceil(total/length) windows. The last
// window holds the remainder. length <= 0 yields one window covering
// everything and total <= 0 yields none.
func Partition(total, length float64) []Window {
	if total <= 0 || math.IsNaN(total) {
		return nil
	}
	if length <= 0 || length >= total {
		return []Window{{Index: 0, Start: 0, Span: total}}
	}
	n := int(math.Ceil(total/length - windowEpsilon))
	out := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * length
		span := length
		if i == n-1 {
			span = total - start
		}
		out = append(out, Window{Index: i, Start: start, Span: span})
	}
	return out
}

// Rebase moves a segment timed relative to w onto the source timeline.
// Engines may pad past the end of a clip, so local times are clamped into
// [0, w.Span] first; this keeps windows from overlapping.
func Rebase(w Window, s transcript.Segment) transcript.Segment {
	start := clamp(s.Start, 0, w.Span)
	end := clamp(s.End, start, w.Span)
	return transcript.Segment{Start: start, End: end, Text: s.Text}.Shift(w.Start)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
