package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/translate/chunkscribe/internal/transcript"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name   string
		total  float64
		length float64
		count  int
		last   float64
	}{
		{name: "exact multiple", total: 900, length: 300, count: 3, last: 300},
		{name: "remainder", total: 750, length: 300, count: 3, last: 150},
		{name: "shorter than window", total: 42.5, length: 300, count: 1, last: 42.5},
		{name: "fractional", total: 10.25, length: 2.5, count: 5, last: 0.25},
		{name: "float noise", total: 0.9, length: 0.3, count: 3, last: 0.3},
		{name: "single window mode", total: 1234.5, length: 0, count: 1, last: 1234.5},
		{name: "negative length", total: 12, length: -1, count: 1, last: 12},
		{name: "empty", total: 0, length: 300, count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := Partition(tt.total, tt.length)
			require.Len(t, ws, tt.count)
			if tt.count == 0 {
				return
			}
			if tt.length > 0 {
				assert.Equal(t, int(math.Ceil(tt.total/tt.length-windowEpsilon)), len(ws))
			}
			var sum float64
			for i, w := range ws {
				assert.Equal(t, i, w.Index)
				assert.Greater(t, w.Span, 0.0)
				if i > 0 {
					assert.InDelta(t, ws[i-1].End(), w.Start, 1e-9)
				}
				sum += w.Span
			}
			assert.InDelta(t, tt.total, sum, 1e-9)
			assert.InDelta(t, tt.last, ws[len(ws)-1].Span, 1e-9)
			assert.Equal(t, 0.0, ws[0].Start)
		})
	}
}

func TestPartitionProperty(t *testing.T) {
	for _, length := range []float64{1, 7, 30, 300} {
		for i := 0; i < 2000; i += 37 {
			total := float64(i) + 0.5
			ws := Partition(total, length)
			want := int(math.Ceil(total / length))
			assert.Equal(t, want, len(ws), "total=%v length=%v", total, length)
			last := ws[len(ws)-1]
			assert.InDelta(t, total-float64(len(ws)-1)*length, last.Span, 1e-9)
		}
	}
}

func TestRebase(t *testing.T) {
	w := Window{Index: 1, Start: 300, Span: 300}

	got := Rebase(w, transcript.Segment{Start: 2.0, End: 5.0, Text: "x"})
	assert.Equal(t, transcript.Segment{Start: 302.0, End: 305.0, Text: "x"}, got)
}

func TestRebaseClampsEnginePadding(t *testing.T) {
	w := Window{Index: 2, Start: 600, Span: 150}

	assert.Equal(t, transcript.Segment{Start: 740, End: 750, Text: "tail"},
		Rebase(w, transcript.Segment{Start: 140, End: 162.3, Text: "tail"}))
	assert.Equal(t, transcript.Segment{Start: 750, End: 750, Text: "past"},
		Rebase(w, transcript.Segment{Start: 151, End: 153, Text: "past"}))
	assert.Equal(t, transcript.Segment{Start: 600, End: 601, Text: "early"},
		Rebase(w, transcript.Segment{Start: -0.2, End: 1, Text: "early"}))
	assert.Equal(t, transcript.Segment{Start: 610, End: 610, Text: "inverted"},
		Rebase(w, transcript.Segment{Start: 10, End: 8, Text: "inverted"}))
}
