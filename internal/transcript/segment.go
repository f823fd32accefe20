// Package transcript holds the segment types shared by the pipeline, the
// engines and the output writer.
package transcript

import "fmt"

// Segment is one recognized span. Start and End are seconds from the start
// of the original source once the pipeline has rebased them.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the ordered, append-only sequence produced by a run.
type Result struct {
	Segments []Segment `json:"segments"`
}

// Append adds segs in order.
func (r *Result) Append(segs ...Segment) {
	r.Segments = append(r.Segments, segs...)
}

// Shift returns a copy of s moved by offset seconds.
func (s Segment) Shift(offset float64) Segment {
	return Segment{Start: s.Start + offset, End: s.End + offset, Text: s.Text}
}

// TimelineError describes the first segment that breaks the global ordering.
type TimelineError struct {
	Index  int
	Reason string
	Prev   Segment
	Cur    Segment
}

func (e *TimelineError) Error() string {
	return fmt.Sprintf("segment %d: %s (prev %.3f-%.3f, cur %.3f-%.3f)",
		e.Index, e.Reason, e.Prev.Start, e.Prev.End, e.Cur.Start, e.Cur.End)
}

// ValidateTimeline checks start <= end for every segment, that starts never
// decrease and that no segment begins before the previous one ends. It
// returns a *TimelineError for the first violation.
func ValidateTimeline(segs []Segment) error {
	for i, s := range segs {
		if s.Start > s.End {
			return &TimelineError{Index: i, Reason: "start after end", Cur: s}
		}
		if i == 0 {
			continue
		}
		prev := segs[i-1]
		if s.Start < prev.Start {
			return &TimelineError{Index: i, Reason: "start before previous start", Prev: prev, Cur: s}
		}
		if s.Start < prev.End {
			return &TimelineError{Index: i, Reason: "overlaps previous segment", Prev: prev, Cur: s}
		}
	}
	return nil
}
