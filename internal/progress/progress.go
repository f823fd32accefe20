// Package progress publishes run progress events to the log and to any
// attached listeners.
package progress

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event types.
const (
	Started = "started"
	Window  = "window"
	Done    = "done"
	Failed  = "error"
)

// Event is one progress notification. Fields that do not apply to Type are
// left zero and omitted on the wire.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source,omitempty"`
	Window    int       `json:"window,omitempty"`  // 1-based
	Windows   int       `json:"windows,omitempty"` // total
	Processed float64   `json:"processed_sec,omitempty"`
	Total     float64   `json:"total_sec,omitempty"`
	Segments  int       `json:"segments,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"ts"`
}

// Percent is Processed/Total in [0,100]; 100 when Total is unknown.
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		return 100
	}
	p := e.Processed / e.Total * 100
	if p > 100 {
		p = 100
	}
	return p
}

// Reporter receives events. Implementations must be safe for concurrent use.
type Reporter interface {
	Report(Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Report(Event) {}

// Log writes events to a zerolog logger.
type Log struct {
	Logger *zerolog.Logger // nil means the global logger
}

func (l Log) Report(e Event) {
	lg := l.Logger
	if lg == nil {
		lg = &log.Logger
	}
	switch e.Type {
	case Started:
		lg.Info().Str("run", e.RunID).Str("source", e.Source).Msg("progress: run started")
	case Window:
		lg.Info().
			Int("window", e.Window).
			Int("windows", e.Windows).
			Int("segments", e.Segments).
			Str("processed", formatProgress(e)).
			Msg("progress: window transcribed")
	case Done:
		lg.Info().Str("run", e.RunID).Int("segments", e.Segments).Float64("total_sec", e.Total).Msg("progress: run finished")
	case Failed:
		lg.Error().Str("run", e.RunID).Str("detail", e.Detail).Msg("progress: run failed")
	}
}

func formatProgress(e Event) string {
	return formatSeconds(e.Processed) + "/" + formatSeconds(e.Total)
}

func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Truncate(100 * time.Millisecond).String()
}

// Multi fans an event out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}
