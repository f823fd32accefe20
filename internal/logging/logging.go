// Package logging configures the global zerolog logger for a run.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string
	File       string // optional rotated JSON log
	MaxSizeMB  int
	MaxBackups int
	// Console receives human-readable output, usually os.Stderr.
	Console io.Writer
	NoColor bool
}

// Setup installs the global logger. The returned closer flushes and closes
// the log file and is a no-op when there is none.
func Setup(o Options) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	lvl := zerolog.InfoLevel
	if o.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(o.Level))
		if err != nil {
			return nopCloser{}, err
		}
		lvl = l
	}

	var writers []io.Writer
	if o.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: o.Console, NoColor: o.NoColor, TimeFormat: "15:04:05"})
	}
	var closer io.Closer = nopCloser{}
	if o.File != "" {
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
