// Package logx builds the process logger: console output for humans,
// an optional rotating JSON file for later analysis.
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// File rotation bounds. Trading sessions log one line per cycle so
// these are generous.
const (
	maxSizeMB  = 50
	maxBackups = 5
	maxAgeDays = 28
)

// New builds a logger at the given level. When file is non-empty a
// rotating JSON sink is added alongside the console writer; the
// returned closer flushes and closes it.
func New(level, file string) (zerolog.Logger, func() error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}

	var w io.Writer = console
	closer := func() error { return nil }
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		w = zerolog.MultiLevelWriter(console, rotating)
		closer = rotating.Close
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return logger, closer
}
