package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the process logger. Debug builds get the human readable console
// writer, everything else gets JSON lines on stdout.
func New(debug bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

func NewWithWriter(out io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
