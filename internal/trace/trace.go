// Package trace carries the optional diagnostic stream of a compilation:
// one event per pipeline stage and one per flattening decision.
package trace

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Fields are the structured attributes of an event.
type Fields map[string]any

// Tracer receives compilation events. Implementations must be safe for
// concurrent use when the same tracer is shared by parallel compilations.
type Tracer interface {
	// Enabled reports whether events are recorded at all, so callers can
	// skip building expensive fields.
	Enabled() bool

	// Event records one event of a pipeline stage.
	Event(stage, msg string, fields Fields)
}

// Nop discards every event.
var Nop Tracer = nop{}

type nop struct{}

func (nop) Enabled() bool               { return false }
func (nop) Event(string, string, Fields) {}

// OrNop returns t, or Nop when t is nil.
func OrNop(t Tracer) Tracer {
	if t == nil {
		return Nop
	}
	return t
}

// Zerolog writes events to a zerolog logger at debug level.
type Zerolog struct {
	logger zerolog.Logger
}

// NewZerolog creates a tracer over logger.
func NewZerolog(logger zerolog.Logger) *Zerolog {
	return &Zerolog{logger: logger}
}

// Enabled reports whether the logger records debug events.
func (z *Zerolog) Enabled() bool {
	return z.logger.GetLevel() <= zerolog.DebugLevel
}

// Event logs msg with the stage and fields attached.
func (z *Zerolog) Event(stage, msg string, fields Fields) {
	ev := z.logger.Debug().Str("stage", stage)
	if len(fields) > 0 {
		ev = ev.Fields(map[string]any(fields))
	}
	ev.Msg(msg)
}

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// NewLogger builds a zerolog logger writing to w at the named level, in JSON
// or as human-readable console text.
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.Logger{}, fmt.Errorf("log level %q: unknown level", level)
	}

	switch format {
	case LogFormatJSON:
	case LogFormatText:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return zerolog.Logger{}, fmt.Errorf("log format %q: unknown format", format)
	}

	ctx := zerolog.New(w).Level(lvl).With().Timestamp()
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}
