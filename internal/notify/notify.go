// Package notify fans download events out to the configured sinks.
package notify

import (
	"github.com/rs/zerolog"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

type Sink interface {
	Notify(types.Event)
}

// Fanout delivers every event to each sink in order. A panicking sink is
// logged and skipped.
type Fanout []Sink

func (f Fanout) Notify(ev types.Event) {
	for _, s := range f {
		deliver(s, ev)
	}
}

func deliver(s Sink, ev types.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger := utils.GetLogger("notify")
			logger.Error().Str("task", ev.Snapshot.TaskID).Msgf("sink panicked: %v", r)
		}
	}()
	s.Notify(ev)
}

// LogSink writes terminal events at info level and progress at debug level.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{log: utils.GetLogger("notify")}
}

func NewLogSinkWith(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Notify(ev types.Event) {
	level := zerolog.DebugLevel
	if ev.Terminal {
		level = zerolog.InfoLevel
		if ev.Snapshot.Status == types.StatusError {
			level = zerolog.ErrorLevel
		}
	}
	s.log.WithLevel(level).
		Str("task", ev.Snapshot.TaskID).
		Str("file", ev.FileName).
		Str("status", string(ev.Snapshot.Status)).
		Int64("downloaded", ev.Snapshot.Downloaded).
		Int64("total", ev.Snapshot.Total).
		Msg(ev.Snapshot.InfoLine)
}
