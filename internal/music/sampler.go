package music

import (
	"time"

	"go.uber.org/zap"
)

// LogSampler records trigger calls instead of producing audio. It stands in
// wherever no audio backend is attached: headless servers, tests, CI.
type LogSampler struct {
	log *zap.Logger
}

func NewLogSampler(log *zap.Logger) *LogSampler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSampler{log: log}
}

func (s *LogSampler) Trigger(note Note, at time.Duration) {
	s.log.Debug("trigger note",
		zap.String("note", note.Name),
		zap.String("duration", note.Duration),
		zap.String("sample", sampleFiles[note.Name]),
		zap.Duration("at", at),
	)
}

func (s *LogSampler) ReleaseAll() {
	s.log.Debug("release all notes")
}
