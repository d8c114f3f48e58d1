package notify

import (
	"context"

	"building_monitor/internal/logger"
)

// LogSink writes alerts to the process log.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, m Message) error {
	s.log.Infow("notification", "subject", m.Subject, "body", m.Body, "at", m.At)
	return nil
}
