package events

import (
	"context"
	"encoding/json"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// StdoutWriter logs generation events instead of publishing them.
type StdoutWriter struct {
	log *zap.SugaredLogger
}

func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{log: zap.S().Named("generation_events")}
}

func (s *StdoutWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	fields := []any{"event_id", e.ID(), "event_type", e.Type(), "topic", topic}

	var payload struct {
		JobID    int64  `json:"job_id"`
		FileType string `json:"file_type"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(e.Data(), &payload); err == nil && payload.JobID != 0 {
		fields = append(fields, "job_id", payload.JobID, "file_type", payload.FileType, "status", payload.Status)
	} else {
		fields = append(fields, "payload", string(e.Data()))
	}

	s.logger().Infow("generation event", fields...)
	return nil
}

func (s *StdoutWriter) Close(_ context.Context) error {
	return nil
}

func (s *StdoutWriter) logger() *zap.SugaredLogger {
	if s.log == nil {
		return zap.S().Named("generation_events")
	}
	return s.log
}
