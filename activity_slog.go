package identity

import (
	"context"
	"log/slog"
)

// SlogActivitySink records activity events as structured log lines.
type SlogActivitySink struct {
	logger *slog.Logger
}

// NewSlogActivitySink wraps an slog logger; nil uses slog.Default.
func NewSlogActivitySink(logger *slog.Logger) *SlogActivitySink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogActivitySink{logger: logger}
}

// Record implements ActivitySink.
func (s *SlogActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	normalizeActivityEvent(&event)

	attrs := []any{
		slog.String("category", event.Category),
		slog.String("event", string(event.EventType)),
		slog.String("user_id", event.UserID),
		slog.String("actor_type", event.Actor.Type),
		slog.Time("occurred_at", event.OccurredAt),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.URL != "" {
		attrs = append(attrs, slog.String("url", event.URL))
	}
	if len(event.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", event.Metadata))
	}

	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}

	switch event.Level {
	case "warn":
		s.logger.WarnContext(ctx, msg, attrs...)
	case "error":
		s.logger.ErrorContext(ctx, msg, attrs...)
	default:
		s.logger.InfoContext(ctx, msg, attrs...)
	}

	return nil
}

var _ ActivitySink = (*SlogActivitySink)(nil)
