package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistration   ActivityEventType = "auth.register.success"
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventLogout         ActivityEventType = "auth.logout"
	ActivityEventTokenRefresh   ActivityEventType = "auth.token.refresh"
	ActivityEventInviteIssued   ActivityEventType = "auth.invite.issued"
	ActivityEventInviteAccepted ActivityEventType = "auth.invite.accepted"
	ActivityEventResetRequested ActivityEventType = "auth.password.reset.requested"
	ActivityEventResetSuccess   ActivityEventType = "auth.password.reset"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
// Request attributes are optional and filled only when the caller passed
// them in explicitly.
type ActivityEvent struct {
	Category   string
	EventType  ActivityEventType
	Level      string
	Message    string
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
	URL        string
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func normalizeActivityEvent(event *ActivityEvent) {
	if event.Category == "" {
		event.Category = "auth"
	}

	if event.Level == "" {
		event.Level = "info"
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
}
