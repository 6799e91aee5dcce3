package guard

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventPasswordResetStarted  ActivityEventType = "auth.password_reset.started"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password_reset.success"
	ActivityEventActivationStarted     ActivityEventType = "auth.activation.started"
	ActivityEventActivationSuccess     ActivityEventType = "auth.activation.success"
	ActivityEventUserRegistered        ActivityEventType = "auth.user.registered"
	ActivityEventTokenCleanupCompleted ActivityEventType = "auth.tokens.cleanup"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
// Login attempts always produce one event, success or failure, so audit and
// throttling consumers see every attempt.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	Username   string
	Success    bool
	Metadata   map[string]any
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
