package logger

import (
	"context"
	"log/slog"
	"time"
)

// Authentication event types
const (
	EventRegistered           = "registered"
	EventLoginSucceeded       = "login_succeeded"
	EventLoginFailed          = "login_failed"
	EventSecondFactorAccepted = "second_factor_accepted"
	EventSecondFactorRejected = "second_factor_rejected"
	EventTwoFactorEnabled     = "two_factor_enabled"
	EventTwoFactorDisabled    = "two_factor_disabled"
	EventLogout               = "logout"
)

// AuthEvent is one step of a user's authentication flow
type AuthEvent struct {
	EventType     string
	UserID        string
	Email         string // masked before it is written
	Success       bool
	FailureReason string
}

// EventLogger writes authentication events as "auth_event" records next to the
// request log
type EventLogger struct {
	logger *slog.Logger
}

// NewEventLogger creates a new EventLogger
func NewEventLogger(logger *slog.Logger) *EventLogger {
	return &EventLogger{
		logger: logger,
	}
}

// LogAuthEvent logs one authentication event. Failures are logged at warn.
func (el *EventLogger) LogAuthEvent(ctx context.Context, event AuthEvent) {
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	el.logger.LogAttrs(ctx, level, "auth_event", attrs...)
}
