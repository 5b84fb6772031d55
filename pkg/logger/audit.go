package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent describes a security relevant event on an account
type AuditEvent struct {
	EventType     string
	UserID        int64
	Username      string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit events to the application log under msg "audit"
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// LogAuthAttempt logs a login or logout attempt
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	al.log(ctx, "auth", event)
}

// LogPasswordChange logs a password rotation. reason is "change" or "reset".
func (al *AuditLogger) LogPasswordChange(ctx context.Context, userID int64, reason string, success bool) {
	al.log(ctx, "password", AuditEvent{
		EventType: "password_" + reason,
		UserID:    userID,
		Success:   success,
	})
}

// LogAccountAction logs an administrative action taken by actorID
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType string, actorID, targetID int64, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["target_user_id"] = formatID(targetID)
	al.log(ctx, "account", AuditEvent{
		EventType: eventType,
		UserID:    actorID,
		Success:   true,
		Metadata:  metadata,
	})
}

func (al *AuditLogger) log(ctx context.Context, auditType string, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != 0 {
		attrs = append(attrs, slog.Int64("user_id", event.UserID))
	}
	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
