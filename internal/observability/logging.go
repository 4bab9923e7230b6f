// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	GlobalLogger = &Logger{Logger: slog.New(handler)}
}

// WSLogger provides structured logging for WebSocket gateway operations.
type WSLogger struct {
	hubName string
	logger  *Logger
}

// NewWSLogger creates a new WSLogger for the given hub.
func NewWSLogger(hubName string) *WSLogger {
	return &WSLogger{
		hubName: hubName,
		logger:  GlobalLogger,
	}
}

// LogConnect logs a WebSocket connection event.
func (l *WSLogger) LogConnect(ctx context.Context, userID uint, sessionID string) {
	l.logger.InfoContext(ctx, "websocket connected",
		slog.String("hub", l.hubName),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("session_id", sessionID),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(ctx context.Context, userID uint, sessionID string, reason string) {
	l.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("hub", l.hubName),
		slog.Uint64("user_id", uint64(userID)),
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(ctx context.Context, userID uint, roomID uint, err error, eventType string) {
	l.logger.ErrorContext(ctx, "websocket error",
		slog.String("hub", l.hubName),
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("room_id", uint64(roomID)),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogMessage logs an incoming WebSocket message.
func (l *WSLogger) LogMessage(ctx context.Context, userID uint, roomID uint, messageType string) {
	l.logger.InfoContext(ctx, "websocket message",
		slog.String("hub", l.hubName),
		slog.Uint64("user_id", uint64(userID)),
		slog.Uint64("room_id", uint64(roomID)),
		slog.String("message_type", messageType),
	)
}

// JobLogger provides structured logging for moderation pipeline jobs.
type JobLogger struct {
	logger *Logger
}

// NewJobLogger creates a new JobLogger.
func NewJobLogger() *JobLogger {
	return &JobLogger{logger: GlobalLogger}
}

// LogStart logs the start of a moderation job.
func (l *JobLogger) LogStart(ctx context.Context, kind string, roomID uint) {
	l.logger.InfoContext(ctx, "moderation job started",
		slog.String("kind", kind),
		slog.Uint64("room_id", uint64(roomID)),
	)
}

// LogOutcome logs the outcome of a moderation job.
func (l *JobLogger) LogOutcome(ctx context.Context, kind string, roomID uint, outcome string) {
	l.logger.InfoContext(ctx, "moderation job finished",
		slog.String("kind", kind),
		slog.Uint64("room_id", uint64(roomID)),
		slog.String("outcome", outcome),
	)
}

// LogFailure logs a moderation job failure.
func (l *JobLogger) LogFailure(ctx context.Context, kind string, roomID uint, attempt int, err error) {
	l.logger.ErrorContext(ctx, "moderation job failed",
		slog.String("kind", kind),
		slog.Uint64("room_id", uint64(roomID)),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}
