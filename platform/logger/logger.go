// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// AgentIDKey is the context key for the acting agent ID
	AgentIDKey contextKey = "agent_id"
	// SessionIDKey is the context key for the workbench session ID
	SessionIDKey contextKey = "session_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with request_id, agent_id and session_id
// extracted from the context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	attrs := make([]any, 0, 3)
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if agentID, ok := ctx.Value(AgentIDKey).(int64); ok && agentID != 0 {
		attrs = append(attrs, slog.Int64("agent_id", agentID))
	}
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok && sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.With(attrs...)}
}

// WithSession stores the session and agent on ctx for WithContext.
func WithSession(ctx context.Context, sessionID string, agentID int64) context.Context {
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	return context.WithValue(ctx, AgentIDKey, agentID)
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// AuthEvent logs authentication events
func (l *Logger) AuthEvent(event, email string, success bool, reason string) {
	if success {
		l.Info("auth_event",
			slog.String("event", event),
			slog.String("email", email),
			slog.Bool("success", success),
		)
	} else {
		l.Warn("auth_event",
			slog.String("event", event),
			slog.String("email", email),
			slog.Bool("success", success),
			slog.String("reason", reason),
		)
	}
}

// RemoteCall logs a call to the system of record.
func (l *Logger) RemoteCall(method, path string, status int, latency time.Duration, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", float64(latency.Microseconds())/1000),
	}
	if err != nil {
		l.Warn("remote_call", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	l.Debug("remote_call", attrs...)
}

// CommandOutcome logs the result of a workbench command.
func (l *Logger) CommandOutcome(command, entity string, entityID int64, outcome string, err error) {
	attrs := []any{
		slog.String("command", command),
		slog.String("entity", entity),
		slog.Int64("entity_id", entityID),
		slog.String("outcome", outcome),
	}
	if err != nil {
		l.Warn("command", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	l.Info("command", attrs...)
}

// StoreError logs journal store errors
func (l *Logger) StoreError(operation string, err error) {
	l.Error("store_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}

// Asynq adapts the logger to the queue library's logger interface.
func (l *Logger) Asynq() QueueLogger {
	return QueueLogger{l: l.With(slog.String("component", "asynq"))}
}

// QueueLogger satisfies asynq.Logger.
type QueueLogger struct {
	l *slog.Logger
}

func (q QueueLogger) Debug(args ...interface{}) { q.l.Debug(fmt.Sprint(args...)) }
func (q QueueLogger) Info(args ...interface{})  { q.l.Info(fmt.Sprint(args...)) }
func (q QueueLogger) Warn(args ...interface{})  { q.l.Warn(fmt.Sprint(args...)) }
func (q QueueLogger) Error(args ...interface{}) { q.l.Error(fmt.Sprint(args...)) }

func (q QueueLogger) Fatal(args ...interface{}) {
	q.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
