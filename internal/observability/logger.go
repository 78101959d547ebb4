package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log field keys shared by the publisher, consumer, and retry engine.
const (
	FieldCorrelationID  = "correlationId"
	FieldMessageID      = "messageId"
	FieldRetryCount     = "retryCount"
	FieldNextRetryCount = "nextRetryCount"
	FieldType           = "type"
)

const serviceName = "notification-dispatch"

type (
	correlationIDKey struct{}
	messageIDKey     struct{}
)

func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]any{"service": serviceName}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		return zapcore.InfoLevel, nil
	}

	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, correlationIDKey{})
}

// WithMessageID tags ctx with the queue message being handled.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return withValue(ctx, messageIDKey{}, messageID)
}

func MessageIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, messageIDKey{})
}

// WithContextLogger stamps the correlation and message ids carried by ctx onto logger.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	fields := make([]zap.Field, 0, 2)
	if correlationID, ok := CorrelationIDFromContext(ctx); ok {
		fields = append(fields, zap.String(FieldCorrelationID, correlationID))
	}
	if messageID, ok := MessageIDFromContext(ctx); ok {
		fields = append(fields, zap.String(FieldMessageID, messageID))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// NotificationFields describes one delivery of a queued notification.
// notificationType is omitted while the payload is still undecoded.
func NotificationFields(notificationType string, retryCount int) []zap.Field {
	fields := []zap.Field{zap.Int(FieldRetryCount, retryCount)}
	if notificationType != "" {
		fields = append(fields, zap.String(FieldType, notificationType))
	}
	return fields
}

func withValue(ctx context.Context, key any, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
