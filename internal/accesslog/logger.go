package accesslog

import (
	"context"
	"log/slog"
	"time"

	"sanctum/internal/accesslog/metrics"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// Sink receives a copy of every recorded entry for fan-out (SIEM, alerting).
// Publishing is best-effort; the durable store is the source of truth.
type Sink interface {
	Publish(ctx context.Context, entry *Entry) error
}

// Logger appends access log entries. It does not call the evaluator: callers
// must already hold an allow decision, and by the time Record runs the
// plaintext access has happened. A failed write therefore escalates (error
// log, failure metric, surfaced error) but can never retroactively block the
// access.
type Logger struct {
	store   Store
	sink    Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Logger.
type Option func(*Logger)

// WithSink attaches a fan-out sink for recorded entries.
func WithSink(sink Sink) Option {
	return func(l *Logger) {
		l.sink = sink
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLogger constructs an access logger backed by the given store.
func NewLogger(store Store, logger *slog.Logger, opts ...Option) *Logger {
	l := &Logger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record validates and appends one entry, returning the stored form.
func (l *Logger) Record(ctx context.Context, entry *Entry) (*Entry, error) {
	if entry == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "access log entry required")
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if entry.ID.IsNil() {
		entry.ID = id.NewAccessEntryID()
	}
	if entry.AccessedAt.IsZero() {
		entry.AccessedAt = l.now()
	}

	start := l.now()
	err := l.store.Append(ctx, entry)
	if l.metrics != nil {
		l.metrics.ObserveAppendLatency(l.now().Sub(start).Seconds())
	}
	if err != nil {
		// The plaintext access already happened; losing its trail is an
		// incident, not a retry-and-forget.
		if l.metrics != nil {
			l.metrics.IncrementAppendFailures()
		}
		if l.logger != nil {
			l.logger.ErrorContext(ctx, "access log write failed, audit trail incomplete",
				"conversation_id", entry.ConversationID.String(),
				"user_id", entry.AuthorizingUserID.String(),
				"feature", string(entry.Feature),
				"error", err,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to append access log entry")
	}

	if l.metrics != nil {
		l.metrics.IncrementEntriesRecorded(string(entry.Feature))
	}
	if l.logger != nil {
		l.logger.InfoContext(ctx, "ai_access_recorded",
			"log_type", "audit",
			"conversation_id", entry.ConversationID.String(),
			"user_id", entry.AuthorizingUserID.String(),
			"device_id", entry.AuthorizingDeviceID.String(),
			"feature", string(entry.Feature),
			"ai_model", entry.AIModel,
		)
	}

	l.publish(ctx, entry)
	return entry, nil
}

// List returns the newest entries for a conversation for audit queries.
func (l *Logger) List(ctx context.Context, conversationID id.ConversationID, limit int) ([]*Entry, error) {
	if conversationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "conversation ID required")
	}
	entries, err := l.store.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list access log entries")
	}
	return entries, nil
}

func (l *Logger) publish(ctx context.Context, entry *Entry) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Publish(ctx, entry); err != nil {
		if l.metrics != nil {
			l.metrics.IncrementPublishFailures()
		}
		if l.logger != nil {
			l.logger.WarnContext(ctx, "access log fan-out publish failed",
				"entry_id", entry.ID.String(),
				"error", err,
			)
		}
	}
}
