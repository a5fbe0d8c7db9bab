package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/audioscribe/idgen"
)

// Event types.
const (
	EventDocumentExtracted = "document.extracted"
	EventDocumentRejected  = "document.rejected"
	EventCreditsDebited    = "credits.debited"
	EventCreditsRefunded   = "credits.refunded"
)

// ServiceName tags every event written by this process.
const ServiceName = "audioscribe"

// BusinessEvent is a domain-level event.
type BusinessEvent struct {
	EventType  string
	EntityType string // "job", "user"
	EntityID   string
	UserID     string
	Action     string
	Details    map[string]any // stored as JSON
	Success    bool
}

// EventLogger writes business events.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator overrides the evt_ + UUIDv7 event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records event. Failures are logged and swallowed.
func (l *EventLogger) LogEvent(ctx context.Context, event BusinessEvent) {
	var details sql.NullString
	if len(event.Details) > 0 {
		if b, err := json.Marshal(event.Details); err == nil {
			details = sql.NullString{String: string(b), Valid: true}
		}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (
			event_id, event_type, service_name, entity_type, entity_id,
			user_id, action, details, success, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.newID(), event.EventType, ServiceName, event.EntityType, event.EntityID,
		event.UserID, event.Action, details, event.Success, time.Now().Unix())
	if err != nil {
		slog.Error("observability event log failed", "error", err, "event_type", event.EventType)
	}
}

// RetentionConfig is the per-table retention in days. Zero keeps rows forever.
type RetentionConfig struct {
	MetricsDays   int
	EventLogsDays int
	HTTPLogsDays  int
}

// Cleanup deletes rows older than the configured retention.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	targets := []struct {
		table  string
		column string
		days   int
	}{
		{"metrics_timeseries", "timestamp", cfg.MetricsDays},
		{"business_event_logs", "created_at", cfg.EventLogsDays},
		{"http_request_logs", "created_at", cfg.HTTPLogsDays},
	}
	now := time.Now().Unix()
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		q := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.table, t.column)
		if _, err := db.ExecContext(ctx, q, now-int64(t.days*86400)); err != nil {
			return fmt.Errorf("cleanup %s: %w", t.table, err)
		}
	}
	return nil
}
