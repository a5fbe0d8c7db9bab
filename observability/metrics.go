// Package observability records extraction metrics, business events and
// HTTP request logs in SQLite.
//
// All writers are best effort: a failing observability store is logged and
// never fails the request that produced the datapoint.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Metric names.
const (
	MetricExtractionDurationMs = "extraction_duration_ms"
	MetricExtractionRanges     = "extraction_ranges_count"
	MetricExtractionTextLength = "extraction_text_length"
	MetricUploadBytes          = "upload_bytes"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string // "milliseconds", "count", "bytes", "runes"
}

// MetricsManager buffers metrics and flushes them in one transaction when
// the buffer fills, on every tick, and on Close.
type MetricsManager struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []*Metric

	stop chan struct{}
	done chan struct{}
}

// NewMetricsManager starts the flush loop. 100 and 5s are sensible values.
func NewMetricsManager(db *sql.DB, bufferSize int, flushInterval time.Duration) *MetricsManager {
	mm := &MetricsManager{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go mm.flushLoop()
	return mm
}

// Record queues m. It only blocks while a full buffer is being flushed.
func (mm *MetricsManager) Record(m *Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.buffer = append(mm.buffer, m)
	if len(mm.buffer) >= mm.bufferSize {
		mm.flushLocked()
	}
}

// RecordSimple records an unlabelled datapoint.
func (mm *MetricsManager) RecordSimple(name string, value float64, unit string) {
	mm.Record(&Metric{Name: name, Value: value, Unit: unit})
}

// Flush writes the buffered metrics now.
func (mm *MetricsManager) Flush() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.flushLocked()
}

// Query returns datapoints newest first. An empty name matches all metrics,
// a nil since is unbounded and a non-positive limit returns everything.
func (mm *MetricsManager) Query(ctx context.Context, name string, since *time.Time, limit int) ([]*Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	var args []any
	if name != "" {
		q += " AND metric_name = ?"
		args = append(args, name)
	}
	if since != nil {
		q += " AND timestamp >= ?"
		args = append(args, since.Unix())
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := mm.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var (
			m          Metric
			ts         int64
			labelsJSON sql.NullString
			unit       sql.NullString
		)
		if err := rows.Scan(&m.Name, &ts, &m.Value, &labelsJSON, &unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0)
		m.Unit = unit.String
		if labelsJSON.Valid {
			_ = json.Unmarshal([]byte(labelsJSON.String), &m.Labels)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Close flushes what is left and stops the flush loop.
func (mm *MetricsManager) Close() error {
	close(mm.stop)
	<-mm.done
	return nil
}

func (mm *MetricsManager) flushLoop() {
	defer close(mm.done)
	ticker := time.NewTicker(mm.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-mm.stop:
			mm.Flush()
			return
		case <-ticker.C:
			mm.Flush()
		}
	}
}

func (mm *MetricsManager) flushLocked() {
	if len(mm.buffer) == 0 {
		return
	}
	defer func() { mm.buffer = mm.buffer[:0] }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("observability metrics: begin tx", "error", err, "dropped", len(mm.buffer))
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("observability metrics: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, m := range mm.buffer {
		var labelsJSON sql.NullString
		if len(m.Labels) > 0 {
			if b, err := json.Marshal(m.Labels); err == nil {
				labelsJSON = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, m.Name, m.Timestamp.Unix(), m.Value, labelsJSON, m.Unit); err != nil {
			slog.Error("observability metrics: insert", "error", err, "metric", m.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("observability metrics: commit", "error", err)
	}
}
