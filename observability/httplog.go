package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hazyhaar/audioscribe/kit"
)

// RequestLog is one row of http_request_logs.
type RequestLog struct {
	TraceID    string
	Method     string
	Path       string
	Status     int
	DurationMs int64
	UserID     string
	IP         string
	UserAgent  string
	At         time.Time
}

// HTTPLogger persists request logs from a buffered channel. When the buffer
// is full new entries are dropped.
type HTTPLogger struct {
	db   *sql.DB
	ch   chan *RequestLog
	done chan struct{}
}

// NewHTTPLogger starts the writer goroutine. Close drains it.
func NewHTTPLogger(db *sql.DB, bufferSize int) *HTTPLogger {
	l := &HTTPLogger{
		db:   db,
		ch:   make(chan *RequestLog, bufferSize),
		done: make(chan struct{}),
	}
	go l.writeLoop()
	return l
}

// Log queues entry without blocking.
func (l *HTTPLogger) Log(entry *RequestLog) {
	select {
	case l.ch <- entry:
	default:
		slog.Warn("observability http log: buffer full, dropping entry", "path", entry.Path)
	}
}

// Close writes the queued entries and stops the writer. Log must not be
// called afterwards.
func (l *HTTPLogger) Close() error {
	close(l.ch)
	<-l.done
	return nil
}

func (l *HTTPLogger) writeLoop() {
	defer close(l.done)
	for e := range l.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := l.db.ExecContext(ctx, `
			INSERT INTO http_request_logs (
				trace_id, method, path, status_code, duration_ms,
				user_id, ip_address, user_agent, created_at
			) VALUES (?,?,?,?,?,?,?,?,?)`,
			e.TraceID, e.Method, e.Path, e.Status, e.DurationMs,
			e.UserID, e.IP, e.UserAgent, e.At.Unix())
		cancel()
		if err != nil {
			slog.Error("observability http log: insert", "error", err, "path", e.Path)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Flush keeps streamed responses (MCP event streams) flowing.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware logs every request passing through it. Mount it inside the
// authentication middleware so the user ID is known.
func (l *HTTPLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		l.Log(&RequestLog{
			TraceID:    kit.GetTraceID(r.Context()),
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			DurationMs: time.Since(start).Milliseconds(),
			UserID:     kit.GetUserID(r.Context()),
			IP:         ip,
			UserAgent:  r.UserAgent(),
			At:         start,
		})
	})
}
