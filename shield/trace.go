package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/audioscribe/guard"
	"github.com/hazyhaar/audioscribe/idgen"
	"github.com/hazyhaar/audioscribe/kit"
)

// TraceID tags each request with a trace ID, echoed in X-Trace-ID, and a
// per-request logger carrying it. A well-formed incoming X-Trace-ID is
// reused.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if len(traceID) > 64 || guard.ValidateIdentifier(traceID) != nil {
			traceID = idgen.Trace()
		}

		ctx := kit.WithTransport(kit.WithTraceID(r.Context(), traceID), kit.TransportHTTP)
		w.Header().Set("X-Trace-ID", traceID)

		logger := slog.Default().With(
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", ExtractIP(r),
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Info("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger returns the per-request logger, or slog.Default() outside a
// traced request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
