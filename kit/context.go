// Package kit carries request-scoped values and the transport-neutral
// endpoint type shared by the HTTP and MCP surfaces.
package kit

import "context"

type ctxKey int

const (
	userIDKey ctxKey = iota
	transportKey
	traceIDKey
)

// Transports.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
	TransportCLI  = "cli"
)

// WithUserID records the authenticated caller.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// GetUserID returns the authenticated caller, or "".
func GetUserID(ctx context.Context) string { return str(ctx, userIDKey) }

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to TransportHTTP.
func GetTransport(ctx context.Context) string {
	if t := str(ctx, transportKey); t != "" {
		return t
	}
	return TransportHTTP
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func GetTraceID(ctx context.Context) string { return str(ctx, traceIDKey) }

func str(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}
