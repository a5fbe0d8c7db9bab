// Package server exposes the document pipeline over HTTP: authenticated
// upload endpoints for extraction, pre-flight validation, estimation and
// rendered previews, plus the caller's job history and credit balance.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/audioscribe/auth"
	"github.com/hazyhaar/audioscribe/config"
	"github.com/hazyhaar/audioscribe/credits"
	"github.com/hazyhaar/audioscribe/docpipe"
	"github.com/hazyhaar/audioscribe/jobs"
	"github.com/hazyhaar/audioscribe/observability"
	"github.com/hazyhaar/audioscribe/render"
	"github.com/hazyhaar/audioscribe/shield"
)

// multipartOverhead is the body allowance on top of the file size ceiling
// for multipart boundaries and headers.
const multipartOverhead = 1 << 20

// Options are the tunables of a Server.
type Options struct {
	JWTSecret     []byte
	MaxConcurrent int
	Costs         config.CreditsConfig
	TempDir       string // "" uses os.TempDir

	TrustedProxies []netip.Prefix
}

// Deps are the collaborators of a Server. HTTPLog and MCP are optional;
// New registers the pipeline tools on MCP, metered like the upload
// endpoints.
type Deps struct {
	DB       *sql.DB // holds shield.Schema
	Pipeline *docpipe.Pipeline
	Renderer *render.Renderer
	Ledger   *credits.Ledger
	Jobs     *jobs.Store
	Metrics  *observability.MetricsManager
	Events   *observability.EventLogger
	HTTPLog  *observability.HTTPLogger
	MCP      *mcp.Server
}

// Server is the audioscribe HTTP front.
type Server struct {
	Deps
	opts    Options
	sem     chan struct{}
	limiter *shield.RateLimiter
	router  chi.Router
}

// New builds the router.
func New(d Deps, opts Options) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	s := &Server{
		Deps: d,
		opts: opts,
		sem:  make(chan struct{}, opts.MaxConcurrent),
	}
	if d.MCP != nil {
		d.Pipeline.RegisterMCP(d.MCP, s.meterTool)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// RateLimiter returns the limiter so callers can start its reloader.
func (s *Server) RateLimiter() *shield.RateLimiter { return s.limiter }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	stack, rl := shield.APIStack(s.DB, s.Pipeline.MaxFileSize()+multipartOverhead)
	rl.TrustProxies(s.opts.TrustedProxies...)
	s.limiter = rl
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Use(auth.Middleware(s.opts.JWTSecret))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		if s.HTTPLog != nil {
			r.Use(s.HTTPLog.Middleware)
		}

		r.Post("/api/documents/extract", s.handleUpload(jobs.KindExtract, s.opts.Costs.ExtractCost, s.extract))
		r.Post("/api/documents/validate", s.handleUpload(jobs.KindValidate, s.opts.Costs.ValidateCost, s.validate))
		r.Post("/api/documents/estimate", s.handleUpload(jobs.KindEstimate, s.opts.Costs.EstimateCost, s.estimate))
		r.Post("/api/documents/preview", s.handlePreview)
		r.Get("/api/documents/jobs", s.handleListJobs)
		r.Get("/api/documents/jobs/{id}", s.handleGetJob)
		r.Get("/api/credits", s.handleCredits)
		r.Get("/api/credits/history", s.handleCreditHistory)

		if s.MCP != nil {
			r.Handle("/mcp", s.mcpHandler())
		}
	})

	return r
}

// acquire takes a processing slot, waiting until one frees up or ctx ends.
func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() { <-s.sem }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
