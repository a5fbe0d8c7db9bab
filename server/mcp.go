package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	mcpauth "github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/audioscribe/auth"
	"github.com/hazyhaar/audioscribe/docpipe"
	"github.com/hazyhaar/audioscribe/formatting"
	"github.com/hazyhaar/audioscribe/jobs"
	"github.com/hazyhaar/audioscribe/kit"
	"github.com/hazyhaar/audioscribe/observability"
	"github.com/hazyhaar/audioscribe/shield"
)

// mcpHandler serves the MCP tools to bearer-authenticated callers. The
// token's user is bound to the MCP session.
func (s *Server) mcpHandler() http.Handler {
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.MCP }, nil)
	return mcpauth.RequireBearerToken(s.verifyMCPToken, nil)(h)
}

func (s *Server) verifyMCPToken(_ context.Context, token string, _ *http.Request) (*mcpauth.TokenInfo, error) {
	claims, err := auth.ValidateToken(s.opts.JWTSecret, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", mcpauth.ErrInvalidToken, err)
	}
	return &mcpauth.TokenInfo{UserID: claims.User(), Expiration: claims.ExpiresAt.Time}, nil
}

func (s *Server) toolPrice(tool string) (jobs.Kind, int64) {
	switch tool {
	case docpipe.ToolExtract:
		return jobs.KindExtract, s.opts.Costs.ExtractCost
	case docpipe.ToolValidate:
		return jobs.KindValidate, s.opts.Costs.ValidateCost
	default:
		return jobs.KindEstimate, s.opts.Costs.EstimateCost
	}
}

// meterTool charges the caller for one tool call, runs it under the
// processing limit and records the job, as the upload endpoints do.
func (s *Server) meterTool(tool string) kit.Middleware {
	kind, cost := s.toolPrice(tool)
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			userID := kit.GetUserID(ctx)
			if userID == "" {
				return nil, errors.New("authentication required")
			}
			job := jobs.Job{UserID: userID, Kind: kind, Filename: filepath.Base(req.(*docpipe.PathRequest).Path)}

			debit, err := s.charge(ctx, userID, kind, cost)
			if err != nil {
				_, public := publicError(err)
				return nil, public
			}
			if err := s.acquire(ctx); err != nil {
				s.refund(ctx, debit)
				return nil, errUnavailable
			}
			start := time.Now()
			resp, err := next(ctx, req)
			s.release()
			job.DurationMs = time.Since(start).Milliseconds()

			ctx = context.WithoutCancel(ctx)
			if err != nil {
				s.refund(ctx, debit)
				job.Status = jobs.StatusFailed
				if formatting.IsFormatError(err) {
					job.Status = jobs.StatusInvalid
				}
				_, public := publicError(err)
				job.Error = public.Error()
				job = s.record(ctx, job)
				s.Events.LogEvent(ctx, observability.BusinessEvent{
					EventType:  observability.EventDocumentRejected,
					EntityType: "job",
					EntityID:   job.ID,
					UserID:     userID,
					Action:     string(kind),
					Details:    map[string]any{"filename": job.Filename, "tool": tool, "error": err.Error()},
				})
				return nil, err
			}

			job.Status = jobs.StatusDone
			switch out := resp.(type) {
			case *formatting.Result:
				job.Paragraphs = out.Metadata.TotalParagraphs
				job.Ranges = out.Metadata.TotalFormattingRanges
				job.TextLength = out.Metadata.FinalTextLength
			case formatting.Validation:
				job.Paragraphs = out.ParagraphCount
				if !out.Valid {
					job.Status = jobs.StatusInvalid
				}
			case formatting.Estimate:
				job.Paragraphs = out.ParagraphCount
				if !out.Valid {
					job.Status = jobs.StatusInvalid
				}
			}
			job = s.record(ctx, job)
			shield.GetLogger(ctx).Debug("mcp tool metered", "tool", tool, "job_id", job.ID, "cost", cost)
			s.Metrics.Record(&observability.Metric{
				Name:   observability.MetricExtractionDurationMs,
				Value:  float64(job.DurationMs),
				Unit:   "milliseconds",
				Labels: map[string]string{"kind": string(kind), "transport": kit.TransportMCP},
			})
			return resp, nil
		}
	}
}
