package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/audioscribe/credits"
	"github.com/hazyhaar/audioscribe/formatting"
	"github.com/hazyhaar/audioscribe/guard"
	"github.com/hazyhaar/audioscribe/jobs"
	"github.com/hazyhaar/audioscribe/kit"
	"github.com/hazyhaar/audioscribe/observability"
	"github.com/hazyhaar/audioscribe/render"
	"github.com/hazyhaar/audioscribe/shield"
)

const maxListLimit = 100

// step runs one operation on a spooled upload, fills the job counters and
// returns the response body.
type step func(ctx context.Context, up *upload, job *jobs.Job) (any, error)

func (s *Server) handleUpload(kind jobs.Kind, cost int64, run step) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, job, err := s.process(r, kind, cost, run)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if job.ID != "" {
			w.Header().Set("X-Job-ID", job.ID)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, job, err := s.process(r, jobs.KindPreview, s.opts.Costs.ExtractCost,
		func(ctx context.Context, up *upload, job *jobs.Job) (any, error) {
			res, err := s.extractResult(ctx, up, job)
			if err != nil {
				return nil, err
			}
			return s.Renderer.Render(res, format)
		})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if job.ID != "" {
		w.Header().Set("X-Job-ID", job.ID)
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out.(string))
}

// process receives the upload, charges the caller, runs the step under the
// concurrency limit and records the job. A failed step refunds the charge.
func (s *Server) process(r *http.Request, kind jobs.Kind, cost int64, run step) (any, jobs.Job, error) {
	ctx := r.Context()
	userID := kit.GetUserID(ctx)

	up, err := s.receive(r)
	if err != nil {
		return nil, jobs.Job{}, err
	}
	defer up.remove()

	labels := map[string]string{"kind": string(kind)}
	s.Metrics.Record(&observability.Metric{
		Name: observability.MetricUploadBytes, Value: float64(up.size), Unit: "bytes", Labels: labels,
	})

	job := jobs.Job{UserID: userID, Kind: kind, Filename: up.name, SizeBytes: up.size}

	debit, err := s.charge(ctx, userID, kind, cost)
	if err != nil {
		return nil, job, err
	}
	if err := s.acquire(ctx); err != nil {
		s.refund(ctx, debit)
		return nil, job, err
	}
	start := time.Now()
	out, err := run(ctx, up, &job)
	s.release()
	job.DurationMs = time.Since(start).Milliseconds()

	// Bookkeeping outlives a client that hung up mid-request.
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
			Details:    map[string]any{"filename": job.Filename, "error": err.Error()},
		})
		return nil, job, err
	}

	if job.Status == "" {
		job.Status = jobs.StatusDone
	}
	job = s.record(ctx, job)

	s.Metrics.Record(&observability.Metric{
		Name: observability.MetricExtractionDurationMs, Value: float64(job.DurationMs), Unit: "milliseconds", Labels: labels,
	})
	if kind == jobs.KindExtract || kind == jobs.KindPreview {
		s.Metrics.Record(&observability.Metric{
			Name: observability.MetricExtractionRanges, Value: float64(job.Ranges), Unit: "count", Labels: labels,
		})
		s.Metrics.Record(&observability.Metric{
			Name: observability.MetricExtractionTextLength, Value: float64(job.TextLength), Unit: "runes", Labels: labels,
		})
		s.Events.LogEvent(ctx, observability.BusinessEvent{
			EventType:  observability.EventDocumentExtracted,
			EntityType: "job",
			EntityID:   job.ID,
			UserID:     userID,
			Action:     string(kind),
			Details: map[string]any{
				"filename":    job.Filename,
				"paragraphs":  job.Paragraphs,
				"ranges":      job.Ranges,
				"text_length": job.TextLength,
				"duration_ms": job.DurationMs,
			},
			Success: true,
		})
	}
	return out, job, nil
}

func (s *Server) extract(ctx context.Context, up *upload, job *jobs.Job) (any, error) {
	return s.extractResult(ctx, up, job)
}

func (s *Server) extractResult(ctx context.Context, up *upload, job *jobs.Job) (*formatting.Result, error) {
	res, err := s.Pipeline.Extract(ctx, up.path)
	if err != nil {
		return nil, err
	}
	job.Paragraphs = res.Metadata.TotalParagraphs
	job.Ranges = res.Metadata.TotalFormattingRanges
	job.TextLength = res.Metadata.FinalTextLength
	return res, nil
}

func (s *Server) validate(ctx context.Context, up *upload, job *jobs.Job) (any, error) {
	v, err := s.Pipeline.Validate(ctx, up.path)
	if err != nil {
		return nil, err
	}
	job.Paragraphs = v.ParagraphCount
	if !v.Valid {
		redact(ctx, &v, job)
	}
	return v, nil
}

func (s *Server) estimate(ctx context.Context, up *upload, job *jobs.Job) (any, error) {
	e, err := s.Pipeline.Estimate(ctx, up.path)
	if err != nil {
		return nil, err
	}
	job.Paragraphs = e.ParagraphCount
	if !e.Valid {
		redact(ctx, &e.Validation, job)
	}
	return e, nil
}

// redact replaces the parser detail of an invalid pre-flight with the
// public message and marks the job invalid.
func redact(ctx context.Context, v *formatting.Validation, job *jobs.Job) {
	shield.GetLogger(ctx).Info("document failed pre-flight", "filename", job.Filename, "error", v.Error)
	v.Error = errInvalidFile.Error()
	job.Status = jobs.StatusInvalid
	job.Error = v.Error
}

// charge debits cost from the caller. A zero cost charges nothing.
func (s *Server) charge(ctx context.Context, userID string, kind jobs.Kind, cost int64) (*credits.Movement, error) {
	if cost <= 0 {
		return nil, nil
	}
	m, err := s.Ledger.Debit(ctx, userID, cost, "document."+string(kind))
	if err != nil {
		return nil, err
	}
	s.Events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  observability.EventCreditsDebited,
		EntityType: "user",
		EntityID:   userID,
		UserID:     userID,
		Action:     string(kind),
		Details:    map[string]any{"movement_id": m.ID, "amount": cost, "balance_after": m.BalanceAfter},
		Success:    true,
	})
	return m, nil
}

func (s *Server) refund(ctx context.Context, debit *credits.Movement) {
	if debit == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m, err := s.Ledger.Refund(ctx, debit)
	if err != nil {
		shield.GetLogger(ctx).Error("credit refund failed", "movement_id", debit.ID, "user_id", debit.UserID, "error", err)
		return
	}
	s.Events.LogEvent(ctx, observability.BusinessEvent{
		EventType:  observability.EventCreditsRefunded,
		EntityType: "user",
		EntityID:   debit.UserID,
		UserID:     debit.UserID,
		Action:     credits.ReasonRefund,
		Details:    map[string]any{"movement_id": m.ID, "debit_id": debit.ID, "balance_after": m.BalanceAfter},
		Success:    true,
	})
}

// record stores job. A storage failure is logged and leaves the ID empty.
func (s *Server) record(ctx context.Context, job jobs.Job) jobs.Job {
	saved, err := s.Jobs.Record(ctx, job)
	if err != nil {
		shield.GetLogger(ctx).Error("job record failed", "kind", job.Kind, "error", err)
		return job
	}
	return saved
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := s.Jobs.ListByUser(ctx, kit.GetUserID(ctx), min(queryInt(r, "limit", 20), maxListLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if guard.ValidateIdentifier(id) != nil {
		writeError(w, http.StatusNotFound, errors.New("job not found"))
		return
	}
	job, err := s.Jobs.Get(ctx, kit.GetUserID(ctx), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, errors.New("job not found"))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := kit.GetUserID(ctx)
	balance, err := s.Ledger.Balance(ctx, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
		"costs": map[string]int64{
			string(jobs.KindExtract):  s.opts.Costs.ExtractCost,
			string(jobs.KindValidate): s.opts.Costs.ValidateCost,
			string(jobs.KindEstimate): s.opts.Costs.EstimateCost,
			string(jobs.KindPreview):  s.opts.Costs.ExtractCost,
		},
	})
}

func (s *Server) handleCreditHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := s.Ledger.History(ctx, kit.GetUserID(ctx), min(queryInt(r, "limit", 20), maxListLimit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": list})
}
