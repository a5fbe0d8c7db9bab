package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/audioscribe/auth"
	"github.com/hazyhaar/audioscribe/config"
	"github.com/hazyhaar/audioscribe/credits"
	"github.com/hazyhaar/audioscribe/dbopen"
	"github.com/hazyhaar/audioscribe/docpipe"
	"github.com/hazyhaar/audioscribe/docx/docxtest"
	"github.com/hazyhaar/audioscribe/formatting"
	"github.com/hazyhaar/audioscribe/jobs"
	"github.com/hazyhaar/audioscribe/observability"
	"github.com/hazyhaar/audioscribe/render"
	"github.com/hazyhaar/audioscribe/shield"
)

var testSecret = []byte("test-secret-0123456789abcdef-0123456789")

type fixture struct {
	srv    *Server
	db     *sql.DB
	obs    *sql.DB
	ledger *credits.Ledger
	jobs   *jobs.Store
}

type fixtureOpts struct {
	maxFileSize int64
	grant       int64
	mcpRoot     string // non-empty enables /mcp confined to this directory
}

func newFixture(t *testing.T, fo fixtureOpts) *fixture {
	t.Helper()
	if fo.grant == 0 {
		fo.grant = 20
	}
	if fo.grant < 0 {
		fo.grant = 0
	}
	db := dbopen.OpenMemory(t,
		dbopen.WithSchema(shield.Schema),
		dbopen.WithSchema(credits.Schema),
		dbopen.WithSchema(jobs.Schema),
	)
	obs := dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema))

	metrics := observability.NewMetricsManager(obs, 100, time.Hour)
	t.Cleanup(func() { metrics.Close() })

	var mcpSrv *mcp.Server
	if fo.mcpRoot != "" {
		mcpSrv = mcp.NewServer(&mcp.Implementation{Name: "audioscribe-test", Version: "0.1.0"}, nil)
	}

	f := &fixture{
		db:     db,
		obs:    obs,
		ledger: credits.NewLedger(db, fo.grant),
		jobs:   jobs.NewStore(db),
	}
	f.srv = New(Deps{
		DB:       db,
		Pipeline: docpipe.New(docpipe.Config{MaxFileSize: fo.maxFileSize, Root: fo.mcpRoot}),
		Renderer: render.New(),
		Ledger:   f.ledger,
		Jobs:     f.jobs,
		Metrics:  metrics,
		Events:   observability.NewEventLogger(obs),
		MCP:      mcpSrv,
	}, Options{
		JWTSecret:     testSecret,
		MaxConcurrent: 2,
		Costs:         config.CreditsConfig{ExtractCost: 1, SignupGrant: fo.grant},
		TempDir:       t.TempDir(),
	})
	return f
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, &auth.Claims{UserID: userID}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func uploadRequest(t *testing.T, target, tok, name string, data []byte) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (f *fixture) onlyJob(t *testing.T, userID string) jobs.Job {
	t.Helper()
	list, err := f.jobs.ListByUser(context.Background(), userID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("jobs: got %d, want 1", len(list))
	}
	return list[0]
}

func (f *fixture) events(t *testing.T, eventType string) int {
	t.Helper()
	var n int
	err := f.obs.QueryRow(`SELECT COUNT(*) FROM business_event_logs WHERE event_type = ?`, eventType).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

func chapterDoc() []byte {
	return docxtest.Package{
		Styles: docxtest.StandardStyles,
		Body: docxtest.Para("Heading1", "",
			docxtest.Run("Chapter One", docxtest.RunOpts{Bold: true})) +
			docxtest.Para("", "",
				docxtest.Text("It was a "),
				docxtest.Run("dark", docxtest.RunOpts{Italic: true}),
				docxtest.Text(" night.")),
	}.Bytes()
}

func TestHealth_NoAuth(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Error("trace id header missing")
	}
}

func TestExtract_RequiresAuth(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(uploadRequest(t, "/api/documents/extract", "", "a.docx", chapterDoc()))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d", rec.Code)
	}
}

func TestExtract_Success(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(uploadRequest(t, "/api/documents/extract", token(t, "u1"), "book.docx", chapterDoc()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body)
	}

	var res formatting.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Text != "Chapter One\nIt was a dark night." {
		t.Errorf("text: got %q", res.Text)
	}
	if res.Metadata.TotalParagraphs != 2 {
		t.Errorf("paragraphs: got %d", res.Metadata.TotalParagraphs)
	}
	if res.Comments == nil {
		t.Error("comments should be an empty array, not null")
	}

	if got := f.balance(t, "u1"); got != 19 {
		t.Errorf("balance: got %d, want 19", got)
	}
	job := f.onlyJob(t, "u1")
	if job.ID != rec.Header().Get("X-Job-ID") {
		t.Errorf("X-Job-ID %q does not match job %q", rec.Header().Get("X-Job-ID"), job.ID)
	}
	if job.Status != jobs.StatusDone || job.Kind != jobs.KindExtract || job.Filename != "book.docx" {
		t.Errorf("job: %+v", job)
	}
	if job.Ranges != res.Metadata.TotalFormattingRanges {
		t.Errorf("job ranges: got %d, want %d", job.Ranges, res.Metadata.TotalFormattingRanges)
	}
	if n := f.events(t, observability.EventDocumentExtracted); n != 1 {
		t.Errorf("extracted events: got %d", n)
	}
	if n := f.events(t, observability.EventCreditsDebited); n != 1 {
		t.Errorf("debit events: got %d", n)
	}
}

func TestExtract_InvalidFileRefunds(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(uploadRequest(t, "/api/documents/extract", token(t, "u1"), "broken.docx", []byte("not a zip archive")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	if msg := errorBody(t, rec); msg != "invalid file" {
		t.Errorf("error: got %q", msg)
	}
	if got := f.balance(t, "u1"); got != 20 {
		t.Errorf("balance after refund: got %d, want 20", got)
	}
	job := f.onlyJob(t, "u1")
	if job.Status != jobs.StatusInvalid || job.Error != "invalid file" {
		t.Errorf("job: %+v", job)
	}
	if n := f.events(t, observability.EventCreditsRefunded); n != 1 {
		t.Errorf("refund events: got %d", n)
	}
	if n := f.events(t, observability.EventDocumentRejected); n != 1 {
		t.Errorf("rejected events: got %d", n)
	}
}

func TestExtract_UploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		data     []byte
		maxSize  int64
		wantCode int
		wantMsg  string
	}{
		{"wrong extension", "a.pdf", chapterDoc(), 0, http.StatusBadRequest, docpipe.ErrUnsupportedFormat.Error()},
		{"empty", "a.docx", nil, 0, http.StatusBadRequest, "empty file"},
		{"too large", "a.docx", chapterDoc(), 64, http.StatusRequestEntityTooLarge, "file too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOpts{maxFileSize: tt.maxSize})
			rec := f.do(uploadRequest(t, "/api/documents/extract", token(t, "u1"), tt.file, tt.data))
			if rec.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			if msg := errorBody(t, rec); msg != tt.wantMsg {
				t.Errorf("error: got %q, want %q", msg, tt.wantMsg)
			}
			if got := f.balance(t, "u1"); got != 20 {
				t.Errorf("balance: got %d, want 20", got)
			}
		})
	}
}

func TestExtract_MissingFileField(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	mw.WriteField("other", "x")
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/documents/extract", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "u1"))

	rec := f.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rec.Code)
	}
	if msg := errorBody(t, rec); msg != "missing file field" {
		t.Errorf("error: got %q", msg)
	}
}

func TestExtract_InsufficientCredits(t *testing.T) {
	f := newFixture(t, fixtureOpts{grant: -1})
	rec := f.do(uploadRequest(t, "/api/documents/extract", token(t, "broke"), "a.docx", chapterDoc()))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status: got %d", rec.Code)
	}
	list, err := f.jobs.ListByUser(context.Background(), "broke", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("no job should be recorded, got %d", len(list))
	}
}

func TestValidate_InvalidIsNotAnError(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(uploadRequest(t, "/api/documents/validate", token(t, "u1"), "broken.docx", []byte("garbage")))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var v formatting.Validation
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v.Valid || v.Error != "invalid file" {
		t.Errorf("validation: %+v", v)
	}
	if got := f.balance(t, "u1"); got != 20 {
		t.Errorf("validate is free by default, balance %d", got)
	}
	if job := f.onlyJob(t, "u1"); job.Status != jobs.StatusInvalid || job.Kind != jobs.KindValidate {
		t.Errorf("job: %+v", job)
	}
}

func TestEstimate(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(uploadRequest(t, "/api/documents/estimate", token(t, "u1"), "a.docx", chapterDoc()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rec.Code, rec.Body)
	}
	var e formatting.Estimate
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if !e.Valid || e.ParagraphCount != 2 || e.TotalRuns != 4 || e.FormattedRuns != 2 {
		t.Errorf("estimate: %+v", e)
	}
	if e.EstimatedProcessingTime != "< 1 second" {
		t.Errorf("processing time: got %q", e.EstimatedProcessingTime)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	tok := token(t, "u1")

	rec := f.do(uploadRequest(t, "/api/documents/preview?format=html", tok, "a.docx", chapterDoc()))
	if rec.Code != http.StatusOK {
		t.Fatalf("html status: got %d body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type: got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<h1><strong>Chapter One</strong></h1>") {
		t.Errorf("html: got %q", rec.Body.String())
	}

	rec = f.do(uploadRequest(t, "/api/documents/preview?format=markdown", tok, "a.docx", chapterDoc()))
	if rec.Code != http.StatusOK {
		t.Fatalf("markdown status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Chapter One") {
		t.Errorf("markdown: got %q", rec.Body.String())
	}

	rec = f.do(uploadRequest(t, "/api/documents/preview?format=pdf", tok, "a.docx", chapterDoc()))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad format status: got %d", rec.Code)
	}
	if got := f.balance(t, "u1"); got != 18 {
		t.Errorf("balance: got %d, want 18", got)
	}
}

func TestJobs_ScopedToCaller(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	rec := f.do(uploadRequest(t, "/api/documents/extract", token(t, "alice"), "a.docx", chapterDoc()))
	if rec.Code != http.StatusOK {
		t.Fatalf("extract status: got %d", rec.Code)
	}
	id := rec.Header().Get("X-Job-ID")

	get := func(user, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Authorization", "Bearer "+token(t, user))
		return f.do(req)
	}

	if rec := get("alice", "/api/documents/jobs/"+id); rec.Code != http.StatusOK {
		t.Errorf("owner get: got %d", rec.Code)
	}
	if rec := get("bob", "/api/documents/jobs/"+id); rec.Code != http.StatusNotFound {
		t.Errorf("other user get: got %d", rec.Code)
	}

	rec = get("alice", "/api/documents/jobs?limit=5")
	var body struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Jobs) != 1 || body.Jobs[0].ID != id {
		t.Errorf("list: %+v", body.Jobs)
	}

	rec = get("bob", "/api/documents/jobs")
	body.Jobs = nil
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Jobs == nil || len(body.Jobs) != 0 {
		t.Errorf("bob list: %+v", body.Jobs)
	}
}

func TestCredits(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	tok := token(t, "u1")
	f.do(uploadRequest(t, "/api/documents/extract", tok, "a.docx", chapterDoc()))

	req := httptest.NewRequest(http.MethodGet, "/api/credits", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := f.do(req)
	var bal struct {
		UserID  string           `json:"user_id"`
		Balance int64            `json:"balance"`
		Costs   map[string]int64 `json:"costs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&bal); err != nil {
		t.Fatal(err)
	}
	if bal.UserID != "u1" || bal.Balance != 19 || bal.Costs["extract"] != 1 {
		t.Errorf("credits: %+v", bal)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/credits/history", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = f.do(req)
	var hist struct {
		Movements []credits.Movement `json:"movements"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatal(err)
	}
	if len(hist.Movements) != 2 {
		t.Fatalf("movements: got %d, want signup + debit", len(hist.Movements))
	}
	if hist.Movements[0].Amount != -1 || hist.Movements[1].Reason != credits.ReasonSignup {
		t.Errorf("movements: %+v", hist.Movements)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	if _, err := f.db.Exec(`UPDATE rate_limits SET max_requests = 1 WHERE endpoint = 'POST /api/documents/validate'`); err != nil {
		t.Fatal(err)
	}
	f.srv.RateLimiter().Reload()

	tok := token(t, "u1")
	if rec := f.do(uploadRequest(t, "/api/documents/validate", tok, "a.docx", chapterDoc())); rec.Code != http.StatusOK {
		t.Fatalf("first: got %d", rec.Code)
	}
	rec := f.do(uploadRequest(t, "/api/documents/validate", tok, "a.docx", chapterDoc()))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
}

func TestAcquire_HonoursContext(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	for range cap(f.srv.sem) {
		if err := f.srv.acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.srv.acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	f.srv.release()
	if err := f.srv.acquire(context.Background()); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestPublicError(t *testing.T) {
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{formatting.ErrDocumentFormat, http.StatusBadRequest, "invalid file"},
		{&formatting.ExtractionError{Paragraph: 3, Err: errors.New("bad attr")}, http.StatusInternalServerError, "failed to process file"},
		{credits.ErrInsufficient, http.StatusPaymentRequired, "insufficient credits"},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "file too large"},
		{context.Canceled, http.StatusServiceUnavailable, errUnavailable.Error()},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		code, public := publicError(tt.err)
		if code != tt.code || public.Error() != tt.msg {
			t.Errorf("publicError(%v) = %d %q, want %d %q", tt.err, code, public, tt.code, tt.msg)
		}
	}
}
