package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/audioscribe/dbopen"
	"github.com/hazyhaar/audioscribe/docx/docxtest"
	"github.com/hazyhaar/audioscribe/formatting"
	"github.com/hazyhaar/audioscribe/observability"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prettyJSON, renderFormat, verbose = false, "html", false
	configPath, metricName, metricSince, metricLimit = "", "", 24*time.Hour, 10000

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func sampleFile(t *testing.T) string {
	t.Helper()
	return docxtest.Package{
		Styles: docxtest.StandardStyles,
		Body: docxtest.Para("Heading2", "", docxtest.Text("Part Two")) +
			docxtest.Para("", "", docxtest.Run("Loud", docxtest.RunOpts{Bold: true}), docxtest.Text(" words")),
	}.WriteFile(t, t.TempDir(), "sample.docx")
}

func TestExtractCmd(t *testing.T) {
	out, err := execute(t, "extract", sampleFile(t))
	if err != nil {
		t.Fatal(err)
	}
	var res formatting.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Text != "Part Two\nLoud words" {
		t.Errorf("text: got %q", res.Text)
	}
	var subtitle, bold bool
	for _, a := range res.FormattingRanges {
		if a.Type == formatting.Subtitle && a.Start == 0 && a.End == 8 {
			subtitle = true
		}
		if a.Type == formatting.Bold && a.Start == 9 && a.End == 13 {
			bold = true
		}
	}
	if !subtitle || !bold {
		t.Errorf("ranges: %+v", res.FormattingRanges)
	}
}

func TestExtractCmd_Pretty(t *testing.T) {
	out, err := execute(t, "extract", "--pretty", sampleFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "\n  \"text\"") {
		t.Errorf("expected indented JSON, got %q", out)
	}
}

func TestValidateCmd_Unreadable(t *testing.T) {
	path := docxtest.Package{Raw: []byte("<w:document><w:body><w:p>")}.WriteFile(t, t.TempDir(), "bad.docx")
	out, err := execute(t, "validate", path)
	if err == nil {
		t.Fatal("expected an error for an unreadable document")
	}
	var v formatting.Validation
	if jerr := json.Unmarshal([]byte(out), &v); jerr != nil {
		t.Fatalf("decode %q: %v", out, jerr)
	}
	if v.Valid || v.Error == "" {
		t.Errorf("validation: %+v", v)
	}
}

func TestExtractCmd_WrongExtension(t *testing.T) {
	if _, err := execute(t, "extract", "notes.txt"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestRenderCmd(t *testing.T) {
	out, err := execute(t, "render", "--format", "html", sampleFile(t))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<h2>Part Two</h2>") || !strings.Contains(out, "<strong>Loud</strong>") {
		t.Errorf("html: got %q", out)
	}

	if _, err := execute(t, "render", "--format", "pdf", sampleFile(t)); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestServeCmd_RequiresSecret(t *testing.T) {
	t.Setenv("AUDIOSCRIBE_JWT_SECRET", "short")
	if _, err := execute(t, "serve"); err == nil {
		t.Fatal("expected weak secret error")
	}
}

func TestMetricsCmd(t *testing.T) {
	dir := t.TempDir()
	obsPath := filepath.Join(dir, "obs.db")
	db, err := dbopen.Open(obsPath, dbopen.WithSchema(observability.Schema))
	if err != nil {
		t.Fatal(err)
	}
	mm := observability.NewMetricsManager(db, 100, time.Hour)
	mm.RecordSimple(observability.MetricExtractionDurationMs, 10, "milliseconds")
	mm.RecordSimple(observability.MetricExtractionDurationMs, 30, "milliseconds")
	mm.RecordSimple(observability.MetricExtractionRanges, 4, "count")
	mm.Close()
	db.Close()

	cfgPath := filepath.Join(dir, "audioscribe.yaml")
	if err := os.WriteFile(cfgPath, []byte("obs_db_path: "+obsPath+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "metrics", "--config", cfgPath, "--name", observability.MetricExtractionDurationMs)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("output: %q", out)
	}
	fields := strings.Fields(lines[1])
	if fields[0] != observability.MetricExtractionDurationMs || fields[2] != "2" || fields[3] != "20.0" || fields[4] != "30.0" {
		t.Errorf("row: %q", lines[1])
	}
}
