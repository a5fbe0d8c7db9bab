package docpipe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/audioscribe/docx/docxtest"
	"github.com/hazyhaar/audioscribe/formatting"
)

func chapterDoc() docxtest.Package {
	return docxtest.Package{
		Styles: docxtest.StandardStyles,
		Body: docxtest.Para("Heading1", "",
			docxtest.Run("Chapter One", docxtest.RunOpts{Bold: true})) +
			docxtest.Para("", "",
				docxtest.Text("It was a "),
				docxtest.Run("dark", docxtest.RunOpts{Italic: true}),
				docxtest.Text(" night.")) +
			docxtest.Para("Quote", "center", docxtest.Text("Said no one.")),
	}
}

func TestCheckName(t *testing.T) {
	for _, name := range []string{"a.docx", "B.DOCX", "dir/c.Docx"} {
		if err := CheckName(name); err != nil {
			t.Errorf("CheckName(%q): %v", name, err)
		}
	}
	for _, name := range []string{"a.doc", "a.pdf", "docx", "a.docx.txt"} {
		if err := CheckName(name); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("CheckName(%q): got %v", name, err)
		}
	}
}

func TestCheckSize(t *testing.T) {
	pipe := New(Config{MaxFileSize: 100})
	if err := pipe.CheckSize(0); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("zero: got %v", err)
	}
	if err := pipe.CheckSize(101); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("over: got %v", err)
	}
	if err := pipe.CheckSize(100); err != nil {
		t.Fatalf("at limit: got %v", err)
	}
	if New(Config{}).MaxFileSize() != 50<<20 {
		t.Fatal("default max size")
	}
}

func TestExtract(t *testing.T) {
	path := chapterDoc().WriteFile(t, t.TempDir(), "book.docx")
	res, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	want := "Chapter One\nIt was a dark night.\nSaid no one."
	if res.Text != want {
		t.Fatalf("text: got %q", res.Text)
	}
	if res.Metadata.TotalParagraphs != 3 {
		t.Fatalf("paragraphs: %d", res.Metadata.TotalParagraphs)
	}

	types := map[formatting.RangeType][2]int{}
	for _, a := range res.FormattingRanges {
		types[a.Type] = [2]int{a.Start, a.End}
	}
	checks := map[formatting.RangeType][2]int{
		formatting.Bold:   {0, 11},
		formatting.Title:  {0, 11},
		formatting.Italic: {21, 25},
		formatting.Quote:  {33, 45},
	}
	for typ, span := range checks {
		if got, ok := types[typ]; !ok || got != span {
			t.Errorf("%s: got %v (present=%v), want %v", typ, got, ok, span)
		}
	}
}

func TestExtract_FileErrors(t *testing.T) {
	dir := t.TempDir()
	pipe := New(Config{MaxFileSize: 1 << 20})
	ctx := context.Background()

	empty := filepath.Join(dir, "empty.docx")
	os.WriteFile(empty, nil, 0o644)
	if _, err := pipe.Extract(ctx, empty); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("empty: got %v", err)
	}

	txt := filepath.Join(dir, "notes.txt")
	os.WriteFile(txt, []byte("hello"), 0o644)
	if _, err := pipe.Extract(ctx, txt); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("txt: got %v", err)
	}

	if _, err := pipe.Extract(ctx, filepath.Join(dir, "missing.docx")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.docx")
	os.WriteFile(garbage, []byte("this is not a zip"), 0o644)
	if _, err := pipe.Extract(ctx, garbage); !formatting.IsFormatError(err) {
		t.Errorf("garbage: got %v", err)
	}

	big := filepath.Join(dir, "big.docx")
	os.WriteFile(big, make([]byte, 2<<20), 0o644)
	if _, err := pipe.Extract(ctx, big); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("big: got %v", err)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	path := chapterDoc().WriteFile(t, t.TempDir(), "book.docx")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}).Extract(ctx, path); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	pipe := New(Config{})
	ctx := context.Background()

	v, err := pipe.Validate(ctx, chapterDoc().WriteFile(t, dir, "book.docx"))
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid || v.ParagraphCount != 3 || !v.HasContent || v.EstimatedSize != formatting.SizeSmall {
		t.Fatalf("validation: %+v", v)
	}
	wantStyles := []string{"Heading 1", "Normal", "Quote"}
	if len(v.StylesFound) != len(wantStyles) {
		t.Fatalf("styles: %v", v.StylesFound)
	}
	for i, s := range wantStyles {
		if v.StylesFound[i] != s {
			t.Fatalf("styles: %v", v.StylesFound)
		}
	}

	bad := filepath.Join(dir, "bad.docx")
	os.WriteFile(bad, []byte("PK not really"), 0o644)
	v, err = pipe.Validate(ctx, bad)
	if err != nil {
		t.Fatalf("bad document must not error: %v", err)
	}
	if v.Valid || v.Error == "" {
		t.Fatalf("bad document: %+v", v)
	}

	if _, err := pipe.Validate(ctx, filepath.Join(dir, "missing.docx")); err == nil {
		t.Fatal("missing file must error")
	}
}

func TestEstimate(t *testing.T) {
	path := chapterDoc().WriteFile(t, t.TempDir(), "book.docx")
	est, err := New(Config{}).Estimate(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if est.TotalRuns != 5 || est.FormattedRuns != 2 {
		t.Fatalf("runs: %+v", est)
	}
	if est.FormattingDensity != 0.4 {
		t.Fatalf("density: %v", est.FormattingDensity)
	}
	// 0.1*3 + 0.5*2
	if est.ComplexityScore < 1.29 || est.ComplexityScore > 1.31 {
		t.Fatalf("score: %v", est.ComplexityScore)
	}
	if est.EstimatedProcessingTime != "< 1 second" {
		t.Fatalf("time: %q", est.EstimatedProcessingTime)
	}
}
