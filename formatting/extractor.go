package formatting

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

var horizontalSpaceRun = regexp.MustCompile(`[ \t]{2,}`)

// NormalizeRunText folds CR/LF variants to "\n" and collapses runs of two or
// more spaces/tabs into one space. Leading and trailing space is kept.
func NormalizeRunText(s string) string {
	if strings.IndexByte(s, '\r') >= 0 {
		s = strings.ReplaceAll(s, "\r\n", "\n")
		s = strings.ReplaceAll(s, "\r", "\n")
	}
	return horizontalSpaceRun.ReplaceAllString(s, " ")
}

// textCursor accumulates output text and tracks the rune offset of its end.
type textCursor struct {
	sb  strings.Builder
	pos int
}

// write appends s and returns the [start, end) rune span it occupies.
func (c *textCursor) write(s string) (int, int) {
	start := c.pos
	c.sb.WriteString(s)
	c.pos += utf8.RuneCountInString(s)
	return start, c.pos
}

func (c *textCursor) String() string { return c.sb.String() }

// Notes is an ordered diagnostic log of classification and repair decisions.
type Notes []string

func (n *Notes) addf(format string, args ...any) {
	*n = append(*n, fmt.Sprintf(format, args...))
}

// Extractor walks a Document once and produces a validated Result.
// An Extractor holds no per-call state and may be shared.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger falls back to slog.Default.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract builds the flat text and formatting ranges of doc. It returns an
// *ExtractionError if the walk fails; no partial result is ever returned.
func (e *Extractor) Extract(doc Document) (res *Result, err error) {
	current := -1
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &ExtractionError{Paragraph: current, Err: fmt.Errorf("%v", r)}
		}
	}()
	if doc == nil {
		return nil, &ExtractionError{Paragraph: -1, Err: fmt.Errorf("nil document")}
	}

	paragraphs := doc.Paragraphs()
	var (
		cur   textCursor
		raw   []Annotation
		notes Notes
	)

	for i, para := range paragraphs {
		current = i
		paraStart := cur.pos

		if strings.TrimSpace(para.Text()) == "" {
			cur.write("\n")
			notes.addf("paragraph %d: empty, kept as line break at %d", i, paraStart)
			continue
		}

		for j, run := range para.Runs {
			if run.Text == "" {
				continue
			}
			start, end := cur.write(NormalizeRunText(run.Text))
			found := ClassifyRun(run, start, end)
			for _, a := range found {
				notes.addf("paragraph %d run %d: %s [%d, %d) from %s", i, j, a.Type, a.Start, a.End, a.Source)
			}
			raw = append(raw, found...)
		}

		paraEnd := cur.pos
		found := ClassifyParagraph(para.StyleName, para.Alignment, paraStart, paraEnd)
		if len(found) == 0 && para.StyleName != "" {
			notes.addf("paragraph %d: style %q has no classification", i, para.StyleName)
		}
		for _, a := range found {
			notes.addf("paragraph %d: %s [%d, %d) from %s", i, a.Type, a.Start, a.End, a.Source)
		}
		raw = append(raw, found...)

		if i < len(paragraphs)-1 {
			cur.write("\n")
		}
	}
	current = -1

	text := cur.String()
	valid, vnotes := ValidateRanges(raw, text)
	notes = append(notes, vnotes...)

	for _, n := range notes {
		e.logger.Debug("formatting note", "note", n)
	}

	return &Result{
		Text:             text,
		FormattingRanges: valid,
		Comments:         []Comment{},
		Metadata: Metadata{
			TotalParagraphs:       len(paragraphs),
			TotalFormattingRanges: len(valid),
			FinalTextLength:       cur.pos,
			ProcessingNotes:       notes,
		},
	}, nil
}
