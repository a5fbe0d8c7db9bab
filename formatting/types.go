// Package formatting turns a paragraph/run document model into flat text plus
// position-indexed formatting annotations.
//
// The package never touches the container format: anything that can expose
// paragraphs and runs through the Document interface can be extracted.
//
//	res, err := formatting.NewExtractor(nil).Extract(doc)
//	fmt.Println(res.Text, len(res.FormattingRanges))
//
// Offsets are counted in Unicode code points of Result.Text.
package formatting

// RangeType identifies the kind of formatting an Annotation carries.
type RangeType string

const (
	Bold       RangeType = "bold"
	Italic     RangeType = "italic"
	Underline  RangeType = "underline"
	Title      RangeType = "title"
	Subtitle   RangeType = "subtitle"
	Section    RangeType = "section"
	Subsection RangeType = "subsection"
	Quote      RangeType = "quote"
)

// Alignment is a paragraph's horizontal alignment. AlignNone means the
// paragraph carries no explicit alignment.
type Alignment string

const (
	AlignNone    Alignment = ""
	AlignLeft    Alignment = "left"
	AlignCenter  Alignment = "center"
	AlignRight   Alignment = "right"
	AlignJustify Alignment = "justify"
)

// Annotation is a formatting range over the extracted text.
type Annotation struct {
	Start  int       `json:"start"`
	End    int       `json:"end"`
	Type   RangeType `json:"type"`
	Level  int       `json:"level"`
	Source string    `json:"source"` // rule that produced the range
}

// Len returns End - Start.
func (a Annotation) Len() int { return a.End - a.Start }

// Run is a style-homogeneous span of text inside a paragraph.
type Run struct {
	Text       string
	Bold       bool
	Italic     bool
	Underline  bool
	FontSizePt *float64 // nil when the run has no explicit size
}

// Formatted reports whether the run carries any character flag.
func (r Run) Formatted() bool { return r.Bold || r.Italic || r.Underline }

// Paragraph is a block of runs with paragraph-level style metadata.
type Paragraph struct {
	Runs      []Run
	StyleName string
	Alignment Alignment
}

// Text returns the concatenated raw text of all runs.
func (p Paragraph) Text() string {
	switch len(p.Runs) {
	case 0:
		return ""
	case 1:
		return p.Runs[0].Text
	}
	n := 0
	for _, r := range p.Runs {
		n += len(r.Text)
	}
	b := make([]byte, 0, n)
	for _, r := range p.Runs {
		b = append(b, r.Text...)
	}
	return string(b)
}

// Document is the loader capability the extractor consumes.
type Document interface {
	Paragraphs() []Paragraph
}

// Paragraphs adapts a plain slice to the Document interface.
type Paragraphs []Paragraph

// Paragraphs implements Document.
func (p Paragraphs) Paragraphs() []Paragraph { return p }

// Comment is a reserved inline review comment. Extraction never fills it.
type Comment struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

// Metadata summarises an extraction.
type Metadata struct {
	TotalParagraphs       int      `json:"total_paragraphs"`
	TotalFormattingRanges int      `json:"total_formatting_ranges"`
	FinalTextLength       int      `json:"final_text_length"`
	ProcessingNotes       []string `json:"processing_notes"`
}

// Result is the output of a full extraction.
type Result struct {
	Text             string       `json:"text"`
	FormattingRanges []Annotation `json:"formatting_ranges"`
	Comments         []Comment    `json:"comments"`
	Metadata         Metadata     `json:"metadata"`
}
