package formatting

import (
	"strconv"
	"strings"
)

// SizeThreshold maps an inclusive lower font-size bound (in points) to a
// heading type.
type SizeThreshold struct {
	MinPt float64
	Type  RangeType
}

// SizeThresholds is ordered from highest to lowest; the first match wins.
var SizeThresholds = []SizeThreshold{
	{18, Title},
	{16, Subtitle},
	{14, Section},
	{12, Subsection},
}

// StyleTypes maps paragraph style names to annotation types.
var StyleTypes = map[string]RangeType{
	"Heading 1":     Title,
	"Title":         Title,
	"Heading 2":     Subtitle,
	"Subtitle":      Subtitle,
	"Heading 3":     Section,
	"Heading 4":     Subsection,
	"Quote":         Quote,
	"Block Text":    Quote,
	"Intense Quote": Quote,
}

// QuoteAlignments are the alignments that mark a paragraph as a quote in
// addition to whatever its style says.
var QuoteAlignments = map[Alignment]bool{
	AlignCenter: true,
	AlignRight:  true,
}

// SizeType returns the heading type for a font size, or false when the size
// is below every threshold.
func SizeType(pt float64) (RangeType, bool) {
	for _, th := range SizeThresholds {
		if pt >= th.MinPt {
			return th.Type, true
		}
	}
	return "", false
}

// ClassifyRun returns the run-level annotations for a run spanning
// [start, end). Zero-width spans yield nothing.
func ClassifyRun(r Run, start, end int) []Annotation {
	if start >= end {
		return nil
	}
	var out []Annotation
	if r.Bold {
		out = append(out, newAnnotation(start, end, Bold, "run_bold"))
	}
	if r.Italic {
		out = append(out, newAnnotation(start, end, Italic, "run_italic"))
	}
	if r.Underline {
		out = append(out, newAnnotation(start, end, Underline, "run_underline"))
	}
	if r.FontSizePt != nil {
		if t, ok := SizeType(*r.FontSizePt); ok {
			out = append(out, newAnnotation(start, end, t, "font_size_"+FormatPoints(*r.FontSizePt)+"pt"))
		}
	}
	return out
}

// ClassifyParagraph returns the paragraph-level annotations for a paragraph
// spanning [start, end). Style and alignment rules are independent.
func ClassifyParagraph(styleName string, align Alignment, start, end int) []Annotation {
	if start >= end {
		return nil
	}
	var out []Annotation
	if t, ok := StyleTypes[styleName]; ok {
		out = append(out, newAnnotation(start, end, t, "paragraph_style_"+styleName))
	}
	if QuoteAlignments[align] {
		out = append(out, newAnnotation(start, end, Quote, string(align)+"_alignment"))
	}
	return out
}

// FormatPoints renders a point size with at least one decimal place
// ("18.0", "10.5") so source tags stay stable across integral sizes.
func FormatPoints(pt float64) string {
	s := strconv.FormatFloat(pt, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func newAnnotation(start, end int, t RangeType, source string) Annotation {
	return Annotation{Start: start, End: end, Type: t, Level: 1, Source: source}
}
