package formatting

import (
	"slices"
	"strings"
)

// Size buckets for Validation.EstimatedSize, by paragraph count.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"

	smallMaxParagraphs  = 100
	mediumMaxParagraphs = 500
)

// Validation is the cheap pre-flight summary of a document.
type Validation struct {
	Valid          bool     `json:"valid"`
	ParagraphCount int      `json:"paragraph_count"`
	HasContent     bool     `json:"has_content"`
	StylesFound    []string `json:"styles_found"`
	EstimatedSize  string   `json:"estimated_size"`
	Error          string   `json:"error,omitempty"`
}

// Estimate extends Validation with run statistics and a processing-time bucket.
type Estimate struct {
	Validation
	TotalRuns               int     `json:"total_runs"`
	FormattedRuns           int     `json:"formatted_runs"`
	FormattingDensity       float64 `json:"formatting_density"`
	ComplexityScore         float64 `json:"complexity_score"`
	EstimatedProcessingTime string  `json:"estimated_processing_time"`
}

// TimeBucket maps a complexity score upper bound (exclusive) to a label.
type TimeBucket struct {
	Below float64
	Label string
}

// TimeBuckets is ordered by increasing bound; scores past the last bound get
// SlowestLabel.
var TimeBuckets = []TimeBucket{
	{10, "< 1 second"},
	{50, "1-3 seconds"},
	{200, "3-10 seconds"},
}

// SlowestLabel is the processing-time label beyond the last TimeBucket.
const SlowestLabel = "> 10 seconds"

// Inspect summarises doc without extracting it.
func Inspect(doc Document) Validation {
	paragraphs := doc.Paragraphs()
	v := Validation{
		Valid:          true,
		ParagraphCount: len(paragraphs),
		StylesFound:    []string{},
		EstimatedSize:  sizeBucket(len(paragraphs)),
	}
	seen := make(map[string]bool)
	for _, p := range paragraphs {
		if !v.HasContent && strings.TrimSpace(p.Text()) != "" {
			v.HasContent = true
		}
		if p.StyleName != "" && !seen[p.StyleName] {
			seen[p.StyleName] = true
			v.StylesFound = append(v.StylesFound, p.StyleName)
		}
	}
	slices.Sort(v.StylesFound)
	return v
}

// EstimateComplexity returns Inspect's summary plus run statistics.
func EstimateComplexity(doc Document) Estimate {
	est := Estimate{Validation: Inspect(doc)}
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs {
			est.TotalRuns++
			if r.Formatted() {
				est.FormattedRuns++
			}
		}
	}
	if est.TotalRuns > 0 {
		est.FormattingDensity = float64(est.FormattedRuns) / float64(est.TotalRuns)
	}
	est.ComplexityScore = 0.1*float64(est.ParagraphCount) + 0.5*float64(est.FormattedRuns)
	est.EstimatedProcessingTime = timeBucket(est.ComplexityScore)
	return est
}

func sizeBucket(paragraphs int) string {
	switch {
	case paragraphs < smallMaxParagraphs:
		return SizeSmall
	case paragraphs < mediumMaxParagraphs:
		return SizeMedium
	default:
		return SizeLarge
	}
}

func timeBucket(score float64) string {
	for _, b := range TimeBuckets {
		if score < b.Below {
			return b.Label
		}
	}
	return SlowestLabel
}
