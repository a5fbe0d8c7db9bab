package formatting

import (
	"cmp"
	"fmt"
	"slices"
	"unicode/utf8"
)

// BoundsAdjustedSuffix is appended to the Source of a clamped annotation.
const BoundsAdjustedSuffix = "_bounds_adjusted"

// ValidateRanges clamps raw annotations to [0, len(text)], drops those that
// end up empty and sorts the survivors by (start, length). The input slice is
// not modified. It never fails; every decision is reported in the returned
// notes.
func ValidateRanges(raw []Annotation, text string) ([]Annotation, Notes) {
	textLen := utf8.RuneCountInString(text)
	out := make([]Annotation, 0, len(raw))
	var notes Notes

	for _, a := range raw {
		start := max(0, a.Start)
		end := min(textLen, a.End)

		if start >= end {
			notes.addf("discarded %s [%d, %d): empty after clamping to text length %d", rangeLabel(a), a.Start, a.End, textLen)
			continue
		}
		if start != a.Start || end != a.End {
			notes.addf("adjusted %s [%d, %d) -> [%d, %d)", rangeLabel(a), a.Start, a.End, start, end)
			a.Start, a.End = start, end
			a.Source += BoundsAdjustedSuffix
		}
		out = append(out, a)
	}

	slices.SortStableFunc(out, func(x, y Annotation) int {
		if c := cmp.Compare(x.Start, y.Start); c != 0 {
			return c
		}
		return cmp.Compare(x.Len(), y.Len())
	})

	notes = append(notes, fmt.Sprintf("validation: %d/%d ranges valid", len(out), len(raw)))
	return out, notes
}

func rangeLabel(a Annotation) string {
	if a.Type == "" {
		return "untyped range"
	}
	return string(a.Type) + " range"
}
