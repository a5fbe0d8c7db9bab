// Package render turns an extraction result back into a readable preview,
// as sanitized HTML or as Markdown.
//
// Each line of the extracted text becomes one block. A block's tag comes
// from the heading or quote range covering the whole line; bold, italic
// and underline ranges become inline markup.
package render

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/audioscribe/formatting"
)

// Format is an output format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "html", "markdown" or "md". Empty means HTML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("render: unsupported format %q (use html or markdown)", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

// blockTags lists block types from strongest to weakest.
var blockTags = []struct {
	typ  formatting.RangeType
	atom atom.Atom
}{
	{formatting.Title, atom.H1},
	{formatting.Subtitle, atom.H2},
	{formatting.Section, atom.H3},
	{formatting.Subsection, atom.H4},
	{formatting.Quote, atom.Blockquote},
}

// inlineTags lists inline types from outermost to innermost.
var inlineTags = []struct {
	typ  formatting.RangeType
	atom atom.Atom
}{
	{formatting.Bold, atom.Strong},
	{formatting.Italic, atom.Em},
	{formatting.Underline, atom.U},
}

// Renderer holds the sanitizer and Markdown converter. It is safe for
// concurrent use.
type Renderer struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// New returns a Renderer.
func New() *Renderer {
	return &Renderer{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Render renders res in format f.
func (r *Renderer) Render(res *formatting.Result, f Format) (string, error) {
	switch f {
	case FormatHTML:
		return r.HTML(res)
	case FormatMarkdown:
		return r.Markdown(res)
	}
	return "", fmt.Errorf("render: unsupported format %q", f)
}

// HTML renders res as sanitized HTML, one block element per non-empty line.
func (r *Renderer) HTML(res *formatting.Result) (string, error) {
	if res == nil {
		return "", fmt.Errorf("render: nil result")
	}
	var buf bytes.Buffer
	for i, n := range blocks(res) {
		if i > 0 {
			buf.WriteByte('\n')
		}
		if err := html.Render(&buf, n); err != nil {
			return "", fmt.Errorf("render: html: %w", err)
		}
	}
	return r.policy.Sanitize(buf.String()), nil
}

// Markdown renders res as CommonMark.
func (r *Renderer) Markdown(res *formatting.Result) (string, error) {
	h, err := r.HTML(res)
	if err != nil {
		return "", err
	}
	md, err := r.md.ConvertString(h)
	if err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return md, nil
}

type span struct{ start, end int }

// blocks builds one element per non-empty line of res.Text.
func blocks(res *formatting.Result) []*html.Node {
	text := []rune(res.Text)
	var out []*html.Node
	start := 0
	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] != '\n' {
			continue
		}
		if i > start {
			out = append(out, block(text, span{start, i}, res.FormattingRanges))
		}
		start = i + 1
	}
	return out
}

func block(text []rune, line span, ranges []formatting.Annotation) *html.Node {
	tag := atom.P
	best := len(blockTags)
	for _, a := range ranges {
		if a.Start > line.start || a.End < line.end {
			continue
		}
		for rank, bt := range blockTags {
			if bt.typ == a.Type && rank < best {
				best, tag = rank, bt.atom
			}
		}
	}
	el := element(tag)

	cuts := []int{line.start, line.end}
	for _, a := range ranges {
		if !isInline(a.Type) || a.End <= line.start || a.Start >= line.end {
			continue
		}
		cuts = append(cuts, max(a.Start, line.start), min(a.End, line.end))
	}
	slices.Sort(cuts)
	cuts = slices.Compact(cuts)

	for i := 0; i+1 < len(cuts); i++ {
		seg := span{cuts[i], cuts[i+1]}
		node := &html.Node{Type: html.TextNode, Data: string(text[seg.start:seg.end])}
		for j := len(inlineTags) - 1; j >= 0; j-- {
			if covered(ranges, inlineTags[j].typ, seg) {
				wrap := element(inlineTags[j].atom)
				wrap.AppendChild(node)
				node = wrap
			}
		}
		el.AppendChild(node)
	}
	return el
}

func isInline(t formatting.RangeType) bool {
	for _, it := range inlineTags {
		if it.typ == t {
			return true
		}
	}
	return false
}

func covered(ranges []formatting.Annotation, t formatting.RangeType, s span) bool {
	for _, a := range ranges {
		if a.Type == t && a.Start <= s.start && a.End >= s.end {
			return true
		}
	}
	return false
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}
