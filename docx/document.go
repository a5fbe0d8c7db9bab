package docx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/audioscribe/formatting"
)

// Document is a loaded DOCX body. It implements formatting.Document.
type Document struct {
	paragraphs []formatting.Paragraph
	title      string
	author     string
}

var _ formatting.Document = (*Document)(nil)

// Paragraphs returns the body paragraphs in document order.
func (d *Document) Paragraphs() []formatting.Paragraph { return d.paragraphs }

// ParagraphCount returns the number of body paragraphs.
func (d *Document) ParagraphCount() int { return len(d.paragraphs) }

// Title returns the dc:title core property, if any.
func (d *Document) Title() string { return d.title }

// Author returns the dc:creator core property, if any.
func (d *Document) Author() string { return d.author }

func build(doc *documentXML, styles *styleTable, core corePropertiesXML) (*Document, error) {
	out := &Document{
		title:  strings.TrimSpace(core.Title),
		author: strings.TrimSpace(core.Creator),
	}
	if doc.Body == nil {
		return out, nil
	}

	out.paragraphs = make([]formatting.Paragraph, 0, len(doc.Body.Paragraphs))
	for i, px := range doc.Body.Paragraphs {
		p := formatting.Paragraph{
			StyleName: styles.resolve(px.Props.Style.Val),
			Alignment: alignment(px.Props.Justification.Val),
			Runs:      make([]formatting.Run, 0, len(px.Runs)),
		}
		for j, rx := range px.Runs {
			run, err := convertRun(rx)
			if err != nil {
				return nil, &formatting.ExtractionError{
					Paragraph: i,
					Err:       fmt.Errorf("run %d: %w", j, err),
				}
			}
			p.Runs = append(p.Runs, run)
		}
		out.paragraphs = append(out.paragraphs, p)
	}
	return out, nil
}

func convertRun(rx runXML) (formatting.Run, error) {
	run := formatting.Run{
		Text:      rx.Text,
		Bold:      toggleOn(rx.Props.Bold),
		Italic:    toggleOn(rx.Props.Italic),
		Underline: underlineOn(rx.Props.Underline),
	}
	if rx.Props.Size != nil {
		halfPoints, err := strconv.ParseFloat(strings.TrimSpace(rx.Props.Size.Val), 64)
		if err != nil || halfPoints < 0 {
			return run, fmt.Errorf("invalid font size %q", rx.Props.Size.Val)
		}
		pt := halfPoints / 2
		run.FontSizePt = &pt
	}
	return run, nil
}

// toggleOn reports whether an on/off property element is switched on. An
// element with no val attribute means on.
func toggleOn(v *valXML) bool {
	if v == nil {
		return false
	}
	switch strings.ToLower(v.Val) {
	case "false", "0", "off", "none":
		return false
	}
	return true
}

func underlineOn(v *valXML) bool {
	if v == nil {
		return false
	}
	switch strings.ToLower(v.Val) {
	case "none", "false", "0":
		return false
	}
	return true
}

func alignment(jc string) formatting.Alignment {
	switch jc {
	case "left", "start":
		return formatting.AlignLeft
	case "center":
		return formatting.AlignCenter
	case "right", "end":
		return formatting.AlignRight
	case "both", "distribute":
		return formatting.AlignJustify
	default:
		return formatting.AlignNone
	}
}
