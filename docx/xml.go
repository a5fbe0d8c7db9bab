package docx

import (
	"encoding/xml"
	"strings"
)

// documentXML is word/document.xml. Only paragraphs that are direct children
// of the body are collected; table cells and content controls are skipped.
type documentXML struct {
	XMLName xml.Name `xml:"document"`
	Body    *bodyXML `xml:"body"`
}

type bodyXML struct {
	Paragraphs []paragraphXML `xml:"p"`
}

// paragraphXML is <w:p>. Runs are collected in document order, including
// runs nested in hyperlinks, insertions, smart tags and simple fields.
type paragraphXML struct {
	Props paragraphPropsXML
	Runs  []runXML
}

type paragraphPropsXML struct {
	Style         valXML `xml:"pStyle"`
	Justification valXML `xml:"jc"`
}

// runXML is <w:r>. Text holds the run's content with tabs and breaks already
// expanded, in document order.
type runXML struct {
	Props runPropsXML
	Text  string
}

type runPropsXML struct {
	Bold      *valXML `xml:"b"`
	Italic    *valXML `xml:"i"`
	Underline *valXML `xml:"u"`
	Size      *valXML `xml:"sz"`
}

type valXML struct {
	Val string `xml:"val,attr"`
}

// runContainers are inline elements whose <w:r> children belong to the
// enclosing paragraph's text.
var runContainers = map[string]bool{
	"hyperlink":  true,
	"ins":        true,
	"smartTag":   true,
	"fldSimple":  true,
	"customXml":  true,
	"sdt":        true,
	"sdtContent": true,
}

func (p *paragraphXML) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr":
				if err := d.DecodeElement(&p.Props, &t); err != nil {
					return err
				}
			default:
				if err := p.collect(d, t); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

// collect appends runs found in t (a run or a run container) and skips
// everything else.
func (p *paragraphXML) collect(d *xml.Decoder, t xml.StartElement) error {
	switch {
	case t.Name.Local == "r":
		var r runXML
		if err := d.DecodeElement(&r, &t); err != nil {
			return err
		}
		p.Runs = append(p.Runs, r)
		return nil
	case runContainers[t.Name.Local]:
		for {
			tok, err := d.Token()
			if err != nil {
				return err
			}
			switch inner := tok.(type) {
			case xml.StartElement:
				if err := p.collect(d, inner); err != nil {
					return err
				}
			case xml.EndElement:
				return nil
			}
		}
	default:
		return d.Skip()
	}
}

func (r *runXML) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "rPr":
				if err := d.DecodeElement(&r.Props, &t); err != nil {
					return err
				}
			case "t":
				var s string
				if err := d.DecodeElement(&s, &t); err != nil {
					return err
				}
				sb.WriteString(s)
			case "tab", "ptab":
				sb.WriteByte('\t')
				if err := d.Skip(); err != nil {
					return err
				}
			case "br", "cr":
				sb.WriteByte('\n')
				if err := d.Skip(); err != nil {
					return err
				}
			case "noBreakHyphen":
				sb.WriteByte('-')
				if err := d.Skip(); err != nil {
					return err
				}
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			r.Text = sb.String()
			return nil
		}
	}
}

// stylesXML is word/styles.xml.
type stylesXML struct {
	XMLName xml.Name      `xml:"styles"`
	Styles  []styleDefXML `xml:"style"`
}

type styleDefXML struct {
	Type    string `xml:"type,attr"`
	StyleID string `xml:"styleId,attr"`
	Default string `xml:"default,attr"`
	Name    valXML `xml:"name"`
}

// corePropertiesXML is docProps/core.xml.
type corePropertiesXML struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}
