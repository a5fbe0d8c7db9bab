// Package docxtest builds small DOCX packages in memory for tests.
package docxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const nsW = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const contentTypes = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`

// StandardStyles mirrors the style definitions Word writes for a blank
// document, using its lower-case built-in names.
const StandardStyles = `<?xml version="1.0" encoding="UTF-8"?>
<w:styles xmlns:w="` + nsW + `">
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/></w:style>
<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/></w:style>
<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/></w:style>
<w:style w:type="paragraph" w:styleId="Heading4"><w:name w:val="heading 4"/></w:style>
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/></w:style>
<w:style w:type="paragraph" w:styleId="Subtitle"><w:name w:val="Subtitle"/></w:style>
<w:style w:type="paragraph" w:styleId="Quote"><w:name w:val="Quote"/></w:style>
<w:style w:type="paragraph" w:styleId="IntenseQuote"><w:name w:val="Intense Quote"/></w:style>
<w:style w:type="paragraph" w:styleId="BlockText"><w:name w:val="Block Text"/></w:style>
<w:style w:type="character" w:styleId="Strong"><w:name w:val="Strong"/></w:style>
</w:styles>`

// Package describes the parts of a test document. Empty parts are omitted,
// except Body which always produces word/document.xml.
type Package struct {
	Body   string // inner XML of <w:body>
	Styles string // full word/styles.xml
	Title  string // dc:title core property
	// Raw, when non-nil, replaces word/document.xml verbatim.
	Raw []byte
	// SkipContentTypes drops [Content_Types].xml.
	SkipContentTypes bool
}

// Bytes returns the zipped package.
func (p Package) Bytes() []byte {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	if !p.SkipContentTypes {
		add(w, "[Content_Types].xml", []byte(contentTypes))
	}
	doc := p.Raw
	if doc == nil {
		doc = []byte(`<?xml version="1.0" encoding="UTF-8"?>` +
			`<w:document xmlns:w="` + nsW + `"><w:body>` + p.Body + `</w:body></w:document>`)
	}
	add(w, "word/document.xml", doc)
	if p.Styles != "" {
		add(w, "word/styles.xml", []byte(p.Styles))
	}
	if p.Title != "" {
		add(w, "docProps/core.xml", []byte(`<?xml version="1.0" encoding="UTF-8"?>`+
			`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" `+
			`xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>`+escape(p.Title)+`</dc:title></cp:coreProperties>`))
	}

	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WriteFile writes the package to dir/name and returns its path.
func (p Package) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, p.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func add(w *zip.Writer, name string, data []byte) {
	f, err := w.Create(name)
	if err != nil {
		panic(err)
	}
	if _, err := f.Write(data); err != nil {
		panic(err)
	}
}

// RunOpts are direct run properties.
type RunOpts struct {
	Bold, Italic, Underline bool
	HalfPoints              int // w:sz value; 0 omits it
}

// Run renders a <w:r> with preserved whitespace.
func Run(text string, o RunOpts) string {
	var props strings.Builder
	if o.Bold {
		props.WriteString(`<w:b/>`)
	}
	if o.Italic {
		props.WriteString(`<w:i/>`)
	}
	if o.Underline {
		props.WriteString(`<w:u w:val="single"/>`)
	}
	if o.HalfPoints > 0 {
		fmt.Fprintf(&props, `<w:sz w:val="%d"/>`, o.HalfPoints)
	}
	rpr := ""
	if props.Len() > 0 {
		rpr = "<w:rPr>" + props.String() + "</w:rPr>"
	}
	return `<w:r>` + rpr + `<w:t xml:space="preserve">` + escape(text) + `</w:t></w:r>`
}

// Text renders an unformatted run.
func Text(text string) string { return Run(text, RunOpts{}) }

// Para renders a <w:p> with an optional style ID and justification.
func Para(styleID, jc string, runs ...string) string {
	var ppr strings.Builder
	if styleID != "" {
		fmt.Fprintf(&ppr, `<w:pStyle w:val="%s"/>`, styleID)
	}
	if jc != "" {
		fmt.Fprintf(&ppr, `<w:jc w:val="%s"/>`, jc)
	}
	out := "<w:p>"
	if ppr.Len() > 0 {
		out += "<w:pPr>" + ppr.String() + "</w:pPr>"
	}
	return out + strings.Join(runs, "") + "</w:p>"
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
