package docx

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultStyleName is used for paragraphs without a resolvable style when the
// package does not declare a default paragraph style.
const DefaultStyleName = "Normal"

// builtinIDs maps Word's built-in paragraph style IDs to their display names,
// for packages that reference styles without shipping word/styles.xml.
var builtinIDs = map[string]string{
	"Normal":       "Normal",
	"Title":        "Title",
	"Subtitle":     "Subtitle",
	"Quote":        "Quote",
	"IntenseQuote": "Intense Quote",
	"BlockText":    "Block Text",
	"Heading1":     "Heading 1",
	"Heading2":     "Heading 2",
	"Heading3":     "Heading 3",
	"Heading4":     "Heading 4",
	"Heading5":     "Heading 5",
	"Heading6":     "Heading 6",
	"Heading7":     "Heading 7",
	"Heading8":     "Heading 8",
	"Heading9":     "Heading 9",
}

// lowercaseBuiltins are names Word stores in lower case in styles.xml but
// shows capitalised in its UI.
var lowercaseBuiltins = map[string]bool{
	"normal": true, "title": true, "subtitle": true, "quote": true,
	"intense quote": true, "block text": true, "caption": true,
	"header": true, "footer": true, "body text": true,
	"heading 1": true, "heading 2": true, "heading 3": true,
	"heading 4": true, "heading 5": true, "heading 6": true,
	"heading 7": true, "heading 8": true, "heading 9": true,
}

// UIStyleName converts a stored style name to the name Word displays.
func UIStyleName(name string) string {
	if lowercaseBuiltins[name] {
		// Casers are stateful, so each call gets its own.
		return cases.Title(language.English).String(name)
	}
	return name
}

// styleTable resolves paragraph style IDs to display names.
type styleTable struct {
	names        map[string]string // styleId -> display name, paragraph styles only
	defaultStyle string
	loaded       bool
}

func newStyleTable(sx *stylesXML) *styleTable {
	st := &styleTable{names: make(map[string]string), defaultStyle: DefaultStyleName}
	if sx == nil {
		return st
	}
	st.loaded = true
	for _, s := range sx.Styles {
		if s.Type != "" && s.Type != "paragraph" {
			continue
		}
		name := UIStyleName(strings.TrimSpace(s.Name.Val))
		if name == "" {
			name = s.StyleID
		}
		st.names[s.StyleID] = name
		if s.Default == "1" || s.Default == "true" {
			st.defaultStyle = name
		}
	}
	return st
}

// resolve returns the display name for a paragraph's pStyle value.
func (st *styleTable) resolve(id string) string {
	if id == "" {
		return st.defaultStyle
	}
	if name, ok := st.names[id]; ok {
		return name
	}
	if st.loaded {
		// Unknown IDs fall back to the default style, as Word does.
		return st.defaultStyle
	}
	if name, ok := builtinIDs[id]; ok {
		return name
	}
	return id
}
