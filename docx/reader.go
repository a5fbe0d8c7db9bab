// Package docx loads Office Open XML word-processing documents into the
// paragraph/run model consumed by package formatting.
//
// Only direct formatting is read: a run is bold when its own <w:rPr> says so,
// not when its style does. Style IDs are resolved to display names through
// word/styles.xml.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hazyhaar/audioscribe/formatting"
)

const (
	partContentTypes = "[Content_Types].xml"
	partDocument     = "word/document.xml"
	partStyles       = "word/styles.xml"
	partCore         = "docProps/core.xml"
)

// MaxPartSize caps the decompressed size of any single XML part.
const MaxPartSize = 64 << 20

var errPartTooLarge = errors.New("part exceeds size limit")

// formatError wraps a container or XML problem so callers can match it with
// errors.Is(err, formatting.ErrDocumentFormat).
func formatError(format string, args ...any) error {
	return fmt.Errorf("docx: %w: %s", formatting.ErrDocumentFormat, fmt.Sprintf(format, args...))
}

// Open loads the DOCX file at path.
func Open(path string) (*Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("docx: open %s: %w", path, err)
		}
		return nil, formatError("opening archive: %v", err)
	}
	defer zr.Close()
	return load(&zr.Reader)
}

// Read loads a DOCX package from r.
func Read(r io.ReaderAt, size int64) (*Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, formatError("opening archive: %v", err)
	}
	return load(zr)
}

// ReadBytes loads a DOCX package held in memory.
func ReadBytes(data []byte) (*Document, error) {
	return Read(bytes.NewReader(data), int64(len(data)))
}

func load(zr *zip.Reader) (*Document, error) {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	for _, name := range []string{partContentTypes, partDocument} {
		if files[name] == nil {
			return nil, formatError("missing required part %s", name)
		}
	}

	var doc documentXML
	if err := decodePart(files[partDocument], &doc); err != nil {
		return nil, formatError("parsing %s: %v", partDocument, err)
	}

	// Styles and core properties are optional; a broken one is ignored the
	// same way a missing one is.
	styles := newStyleTable(nil)
	if f := files[partStyles]; f != nil {
		var sx stylesXML
		if err := decodePart(f, &sx); err == nil {
			styles = newStyleTable(&sx)
		}
	}
	var core corePropertiesXML
	if f := files[partCore]; f != nil {
		_ = decodePart(f, &core)
	}

	return build(&doc, styles, core)
}

func decodePart(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxPartSize+1))
	if err != nil {
		return err
	}
	if len(data) > MaxPartSize {
		return errPartTooLarge
	}
	return xml.Unmarshal(data, v)
}
