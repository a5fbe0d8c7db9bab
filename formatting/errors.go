package formatting

import (
	"errors"
	"fmt"
)

// ErrDocumentFormat reports that the input is not an openable structured
// document. Loaders wrap their own errors with it.
var ErrDocumentFormat = errors.New("invalid document format")

// ExtractionError wraps an unexpected failure during the paragraph/run walk.
type ExtractionError struct {
	Paragraph int // index of the paragraph being processed, -1 if unknown
	Err       error
}

func (e *ExtractionError) Error() string {
	if e.Paragraph >= 0 {
		return fmt.Sprintf("extraction failed at paragraph %d: %v", e.Paragraph, e.Err)
	}
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is (or wraps) ErrDocumentFormat.
func IsFormatError(err error) bool { return errors.Is(err, ErrDocumentFormat) }

// IsExtractionError reports whether err is (or wraps) an *ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
