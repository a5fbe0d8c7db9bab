// Package docpipe runs Word documents through loading, formatting
// extraction and pre-flight inspection, enforcing the file-level checks
// (extension, size, emptiness) that precede parsing.
//
//	pipe := docpipe.New(docpipe.Config{})
//	res, err := pipe.Extract(ctx, "/path/to/book.docx")
//	fmt.Println(len(res.FormattingRanges), "ranges")
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/audioscribe/docx"
	"github.com/hazyhaar/audioscribe/formatting"
	"github.com/hazyhaar/audioscribe/kit"
)

// Extension is the only accepted file extension.
const Extension = ".docx"

var (
	ErrUnsupportedFormat = errors.New("unsupported file type: only .docx is accepted")
	ErrFileTooLarge      = errors.New("file too large")
	ErrEmptyFile         = errors.New("empty file")
)

// Pipeline is the document processing engine. It is safe for concurrent use.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	extractor *formatting.Extractor
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:       cfg,
		logger:    cfg.Logger,
		extractor: formatting.NewExtractor(cfg.Logger),
	}
}

// MaxFileSize returns the configured size ceiling.
func (p *Pipeline) MaxFileSize() int64 { return p.cfg.MaxFileSize }

// CheckName rejects file names without the .docx extension.
func CheckName(name string) error {
	if !strings.EqualFold(filepath.Ext(name), Extension) {
		return fmt.Errorf("%w (got %q)", ErrUnsupportedFormat, filepath.Ext(name))
	}
	return nil
}

// CheckSize rejects empty files and files over the ceiling.
func (p *Pipeline) CheckSize(size int64) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if size > p.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, p.cfg.MaxFileSize)
	}
	return nil
}

// Load checks the file at path and parses it.
func (p *Pipeline) Load(ctx context.Context, path string) (*docx.Document, error) {
	if err := CheckName(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := p.CheckSize(info.Size()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug("loading document", "path", path, "bytes", info.Size())
	return docx.Open(path)
}

// Extract loads path and returns its text and formatting ranges.
func (p *Pipeline) Extract(ctx context.Context, path string) (*formatting.Result, error) {
	doc, err := p.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := p.extractor.Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	p.logger.Debug("document extracted",
		"path", path,
		"transport", kit.GetTransport(ctx),
		"paragraphs", res.Metadata.TotalParagraphs,
		"ranges", res.Metadata.TotalFormattingRanges,
		"text_length", res.Metadata.FinalTextLength,
	)
	return res, nil
}

// Validate reports whether path is a readable Word document. An unreadable
// document is not an error: it yields Valid=false with the reason. Errors
// are returned only for file-level problems (missing, too large, wrong
// extension) and cancellation.
func (p *Pipeline) Validate(ctx context.Context, path string) (formatting.Validation, error) {
	doc, err := p.Load(ctx, path)
	if err != nil {
		if formatting.IsFormatError(err) || formatting.IsExtractionError(err) {
			return invalid(err), nil
		}
		return formatting.Validation{}, err
	}
	return formatting.Inspect(doc), nil
}

// Estimate returns the complexity estimate of the document at path.
// Unreadable documents are reported the same way as in Validate.
func (p *Pipeline) Estimate(ctx context.Context, path string) (formatting.Estimate, error) {
	doc, err := p.Load(ctx, path)
	if err != nil {
		if formatting.IsFormatError(err) || formatting.IsExtractionError(err) {
			return formatting.Estimate{Validation: invalid(err)}, nil
		}
		return formatting.Estimate{}, err
	}
	return formatting.EstimateComplexity(doc), nil
}

func invalid(err error) formatting.Validation {
	return formatting.Validation{
		Valid:       false,
		StylesFound: []string{},
		Error:       err.Error(),
	}
}
