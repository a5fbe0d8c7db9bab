package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hazyhaar/audioscribe/credits"
	"github.com/hazyhaar/audioscribe/docpipe"
	"github.com/hazyhaar/audioscribe/formatting"
	"github.com/hazyhaar/audioscribe/idgen"
	"github.com/hazyhaar/audioscribe/shield"
)

// formMemory is how much of a multipart form is kept in memory before
// spilling to disk.
const formMemory = 8 << 20

// Client-facing errors. Internal detail is logged, never returned.
var (
	errMissingFile  = errors.New("missing file field")
	errBadForm      = errors.New("malformed multipart form")
	errInvalidFile  = errors.New("invalid file")
	errProcessing   = errors.New("failed to process file")
	errInsufficient = errors.New("insufficient credits")
	errTooLarge     = errors.New("file too large")
	errUnavailable  = errors.New("request cancelled while waiting for a processing slot")
	errInternal     = errors.New("internal error")
)

// upload is a received file spooled to a temporary path.
type upload struct {
	path string
	name string
	size int64
}

func (u *upload) remove() { os.Remove(u.path) }

// receive reads the "file" field of a multipart request into a temporary
// .docx file. The caller removes it.
func (s *Server) receive(r *http.Request) (*upload, error) {
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fmt.Errorf("%w: %v", docpipe.ErrFileTooLarge, err)
		}
		return nil, fmt.Errorf("%w: %v", errBadForm, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMissingFile, err)
	}
	defer file.Close()

	if err := docpipe.CheckName(header.Filename); err != nil {
		return nil, err
	}
	if err := s.Pipeline.CheckSize(header.Size); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.opts.TempDir, idgen.Upload()+"-*"+docpipe.Extension)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(tmp, io.LimitReader(file, s.Pipeline.MaxFileSize()+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if err := s.Pipeline.CheckSize(n); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}

	return &upload{path: tmp.Name(), name: filepath.Base(header.Filename), size: n}, nil
}

// publicError maps an internal error to a status code and the message the
// client sees.
func publicError(err error) (int, error) {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, docpipe.ErrUnsupportedFormat):
		return http.StatusBadRequest, docpipe.ErrUnsupportedFormat
	case errors.Is(err, docpipe.ErrEmptyFile):
		return http.StatusBadRequest, docpipe.ErrEmptyFile
	case errors.Is(err, docpipe.ErrFileTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge, errTooLarge
	case errors.Is(err, errMissingFile):
		return http.StatusBadRequest, errMissingFile
	case errors.Is(err, errBadForm):
		return http.StatusBadRequest, errBadForm
	case errors.Is(err, credits.ErrInsufficient):
		return http.StatusPaymentRequired, errInsufficient
	case formatting.IsFormatError(err):
		return http.StatusBadRequest, errInvalidFile
	case formatting.IsExtractionError(err):
		return http.StatusInternalServerError, errProcessing
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errUnavailable
	default:
		return http.StatusInternalServerError, errInternal
	}
}

// fail logs err with the request logger and writes its public form.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, public := publicError(err)
	logger := shield.GetLogger(r.Context())
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "status", code, "error", err)
	} else {
		logger.Info("request rejected", "status", code, "error", err)
	}
	writeError(w, code, public)
}
