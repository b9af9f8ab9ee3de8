package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/okian/survcast/internal/batch"
)

// uploadField is the multipart field carrying the batch file.
const uploadField = "file"

// UploadDependencies defines the interface for synchronous batch scoring.
type UploadDependencies interface {
	BatchScore(ctx context.Context, fileName string, data []byte) (*batch.Result, error)
}

// UploadHandler handles batch upload requests.
type UploadHandler struct {
	deps     UploadDependencies
	maxBytes int64
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps UploadDependencies, maxBytes int64) *UploadHandler {
	return &UploadHandler{deps: deps, maxBytes: maxBytes}
}

// HandleUpload handles POST /api/upload requests.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload"
	name, data, err := readUpload(w, r, h.maxBytes)
	if err != nil {
		fail(r.Context(), w, WrapKind(op, kindOf(err), err))
		return
	}
	res, err := h.deps.BatchScore(r.Context(), name, data)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readUpload extracts the file part of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (string, []byte, error) {
	// multipart framing needs a little room beyond the file itself
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64<<10)
	f, hdr, err := r.FormFile(uploadField)
	if err != nil {
		return "", nil, fmt.Errorf("form field %q: %w", uploadField, err)
	}
	defer f.Close()
	if hdr.Size > maxBytes {
		return "", nil, fmt.Errorf("%s is %d bytes: %w", hdr.Filename, hdr.Size, ErrTooLarge)
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return "", nil, err
	}
	if int64(len(data)) > maxBytes {
		return "", nil, fmt.Errorf("%s exceeds %d bytes: %w", hdr.Filename, maxBytes, ErrTooLarge)
	}
	return filepath.Base(hdr.Filename), data, nil
}

func kindOf(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.Is(err, ErrTooLarge) || errors.As(err, &tooLarge) {
		return ErrTooLarge
	}
	return ErrBadRequest
}
