package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/assets"
)

// multipartMemory bounds how much of a multipart body is buffered in memory
// before spilling to temporary files.
const multipartMemory = 10 << 20

// parseMultipart enforces the configured upload ceiling and parses the form.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: upload exceeds %d bytes", apperrors.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: malformed multipart body: %v", apperrors.ErrValidation, err)
	}
	return nil
}

// formFile returns the named multipart file as an upload input. A missing
// required file is a validation error; a missing optional file reports ok=false.
func formFile(r *http.Request, field, kind string, required bool) (assets.Input, io.Closer, bool, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) && !required {
			return assets.Input{}, nil, false, nil
		}
		return assets.Input{}, nil, false, fmt.Errorf("%w: file %q is required", apperrors.ErrValidation, field)
	}
	return assets.Input{Kind: kind, Name: header.Filename, Body: file}, file, true, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if c != nil {
			c.Close()
		}
	}
}
