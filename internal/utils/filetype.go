package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Upload validation errors. They are plain errors; the caller decides which
// error class they belong to.
var (
	ErrEmptyUpload       = errors.New("upload is empty")
	ErrUploadTooLarge    = errors.New("upload exceeds size limit")
	ErrUnsupportedUpload = errors.New("unsupported file type")
)

// scriptableTypes can carry active content and are refused even when their
// prefix is allowed. Payloads are served inline from our own origin.
var scriptableTypes = map[string]struct{}{
	"image/svg+xml": {},
}

// UploadValidator checks an uploaded payload and detects its content type
// from its bytes. The client-declared type is never trusted.
type UploadValidator struct {
	MaxBytes int64
	// AllowedPrefixes lists accepted media type prefixes, e.g. "image/".
	AllowedPrefixes []string
}

// Validate returns the detected content type of data.
func (v UploadValidator) Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}
	if v.MaxBytes > 0 && int64(len(data)) > v.MaxBytes {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrUploadTooLarge, len(data), v.MaxBytes)
	}
	mt := mimetype.Detect(data)
	ct := mt.String()
	if len(v.AllowedPrefixes) == 0 {
		return ct, nil
	}
	base := strings.SplitN(ct, ";", 2)[0]
	if _, bad := scriptableTypes[base]; bad {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedUpload, base)
	}
	for _, p := range v.AllowedPrefixes {
		if strings.HasPrefix(base, p) {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedUpload, base)
}
