//go:build !tesseract

package extract

import (
	"context"
	"errors"
)

// OCRAvailable reports whether local OCR was compiled in.
const OCRAvailable = false

// ErrOCRUnavailable is returned when the binary was built without the tesseract tag.
var ErrOCRUnavailable = errors.New("local OCR not available: build with -tags tesseract")

// Tesseract is a placeholder that always fails without the tesseract build tag.
type Tesseract struct {
	Languages []string
}

var _ Backend = Tesseract{}

// Extract implements Backend.
func (Tesseract) Extract(context.Context, Upload) (string, error) {
	return "", ErrOCRUnavailable
}
