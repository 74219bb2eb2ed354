//go:build tesseract

package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// OCRAvailable reports whether local OCR was compiled in.
const OCRAvailable = true

// Tesseract recognises text in images with libtesseract.
type Tesseract struct {
	Languages []string
}

var _ Backend = Tesseract{}

// Extract implements Backend.
func (t Tesseract) Extract(ctx context.Context, u Upload) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if len(t.Languages) > 0 {
		if err := client.SetLanguage(t.Languages...); err != nil {
			return "", fmt.Errorf("set ocr language: %w", err)
		}
	}
	if err := client.SetImageFromBytes(u.Data); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognise text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
