//go:build !tesseract

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

func TestLocalOCRUnavailableWithoutTag(t *testing.T) {
	e := newExtractor(&fakeVision{}, ImageModeOCR)

	_, err := e.Extract(context.Background(), Upload{Name: "scan.jpg", Data: pngHeader})

	assert.ErrorIs(t, err, ErrOCRUnavailable)
	assert.Equal(t, domain.KindExtraction, domain.KindOf(err))
	assert.False(t, OCRAvailable)
}
