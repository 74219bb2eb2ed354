// Package extract turns an uploaded document or image into reference text.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

// Strategy names an extraction backend.
type Strategy string

const (
	// DocumentText reads the text layer of a structured document.
	DocumentText Strategy = "document_text"
	// LocalOCR recognises text in a raster image on this host.
	LocalOCR Strategy = "local_ocr"
	// RemoteVisionOCR asks a vision-capable model to read a raster image.
	RemoteVisionOCR Strategy = "remote_vision_ocr"
)

// ImageMode selects which strategy handles raster images.
type ImageMode string

const (
	ImageModeVision ImageMode = "vision"
	ImageModeOCR    ImageMode = "ocr"
)

// DefaultMaxBytes bounds the size of an upload.
const DefaultMaxBytes = 10 << 20

// Upload is a received file.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Reference is the text extracted from an upload.
type Reference struct {
	Name     string
	Strategy Strategy
	Text     string
}

// Backend extracts text with one strategy.
type Backend interface {
	Extract(ctx context.Context, u Upload) (string, error)
}

// Config configures an Extractor.
type Config struct {
	ImageMode         ImageMode
	AllowedExtensions []string
	MaxBytes          int64
	Timeout           time.Duration
}

// Extractor selects a backend per upload and runs it.
type Extractor struct {
	cfg      Config
	backends map[Strategy]Backend
	logger   *slog.Logger
}

// New creates an Extractor. Strategies without a backend fail at extraction time.
func New(cfg Config, backends map[Strategy]Backend, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ImageMode == "" {
		cfg.ImageMode = ImageModeVision
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{"pdf", "png", "jpg", "jpeg"}
	}
	return &Extractor{cfg: cfg, backends: backends, logger: logger}
}

// AllowedExtensions returns the upload extensions the UI should offer.
func (e *Extractor) AllowedExtensions() []string {
	out := make([]string, len(e.cfg.AllowedExtensions))
	copy(out, e.cfg.AllowedExtensions)
	return out
}

// Extract validates u, selects a strategy and returns the extracted text.
// Every failure is an extraction error; an empty Text means the backend found
// no text, never that it broke.
func (e *Extractor) Extract(ctx context.Context, u Upload) (Reference, error) {
	if len(u.Data) == 0 {
		return Reference{}, domain.ExtractionError(domain.CodeUnsupportedUpload, "The uploaded file is empty.", nil)
	}
	if int64(len(u.Data)) > e.cfg.MaxBytes {
		return Reference{}, domain.ExtractionError(domain.CodeUploadTooLarge,
			fmt.Sprintf("The uploaded file is larger than %d MB.", e.cfg.MaxBytes>>20), nil)
	}

	ext := extension(u.Name)
	if !e.allowed(ext) {
		return Reference{}, domain.ExtractionError(domain.CodeUnsupportedUpload,
			fmt.Sprintf("Files of type %q are not supported. Allowed: %s.", ext, strings.Join(e.cfg.AllowedExtensions, ", ")), nil)
	}

	u.ContentType = DetectContentType(u)
	strategy, err := SelectStrategy(u.ContentType, e.cfg.ImageMode)
	if err != nil {
		return Reference{}, err
	}
	backend, ok := e.backends[strategy]
	if !ok {
		return Reference{}, domain.ExtractionError(domain.CodeExtractFailed,
			fmt.Sprintf("Reading %s files is not available on this server.", ext), fmt.Errorf("no backend for %s", strategy))
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := backend.Extract(ctx, u)
	if err != nil {
		e.logger.Warn("Reference extraction failed",
			"strategy", strategy,
			"file", u.Name,
			"size", len(u.Data),
			"error", err,
		)
		if ctx.Err() == context.DeadlineExceeded {
			return Reference{}, domain.ExtractionError(domain.CodeTimeout, "Reading the file took too long. Please try again.", err)
		}
		return Reference{}, domain.ExtractionError(domain.CodeExtractFailed,
			"We could not read the uploaded file. Please check it and upload it again.", err)
	}

	e.logger.Info("Reference extracted",
		"strategy", strategy,
		"file", u.Name,
		"size", len(u.Data),
		"text_length", len(text),
		"duration", time.Since(start),
	)
	return Reference{Name: u.Name, Strategy: strategy, Text: text}, nil
}

func (e *Extractor) allowed(ext string) bool {
	for _, a := range e.cfg.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// SelectStrategy maps a MIME type and image mode to a strategy.
func SelectStrategy(contentType string, mode ImageMode) (Strategy, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "application/pdf":
		return DocumentText, nil
	case "image/png", "image/jpeg":
		if mode == ImageModeOCR {
			return LocalOCR, nil
		}
		return RemoteVisionOCR, nil
	default:
		return "", domain.ExtractionError(domain.CodeUnsupportedUpload,
			fmt.Sprintf("Files of type %q are not supported.", mediaType), nil)
	}
}

// DetectContentType sniffs the payload and falls back to the extension, so a
// mislabelled browser Content-Type does not pick the wrong strategy.
func DetectContentType(u Upload) string {
	sniffed := http.DetectContentType(u.Data)
	if sniffed != "application/octet-stream" && !strings.HasPrefix(sniffed, "text/plain") {
		return sniffed
	}
	if byExt := mime.TypeByExtension("." + extension(u.Name)); byExt != "" {
		return byExt
	}
	if u.ContentType != "" {
		return u.ContentType
	}
	return sniffed
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
