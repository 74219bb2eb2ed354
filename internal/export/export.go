// Package export renders an assistant reply into a downloadable document.
//
// Text is split on line boundaries and each line becomes one block (a PDF
// text cell or a Word paragraph) in order. No markdown is interpreted.
package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

// Format selects the document writer.
type Format string

const (
	// PDF renders a portable document.
	PDF Format = "pdf"
	// WordDocument renders an Office Open XML word-processor document.
	WordDocument Format = "docx"
)

// Document is a fully rendered file.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Renderer writes lines into one complete document.
type Renderer interface {
	// Render returns the encoded document. It never returns partial output.
	Render(lines []string) ([]byte, error)

	// FileName returns the default download name.
	FileName() string

	// ContentType returns the MIME type of the document.
	ContentType() string
}

// ParseFormat maps a query value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return PDF, nil
	case "docx", "word":
		return WordDocument, nil
	default:
		return "", domain.InvalidError(fmt.Sprintf("unknown export format %q", s))
	}
}

// RendererFor returns the renderer for f.
func RendererFor(f Format) (Renderer, error) {
	switch f {
	case PDF:
		return PDFRenderer{}, nil
	case WordDocument:
		return DocxRenderer{}, nil
	default:
		return nil, domain.InvalidError(fmt.Sprintf("unknown export format %q", f))
	}
}

// SplitLines splits text into lines, dropping a trailing \r from each.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Render renders text in format f.
func Render(text string, f Format) (Document, error) {
	r, err := RendererFor(f)
	if err != nil {
		return Document{}, err
	}
	data, err := r.Render(SplitLines(text))
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return Document{}, de
		}
		return Document{}, domain.ExportError(domain.CodeExportFailed, "Could not generate the document. Please try again.", err)
	}
	return Document{Name: r.FileName(), ContentType: r.ContentType(), Data: data}, nil
}
