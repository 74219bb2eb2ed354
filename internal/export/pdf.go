package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/sparkmindlabs/edugenie/internal/domain"
)

const (
	pdfFileName   = "EduGenie_Output.pdf"
	pdfLineHeight = 6.0
	pdfFontSize   = 12.0
)

// PDFRenderer writes one MultiCell per line on A4 pages with default margins.
// The core Helvetica font only covers Windows-1252.
type PDFRenderer struct{}

var _ Renderer = PDFRenderer{}

func (PDFRenderer) FileName() string    { return pdfFileName }
func (PDFRenderer) ContentType() string { return "application/pdf" }

// Render implements Renderer.
func (PDFRenderer) Render(lines []string) ([]byte, error) {
	encoded := make([]string, len(lines))
	for i, line := range lines {
		s, err := encodeWindows1252(line)
		if err != nil {
			return nil, domain.ExportError(domain.CodeUnsupportedChars,
				fmt.Sprintf("Line %d contains characters the PDF font cannot show. Try the Word export instead.", i+1), err)
		}
		encoded[i] = s
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("EduGenie Output", true)
	pdf.SetCreator("EduGenie Assistant", true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", pdfFontSize)
	for _, line := range encoded {
		pdf.MultiCell(0, pdfLineHeight, line, "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeWindows1252(s string) (string, error) {
	for _, r := range s {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return "", fmt.Errorf("rune %q (U+%04X) not in Windows-1252", r, r)
		}
	}
	return charmap.Windows1252.NewEncoder().String(s)
}
