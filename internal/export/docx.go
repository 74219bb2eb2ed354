package export

import (
	"bytes"
	"fmt"

	"baliance.com/gooxml/document"
)

const docxFileName = "EduGenie_Output.docx"

// DocxRenderer writes one paragraph per line.
type DocxRenderer struct{}

var _ Renderer = DocxRenderer{}

func (DocxRenderer) FileName() string { return docxFileName }

func (DocxRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

// Render implements Renderer.
func (DocxRenderer) Render(lines []string) ([]byte, error) {
	doc := document.New()
	for _, line := range lines {
		para := doc.AddParagraph()
		para.AddRun().AddText(line)
	}

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return nil, fmt.Errorf("write docx: %w", err)
	}
	return buf.Bytes(), nil
}
