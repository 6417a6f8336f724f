// Package render paginates report text into downloadable documents.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/skywatchai/reportforge/pkg/domain"
)

const pageWidth = 190 // usable width in mm on A4 portrait

// PDFRenderer implements domain.Renderer with a simple paginated layout:
// centered title, generation timestamp, then the report body with
// markdown-style headings promoted to bold section headers.
type PDFRenderer struct {
	now func() time.Time
}

// NewPDFRenderer creates a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{now: time.Now}
}

// Render produces the PDF bytes for the report under the given title.
func (r *PDFRenderer) Render(report, title string) ([]byte, error) {
	if strings.TrimSpace(report) == "" {
		return nil, &domain.RenderError{Err: fmt.Errorf("empty report text")}
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(pageWidth, 10, tr("Intelligence Report: "+title), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "I", 10)
	pdf.CellFormat(pageWidth, 10, "Generated on: "+r.now().Format("2006-01-02 15:04:05"), "", 1, "L", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 12)
	for _, paragraph := range strings.Split(report, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if strings.HasPrefix(paragraph, "#") || strings.HasPrefix(paragraph, "**") {
			pdf.SetFont("Arial", "B", 14)
			heading := strings.TrimSpace(strings.NewReplacer("#", "", "*", "").Replace(paragraph))
			pdf.CellFormat(pageWidth, 10, tr(heading), "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 12)
			continue
		}
		pdf.MultiCell(pageWidth, 10, tr(paragraph), "", "L", false)
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &domain.RenderError{Err: err}
	}
	return buf.Bytes(), nil
}
