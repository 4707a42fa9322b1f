// Package report renders analysis text into PDF documents.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Renderer produces a PDF document from analysis text.
type Renderer interface {
	Render(title, url, body string) ([]byte, error)
}

// PDF is the fpdf-backed renderer.
type PDF struct{}

// NewPDF constructs the renderer.
func NewPDF() *PDF { return &PDF{} }

// Render lays out an A4 report: title header, source URL and date line,
// then the analysis body with wrapped paragraphs.
func (p *PDF) Render(title, url, body string) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(18, 20, 18)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 18)
	if title == "" {
		title = "CRO Analysis Report"
	}
	doc.MultiCell(0, 9, title, "", "L", false)
	doc.Ln(2)

	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(90, 90, 90)
	doc.MultiCell(0, 5, fmt.Sprintf("%s | %s", url, time.Now().Format("January 2, 2006")), "", "L", false)
	doc.SetTextColor(0, 0, 0)
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 11)
	for _, para := range strings.Split(body, "\n") {
		para = strings.TrimRight(para, " \t")
		if para == "" {
			doc.Ln(3)
			continue
		}
		doc.MultiCell(0, 5.5, para, "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
