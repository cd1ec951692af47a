package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/template"
)

// pdfTextConfidence is the base confidence for values read from an
// embedded text layer: trustworthy, but row segmentation from a PDF
// layout is not as certain as a structured table.
const pdfTextConfidence = 0.9

// PDFTextExtractor reads the embedded text layer of a PDF and parses
// transaction lines out of it. It covers both running-text and tabular
// PDF layouts; scanned PDFs yield nothing here and fall through to OCR.
type PDFTextExtractor struct {
	templates *template.Set
	logger    *slog.Logger
}

func NewPDFTextExtractor(templates *template.Set, logger *slog.Logger) *PDFTextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFTextExtractor{templates: templates, logger: logger}
}

func (e *PDFTextExtractor) Kind() constants.ExtractorKind { return constants.ExtractorPDFText }

func (e *PDFTextExtractor) Extract(ctx context.Context, doc *Document) ([]Candidate, Diagnostics, error) {
	start := time.Now()
	diag := Diagnostics{Extractor: e.Kind(), Engine: "go-fitz"}

	pdf, err := fitz.NewFromMemory(doc.Bytes)
	if err != nil {
		diag.Duration = time.Since(start)
		return nil, diag, fmt.Errorf("open pdf: %w", err)
	}
	defer pdf.Close()

	diag.Pages = pdf.NumPage()

	var all []Candidate
	var firstPageText, fullText string
	row := 0
	for p := 0; p < pdf.NumPage(); p++ {
		if err := ctx.Err(); err != nil {
			return all, diag, err
		}
		text, err := pdf.Text(p)
		if err != nil {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("page %d: %v", p+1, err))
			continue
		}
		if p == 0 {
			firstPageText = text
		}
		fullText += text + "\n"
		cands := textCandidates(text, e.Kind(), p+1, row, pdfTextConfidence)
		row += countRows(cands)
		all = append(all, cands...)
	}

	var tpl *template.Template
	if e.templates != nil {
		tpl, _ = e.templates.Match(firstPageText)
	}
	diag.Template = tpl
	diag.Metadata = sniffMetadata(fullText, tpl)
	diag.Rows = countRows(all)
	diag.Duration = time.Since(start)

	e.logger.Debug("extract.pdftext.done",
		"doc", doc.Name,
		"pages", diag.Pages,
		"rows", diag.Rows,
		"candidates", len(all),
	)
	return all, diag, nil
}
