package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/template"
)

// XLSXExtractor is the structured parser for Excel workbooks. Every
// sheet is scanned; candidates from later sheets continue the row
// numbering so the statement reads as one sequence.
type XLSXExtractor struct {
	templates *template.Set
	logger    *slog.Logger
}

func NewXLSXExtractor(templates *template.Set, logger *slog.Logger) *XLSXExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXExtractor{templates: templates, logger: logger}
}

func (e *XLSXExtractor) Kind() constants.ExtractorKind { return constants.ExtractorXLSX }

func (e *XLSXExtractor) Extract(ctx context.Context, doc *Document) ([]Candidate, Diagnostics, error) {
	start := time.Now()
	diag := Diagnostics{Extractor: e.Kind(), Engine: "excelize"}

	f, err := excelize.OpenReader(bytes.NewReader(doc.Bytes))
	if err != nil {
		diag.Duration = time.Since(start)
		return nil, diag, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			e.logger.Warn("extract.xlsx.close_failed", "doc", doc.Name, "error", cerr)
		}
	}()

	sheets := f.GetSheetList()
	diag.Pages = len(sheets)

	var all []Candidate
	rowOffset := 0
	for si, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return all, diag, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("sheet %q: %v", sheet, err))
			continue
		}
		var tpl *template.Template
		if e.templates != nil {
			tpl, _ = e.templates.Match(joinRows(headRows(rows, 10)))
		}
		cands, md, warns := tableCandidates(rows, tpl, e.Kind(), si+1)
		if diag.Template == nil {
			diag.Template = tpl
		}
		diag.Warnings = append(diag.Warnings, warns...)
		if diag.Metadata.Empty() {
			diag.Metadata = md
		}
		for i := range cands {
			cands[i].Row += rowOffset
		}
		rowOffset += countRows(cands)
		all = append(all, cands...)
	}

	diag.Rows = countRows(all)
	diag.Duration = time.Since(start)
	e.logger.Debug("extract.xlsx.done",
		"doc", doc.Name,
		"sheets", len(sheets),
		"rows", diag.Rows,
		"candidates", len(all),
	)
	return all, diag, nil
}
