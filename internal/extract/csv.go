package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/template"
)

// CSVExtractor is a structured parser for delimiter-separated
// statements. Deterministic, so it carries full confidence.
type CSVExtractor struct {
	templates *template.Set
	logger    *slog.Logger
}

func NewCSVExtractor(templates *template.Set, logger *slog.Logger) *CSVExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVExtractor{templates: templates, logger: logger}
}

func (e *CSVExtractor) Kind() constants.ExtractorKind { return constants.ExtractorCSV }

func (e *CSVExtractor) Extract(ctx context.Context, doc *Document) ([]Candidate, Diagnostics, error) {
	start := time.Now()
	diag := Diagnostics{Extractor: e.Kind(), Engine: "encoding/csv", Pages: 1}

	if err := ctx.Err(); err != nil {
		return nil, diag, err
	}

	rows, err := readDelimited(doc.Bytes)
	if err != nil {
		diag.Duration = time.Since(start)
		return nil, diag, fmt.Errorf("read csv: %w", err)
	}

	var tpl *template.Template
	if e.templates != nil {
		tpl, _ = e.templates.Match(joinRows(headRows(rows, 10)))
	}

	cands, md, warns := tableCandidates(rows, tpl, e.Kind(), 1)
	diag.Template = tpl
	diag.Metadata = md
	diag.Warnings = warns
	diag.Rows = countRows(cands)
	diag.Duration = time.Since(start)

	e.logger.Debug("extract.csv.done",
		"doc", doc.Name,
		"rows", diag.Rows,
		"candidates", len(cands),
		"template", tpl != nil,
	)
	return cands, diag, nil
}

// readDelimited sniffs the delimiter from the first line and reads the
// whole document with ragged-row tolerance.
func readDelimited(raw []byte) ([][]string, error) {
	delim := sniffDelimiter(raw)
	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func sniffDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	s := string(line)
	best, bestCount := ',', strings.Count(s, ",")
	for _, d := range []rune{';', '\t', '|'} {
		if c := strings.Count(s, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

func headRows(rows [][]string, n int) [][]string {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}

// countRows counts distinct row indexes among the candidates.
func countRows(cands []Candidate) int {
	seen := map[int]struct{}{}
	for _, c := range cands {
		seen[c.Row] = struct{}{}
	}
	return len(seen)
}
