// Package extract defines the extractor-pool contract and its
// implementations: structured CSV/XLSX parsing, embedded-text PDF
// parsing, OCR, and a model-backed sequence labeler. Every extractor
// turns a Document into field-level candidates; nothing here mutates
// the document or talks to another extractor.
package extract

import (
	"context"
	"time"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/template"
)

// Document is the immutable unit of input for one pipeline run.
type Document struct {
	Name  string
	MIME  string
	Bytes []byte
	Pages int // page count for PDFs, sheet count for workbooks; 0 when unknown
}

// SourceRef records where a candidate value was read from, for audit.
type SourceRef struct {
	Page   int    // 1-based page (PDF/image) or sheet index (workbook)
	Line   int    // row within the page or sheet
	Column string // column header or cell reference for tabular sources
}

// Candidate is one extractor's proposed value for one field of one row.
// Candidates are never mutated after creation.
type Candidate struct {
	Extractor  constants.ExtractorKind
	Row        int // estimated row index within the statement
	Kind       constants.FieldKind
	Value      string
	Confidence float64 // in [0,1]
	Source     SourceRef
}

// Metadata is statement-level information sniffed from header text.
// Values are raw strings; typing happens downstream.
type Metadata struct {
	BankName       string
	AccountNumber  string
	AccountName    string
	Period         string // e.g. "01/01/2025 to 31/01/2025"
	OpeningBalance string
	ClosingBalance string
	Currency       string
}

// Empty reports whether nothing was sniffed.
func (m Metadata) Empty() bool {
	return m == Metadata{}
}

// Diagnostics summarizes one extractor run for observability. It is
// reported even when the run fails.
type Diagnostics struct {
	Extractor constants.ExtractorKind
	Engine    string // underlying engine identity, e.g. "go-fitz", "tesseract", model name
	Pages     int
	Rows      int
	Duration  time.Duration
	Warnings  []string
	Metadata  Metadata

	// HeuristicConfidence marks runs where the engine gave no usable
	// confidence and a content heuristic was substituted.
	HeuristicConfidence bool

	// Template is the bank template matched during extraction, if any,
	// carried downstream so its date layouts and sign policy reach the
	// parser. Excluded from serialized diagnostics.
	Template *template.Template `json:"-"`

	// Err and TimedOut record a failed run. A failed extractor never
	// blocks the statement; its diagnostics are still reported.
	Err      string
	TimedOut bool
}

// Extractor is the uniform capability every pool member implements.
// Implementations must be safe for concurrent use across documents and
// must honor ctx cancellation on long-running engines.
type Extractor interface {
	Kind() constants.ExtractorKind
	Extract(ctx context.Context, doc *Document) ([]Candidate, Diagnostics, error)
}
