package constants

// FieldKind identifies which transaction field a candidate value belongs to.
type FieldKind string

const (
	FieldDate        FieldKind = "date"
	FieldAmount      FieldKind = "amount"
	FieldDescription FieldKind = "description"
	FieldBalance     FieldKind = "balance"
	FieldReference   FieldKind = "reference"
)

// ExtractorKind names the extraction strategies in the pool.
type ExtractorKind string

const (
	ExtractorCSV     ExtractorKind = "csv"
	ExtractorXLSX    ExtractorKind = "xlsx"
	ExtractorPDFText ExtractorKind = "pdf_text"
	ExtractorOCR     ExtractorKind = "ocr"
	ExtractorML      ExtractorKind = "ml"
)

// DefaultTrustTiers ranks extractor kinds; a higher tier wins candidate
// merges. Structured parsers are deterministic and outrank everything,
// OCR sits at the bottom. Callers may override per run.
var DefaultTrustTiers = map[ExtractorKind]int{
	ExtractorCSV:     40,
	ExtractorXLSX:    40,
	ExtractorPDFText: 30,
	ExtractorML:      20,
	ExtractorOCR:     10,
}
