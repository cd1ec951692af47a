package constants

import "strings"

// DocumentFormat is the classifier's verdict for an ingested document.
type DocumentFormat string

// Stable values (stored verbatim in diagnostics and DB rows).
const (
	FormatPDFText    DocumentFormat = "pdf_text"    // PDF with a usable embedded text layer
	FormatPDFScanned DocumentFormat = "pdf_scanned" // PDF whose pages are images; needs OCR
	FormatPDFTabular DocumentFormat = "pdf_tabular" // PDF with a dense table layout
	FormatCSV        DocumentFormat = "csv"
	FormatXLSX       DocumentFormat = "xlsx"
	FormatImage      DocumentFormat = "image"
	FormatUnknown    DocumentFormat = "unknown"
)

// IsPDF reports whether the format is one of the PDF variants.
func (f DocumentFormat) IsPDF() bool {
	return f == FormatPDFText || f == FormatPDFScanned || f == FormatPDFTabular
}

// AllowedExtensions holds the file extensions accepted at the ingest
// boundary. Legacy xls is excluded: no extractor can read it.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"csv":  {},
	"xlsx": {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps an already-normalized extension to a coarse format.
// PDF sub-variants are only known after the classifier's probes run.
func MapExtToFormat(ext string) DocumentFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return FormatPDFText
	case "csv":
		return FormatCSV
	case "xlsx":
		return FormatXLSX
	case "jpg", "jpeg", "png", "tif", "tiff":
		return FormatImage
	default:
		return FormatUnknown
	}
}
