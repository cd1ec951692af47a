// Package classify assigns a document-type tag and a structural
// estimate to raw input. Classification is a pure decision: it never
// errors on unrecognized input, returning a low-confidence unknown
// instead so the orchestrator can pick a generic fallback chain.
package classify

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/extract"
)

// Classification is the classifier's verdict for one document.
type Classification struct {
	Format     constants.DocumentFormat
	Confidence float64
	Pages      int
	SlowProbe  bool // whether the slow probe had to run
}

type Classifier struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger}
}

// Classify runs the cheap signature probe and, for PDFs only,
// escalates to the slow text-layer probe to split the PDF variants.
func (c *Classifier) Classify(doc *extract.Document) Classification {
	start := time.Now()
	res := c.cheapProbe(doc)
	if res.Format.IsPDF() {
		res = c.slowProbePDF(doc, res)
	}
	c.logger.Debug("classify.done",
		"doc", doc.Name,
		"format", string(res.Format),
		"confidence", res.Confidence,
		"pages", res.Pages,
		"slow_probe", res.SlowProbe,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// cheapProbe inspects file signatures and declared MIME only.
func (c *Classifier) cheapProbe(doc *extract.Document) Classification {
	b := doc.Bytes
	switch {
	case bytes.HasPrefix(b, []byte("%PDF-")):
		cl := Classification{Format: constants.FormatPDFText, Confidence: 0.5}
		if n, err := api.PageCount(bytes.NewReader(b), nil); err == nil {
			cl.Pages = n
		}
		return cl
	case bytes.HasPrefix(b, []byte("PK\x03\x04")):
		// zip container; xlsx is the only zip format we accept
		return Classification{Format: constants.FormatXLSX, Confidence: 0.9, Pages: 1}
	case bytes.HasPrefix(b, []byte("\x89PNG")),
		bytes.HasPrefix(b, []byte{0xFF, 0xD8, 0xFF}),
		bytes.HasPrefix(b, []byte("II*\x00")),
		bytes.HasPrefix(b, []byte("MM\x00*")):
		return Classification{Format: constants.FormatImage, Confidence: 0.95, Pages: 1}
	}

	if strings.Contains(doc.MIME, "csv") || looksLikeCSV(b) {
		return Classification{Format: constants.FormatCSV, Confidence: 0.85, Pages: 1}
	}
	return Classification{Format: constants.FormatUnknown, Confidence: 0.1}
}

// slowProbePDF renders the text layer and measures its density to
// split pdf_text / pdf_tabular / pdf_scanned.
func (c *Classifier) slowProbePDF(doc *extract.Document, cl Classification) Classification {
	cl.SlowProbe = true

	pdf, err := fitz.NewFromMemory(doc.Bytes)
	if err != nil {
		// unreadable PDF body; keep the signature verdict, low confidence
		cl.Confidence = 0.3
		return cl
	}
	defer pdf.Close()

	cl.Pages = pdf.NumPage()
	probePages := cl.Pages
	if probePages > 3 {
		probePages = 3
	}

	var chars, tabularLines, textLines int
	for p := 0; p < probePages; p++ {
		text, err := pdf.Text(p)
		if err != nil {
			continue
		}
		chars += len(strings.TrimSpace(text))
		for _, line := range strings.Split(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			textLines++
			if countAmountTokens(line) >= 2 {
				tabularLines++
			}
		}
	}

	density := 0
	if probePages > 0 {
		density = chars / probePages
	}

	switch {
	case density < 64:
		cl.Format = constants.FormatPDFScanned
		cl.Confidence = 0.85
	case textLines > 0 && tabularLines*3 >= textLines:
		cl.Format = constants.FormatPDFTabular
		cl.Confidence = 0.8
	default:
		cl.Format = constants.FormatPDFText
		cl.Confidence = 0.9
	}
	return cl
}

var amountToken = regexp.MustCompile(`-?\d{1,3}(?:,\d{3})*\.\d{2}\b`)

func countAmountTokens(line string) int {
	return len(amountToken.FindAllString(line, -1))
}

// looksLikeCSV accepts mostly-printable text whose first lines agree on
// a delimiter count.
func looksLikeCSV(b []byte) bool {
	if len(b) == 0 || !isMostlyText(b) {
		return false
	}
	sample := b
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	lines := strings.Split(string(sample), "\n")
	if len(lines) < 2 {
		return false
	}
	for _, d := range []string{",", ";", "\t", "|"} {
		first := strings.Count(lines[0], d)
		if first == 0 {
			continue
		}
		agree := 0
		checked := 0
		for _, ln := range lines[1:] {
			if strings.TrimSpace(ln) == "" {
				continue
			}
			checked++
			diff := strings.Count(ln, d) - first
			if diff >= -1 && diff <= 1 {
				agree++
			}
			if checked == 10 {
				break
			}
		}
		if checked > 0 && agree*2 > checked {
			return true
		}
	}
	return false
}

func isMostlyText(b []byte) bool {
	sample := b
	if len(sample) > 1024 {
		sample = sample[:1024]
	}
	binary := 0
	for _, c := range sample {
		if c == 0 || (c < 0x09 && c != 0) {
			binary++
		}
	}
	return binary*50 < len(sample)
}
