package extract

import (
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/parsebank/statement-parser/constants"
)

// OCRConfig holds engine settings for the OCR extractor.
type OCRConfig struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	DPI         int           // rasterization DPI for scanned PDFs, default 300
	PSM         int           // 6 is good for a uniform block of text
	Timeout     time.Duration // per-document cap on engine runtime; zero means uncapped
}

// OCRExtractor recognizes text in images and scanned PDFs with an
// external tesseract engine, then parses transaction lines out of the
// recognized text. Lowest trust tier: every candidate carries the
// engine's recognition confidence.
type OCRExtractor struct {
	cfg    OCRConfig
	runner Runner
	logger *slog.Logger
}

func NewOCRExtractor(cfg OCRConfig, logger *slog.Logger) *OCRExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PSM <= 0 {
		cfg.PSM = 6
	}
	return &OCRExtractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

func (e *OCRExtractor) Kind() constants.ExtractorKind { return constants.ExtractorOCR }

func (e *OCRExtractor) Extract(ctx context.Context, doc *Document) ([]Candidate, Diagnostics, error) {
	start := time.Now()
	diag := Diagnostics{Extractor: e.Kind(), Engine: "tesseract"}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	tmpDir, err := os.MkdirTemp("", "sp-ocr-*")
	if err != nil {
		diag.Duration = time.Since(start)
		return nil, diag, err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			e.logger.Warn("extract.ocr.tmp_cleanup_failed", "dir", tmpDir, "error", rerr)
		}
	}()

	pagePaths, err := e.pageImages(doc, tmpDir)
	if err != nil {
		diag.Duration = time.Since(start)
		return nil, diag, err
	}
	diag.Pages = len(pagePaths)

	var all []Candidate
	var fullText strings.Builder
	row := 0
	for p, path := range pagePaths {
		if err := ctx.Err(); err != nil {
			diag.Duration = time.Since(start)
			return all, diag, err
		}
		lines, heuristic, err := e.recognizePage(ctx, path)
		if err != nil {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("page %d: %v", p+1, err))
			continue
		}
		diag.HeuristicConfidence = diag.HeuristicConfidence || heuristic
		for i, ln := range lines {
			fullText.WriteString(ln.text)
			fullText.WriteString("\n")
			cands := lineCandidates(ln.text, e.Kind(), row, SourceRef{Page: p + 1, Line: i + 1}, ln.confidence)
			if len(cands) == 0 {
				continue
			}
			all = append(all, cands...)
			row++
		}
	}

	diag.Metadata = sniffMetadata(fullText.String(), nil)
	diag.Rows = countRows(all)
	diag.Duration = time.Since(start)
	e.logger.Debug("extract.ocr.done",
		"doc", doc.Name,
		"pages", diag.Pages,
		"rows", diag.Rows,
		"candidates", len(all),
		"heuristic_confidence", diag.HeuristicConfidence,
	)
	return all, diag, nil
}

// pageImages materializes the document as one image file per page.
// Images pass through unchanged; PDFs are rasterized with go-fitz.
func (e *OCRExtractor) pageImages(doc *Document, tmpDir string) ([]string, error) {
	if !strings.Contains(doc.MIME, "pdf") {
		path := filepath.Join(tmpDir, "page-1.img")
		if err := os.WriteFile(path, doc.Bytes, 0o600); err != nil {
			return nil, err
		}
		return []string{path}, nil
	}

	pdf, err := fitz.NewFromMemory(doc.Bytes)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rasterization: %w", err)
	}
	defer pdf.Close()

	var paths []string
	for p := 0; p < pdf.NumPage(); p++ {
		img, err := pdf.ImageDPI(p, float64(e.cfg.DPI))
		if err != nil {
			return paths, fmt.Errorf("render page %d: %w", p+1, err)
		}
		path := filepath.Join(tmpDir, fmt.Sprintf("page-%d.png", p+1))
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		if err := png.Encode(f, img); err != nil {
			_ = f.Close()
			return paths, fmt.Errorf("encode page %d: %w", p+1, err)
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type ocrLine struct {
	text       string
	confidence float64
}

// recognizePage runs tesseract in TSV mode and reconstructs lines with
// per-line confidence. Falls back to plain text plus a content
// heuristic when TSV output is unusable.
func (e *OCRExtractor) recognizePage(ctx context.Context, imgPath string) ([]ocrLine, bool, error) {
	args := []string{imgPath, "stdout", "-l", e.cfg.Lang, "--psm", strconv.Itoa(e.cfg.PSM)}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	tsvOut, _, err := e.runner.Run(ctx, e.cfg.Tesseract, append(args, "tsv")...)
	if err != nil {
		return nil, false, fmt.Errorf("tesseract: %w", err)
	}

	lines := parseTSVLines(string(tsvOut))
	if len(lines) > 0 {
		return lines, false, nil
	}

	// TSV came back empty or malformed; retry in plain-text mode.
	txtOut, _, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return nil, false, fmt.Errorf("tesseract: %w", err)
	}
	conf := heuristicConfidence(string(txtOut))
	var out []ocrLine
	for _, ln := range strings.Split(string(txtOut), "\n") {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		out = append(out, ocrLine{text: ln, confidence: conf})
	}
	return out, true, nil
}

// parseTSVLines groups tesseract TSV words into lines. TSV columns:
// level page block par line word left top width height conf text.
func parseTSVLines(tsv string) []ocrLine {
	type lineKey struct{ block, par, line string }
	order := []lineKey{}
	words := map[lineKey][]string{}
	confs := map[lineKey][]float64{}

	rows := strings.Split(tsv, "\n")
	for i, r := range rows {
		if i == 0 || strings.TrimSpace(r) == "" {
			continue // header or blank
		}
		cols := strings.Split(r, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" { // word level only
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		k := lineKey{block: cols[2], par: cols[3], line: cols[4]}
		if _, seen := words[k]; !seen {
			order = append(order, k)
		}
		words[k] = append(words[k], text)
		confs[k] = append(confs[k], conf)
	}

	var out []ocrLine
	for _, k := range order {
		sum := 0.0
		for _, c := range confs[k] {
			sum += c
		}
		out = append(out, ocrLine{
			text:       strings.Join(words[k], " "),
			confidence: sum / float64(len(confs[k])) / 100.0,
		})
	}
	return out
}
