package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/parsebank/statement-parser/constants"
)

type stubRunner struct {
	tsv  string
	text string
}

func (s *stubRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	if args[len(args)-1] == "tsv" {
		return []byte(s.tsv), nil, nil
	}
	return []byte(s.text), nil, nil
}

func tsvWord(block, line, word, conf, text string) string {
	return strings.Join([]string{"5", "1", block, "1", line, word, "0", "0", "10", "10", conf, text}, "\t")
}

func TestOCRExtractTSVConfidence(t *testing.T) {
	tsv := strings.Join([]string{
		"level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext",
		tsvWord("1", "1", "1", "96.0", "02/01/2025"),
		tsvWord("1", "1", "2", "92.0", "COFFEE"),
		tsvWord("1", "1", "3", "88.0", "4.50"),
		"4\t1\t1\t1\t1\t0\t0\t0\t10\t10\t-1\t", // non-word level, skipped
	}, "\n")

	ex := NewOCRExtractor(OCRConfig{}, nil)
	ex.runner = &stubRunner{tsv: tsv}

	doc := &Document{Name: "scan.png", MIME: "image/png", Bytes: []byte("\x89PNGfake")}
	cands, diag, err := ex.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diag.HeuristicConfidence {
		t.Error("TSV run should carry engine confidence")
	}
	if countRows(cands) != 1 {
		t.Fatalf("rows = %d", countRows(cands))
	}
	for _, c := range cands {
		// 92% word average, scaled to [0,1]
		if c.Confidence < 0.9 || c.Confidence > 0.94 {
			t.Errorf("confidence = %v, want near 0.92", c.Confidence)
		}
		if c.Extractor != constants.ExtractorOCR {
			t.Errorf("extractor = %s", c.Extractor)
		}
	}
}

func TestOCRExtractHeuristicFallback(t *testing.T) {
	ex := NewOCRExtractor(OCRConfig{}, nil)
	ex.runner = &stubRunner{tsv: "", text: "02/01/2025 COFFEE 4.50\n"}

	doc := &Document{Name: "scan.png", MIME: "image/png", Bytes: []byte("\x89PNGfake")}
	cands, diag, err := ex.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !diag.HeuristicConfidence {
		t.Error("empty TSV must flag the heuristic fallback")
	}
	if countRows(cands) != 1 {
		t.Errorf("rows = %d", countRows(cands))
	}
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, _ string, _ ...string) ([]byte, []byte, error) {
	<-ctx.Done()
	return nil, nil, ctx.Err()
}

func TestOCRExtractTimeout(t *testing.T) {
	ex := NewOCRExtractor(OCRConfig{Timeout: time.Millisecond}, nil)
	ex.runner = blockingRunner{}

	doc := &Document{Name: "scan.png", MIME: "image/png", Bytes: []byte("\x89PNGfake")}
	cands, diag, err := ex.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("candidates = %d, want none from a timed-out engine", len(cands))
	}
	if len(diag.Warnings) == 0 || !strings.Contains(diag.Warnings[0], "deadline") {
		t.Errorf("warnings = %v, want the engine timeout recorded", diag.Warnings)
	}
}

func TestParseTSVLinesGrouping(t *testing.T) {
	tsv := strings.Join([]string{
		"header",
		tsvWord("1", "1", "1", "90.0", "first"),
		tsvWord("1", "1", "2", "90.0", "line"),
		tsvWord("1", "2", "1", "80.0", "second"),
	}, "\n")
	lines := parseTSVLines(tsv)
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	if lines[0].text != "first line" || lines[1].text != "second" {
		t.Errorf("texts = %q / %q", lines[0].text, lines[1].text)
	}
	if lines[1].confidence != 0.8 {
		t.Errorf("confidence = %v", lines[1].confidence)
	}
}
