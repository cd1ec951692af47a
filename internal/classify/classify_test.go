package classify

import (
	"testing"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/extract"
)

func TestCheapProbeSignatures(t *testing.T) {
	csvBody := []byte("Date,Description,Amount,Balance\n02/01/2025,COFFEE,-4.50,995.50\n03/01/2025,SALARY,2000.00,2995.50\n")

	tests := []struct {
		name       string
		doc        extract.Document
		wantFormat constants.DocumentFormat
	}{
		{"xlsx zip signature", extract.Document{Name: "a.xlsx", Bytes: []byte("PK\x03\x04rest")}, constants.FormatXLSX},
		{"png", extract.Document{Name: "scan.png", Bytes: []byte("\x89PNG\r\n")}, constants.FormatImage},
		{"jpeg", extract.Document{Name: "scan.jpg", Bytes: []byte{0xFF, 0xD8, 0xFF, 0xE0}}, constants.FormatImage},
		{"tiff", extract.Document{Name: "scan.tif", Bytes: []byte("II*\x00data")}, constants.FormatImage},
		{"csv by content", extract.Document{Name: "jan.txt", Bytes: csvBody}, constants.FormatCSV},
		{"csv by mime", extract.Document{Name: "jan.dat", MIME: "text/csv", Bytes: []byte("a,b\n1,2\n")}, constants.FormatCSV},
	}

	c := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(&tt.doc)
			if got.Format != tt.wantFormat {
				t.Errorf("format = %s, want %s", got.Format, tt.wantFormat)
			}
			if got.Confidence <= 0.5 {
				t.Errorf("confidence = %v, recognized signature should be confident", got.Confidence)
			}
		})
	}
}

func TestClassifyUnknownNeverErrors(t *testing.T) {
	c := New(nil)
	got := c.Classify(&extract.Document{Name: "junk.bin", Bytes: []byte{0x00, 0x01, 0x02, 0x00, 0x00}})
	if got.Format != constants.FormatUnknown {
		t.Fatalf("format = %s, want unknown", got.Format)
	}
	if got.Confidence >= 0.5 {
		t.Errorf("confidence = %v, unknown must stay low", got.Confidence)
	}
}

func TestClassifyMalformedPDFKeepsSignatureVerdict(t *testing.T) {
	c := New(nil)
	got := c.Classify(&extract.Document{Name: "broken.pdf", Bytes: []byte("%PDF-1.7 garbage with no xref")})
	if !got.Format.IsPDF() {
		t.Fatalf("format = %s, want a pdf variant", got.Format)
	}
	if !got.SlowProbe {
		t.Error("pdf input must run the slow probe")
	}
	if got.Confidence > 0.5 {
		t.Errorf("confidence = %v, unreadable body should not be confident", got.Confidence)
	}
}

func TestLooksLikeCSV(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"comma delimited", "a,b,c\n1,2,3\n4,5,6\n", true},
		{"semicolon delimited", "a;b;c\n1;2;3\n", true},
		{"quoted field with extra comma", "a,b,c\n\"x,y\",2,3\n", true},
		{"prose", "Dear customer\nyour statement is attached\n", false},
		{"single line", "a,b,c", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeCSV([]byte(tt.body)); got != tt.want {
				t.Errorf("looksLikeCSV = %v, want %v", got, tt.want)
			}
		})
	}
}
