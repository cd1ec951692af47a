package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/parse"
)

func tx(row int, date, desc, amount string) parse.Transaction {
	t := parse.Transaction{
		Row:         row,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Extractor:   constants.ExtractorCSV,
		Stage:       constants.StageTyped,
	}
	if date != "" {
		t.Date, _ = time.Parse("2006-01-02", date)
	}
	return t
}

func TestNormalizeReferenceIDsDeterministic(t *testing.T) {
	input := []parse.Transaction{
		tx(0, "2025-01-02", "COFFEE SHOP", "-4.50"),
		tx(1, "2025-01-03", "SALARY", "2000.00"),
	}

	n := New(Config{AccountID: "acct-1", Currency: "GBP"}, nil)
	first := n.Normalize(input)
	second := n.Normalize(input)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("lengths: %d, %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ReferenceID == "" {
			t.Fatalf("record %d has empty reference id", i)
		}
		if first[i].ReferenceID != second[i].ReferenceID {
			t.Errorf("record %d: ids differ between runs", i)
		}
		if first[i].Stage != constants.StageNormalized {
			t.Errorf("record %d stage = %s", i, first[i].Stage)
		}
	}
	if first[0].ReferenceID == first[1].ReferenceID {
		t.Error("distinct transactions share a reference id")
	}
}

func TestNormalizeAccountChangesID(t *testing.T) {
	input := []parse.Transaction{tx(0, "2025-01-02", "COFFEE", "-4.50")}

	a := New(Config{AccountID: "acct-1"}, nil).Normalize(input)
	b := New(Config{AccountID: "acct-2"}, nil).Normalize(input)
	if a[0].ReferenceID == b[0].ReferenceID {
		t.Error("same id across accounts")
	}
}

func TestNormalizeSequenceCounter(t *testing.T) {
	// Two genuine same-day, same-amount, same-description rows must
	// keep distinct ids.
	input := []parse.Transaction{
		tx(0, "2025-01-02", "COFFEE", "-4.50"),
		tx(1, "2025-01-02", "COFFEE", "-4.50"),
	}
	out := New(Config{AccountID: "a"}, nil).Normalize(input)
	if len(out) != 2 {
		t.Fatalf("got %d records", len(out))
	}
	if out[0].ReferenceID == out[1].ReferenceID {
		t.Error("sequence counter failed to distinguish duplicates")
	}
}

func TestNormalizeDedupSupplementary(t *testing.T) {
	dup := tx(5, "2025-01-02", "COFFEE", "-4.50")
	dup.Supplementary = true
	dup.Extractor = constants.ExtractorOCR

	input := []parse.Transaction{
		tx(0, "2025-01-02", "COFFEE", "-4.50"),
		dup,
	}
	out := New(Config{AccountID: "a"}, nil).Normalize(input)
	if len(out) != 1 {
		t.Fatalf("got %d records, want 1 after collapse", len(out))
	}
	if out[0].Extractor != constants.ExtractorCSV {
		t.Errorf("kept extractor = %s, want higher-trust csv", out[0].Extractor)
	}
	if out[0].Collapsed != 1 {
		t.Errorf("collapsed = %d, want 1", out[0].Collapsed)
	}
}

func TestNormalizeDedupKeepsHigherTierSupplementary(t *testing.T) {
	// Reverse case: the supplementary copy outranks the kept one.
	low := tx(0, "2025-01-02", "COFFEE", "-4.50")
	low.Extractor = constants.ExtractorOCR

	high := tx(5, "2025-01-02", "COFFEE", "-4.50")
	high.Supplementary = true
	high.Extractor = constants.ExtractorCSV

	out := New(Config{AccountID: "a"}, nil).Normalize([]parse.Transaction{low, high})
	if len(out) != 1 {
		t.Fatalf("got %d records", len(out))
	}
	if out[0].Extractor != constants.ExtractorCSV {
		t.Errorf("kept extractor = %s, want csv", out[0].Extractor)
	}
	if out[0].Row != 0 {
		t.Errorf("kept row = %d, want original position", out[0].Row)
	}
}

func TestNormalizeRounding(t *testing.T) {
	in := tx(0, "2025-01-02", "X", "-4.505")
	out := New(Config{AccountID: "a"}, nil).Normalize([]parse.Transaction{in})
	// Round rounds half away from zero.
	if got := out[0].Amount.String(); got != "-4.51" {
		t.Errorf("rounded amount = %s, want -4.51", got)
	}
}

func TestCanonicalDescription(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "collapse spaces", in: "  COFFEE   SHOP  ", want: "COFFEE SHOP"},
		{name: "tabs and newlines", in: "A\tB\nC", want: "A B C"},
		{name: "nfc composition", in: "Café", want: "Café"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalDescription(tt.in); got != tt.want {
				t.Errorf("CanonicalDescription(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCurrencyCode(t *testing.T) {
	tests := []struct {
		raw, fallback, want string
	}{
		{"£", "", "GBP"},
		{"usd", "", "USD"},
		{"", "gbp", "GBP"},
		{"€", "GBP", "EUR"},
	}
	for _, tt := range tests {
		if got := CurrencyCode(tt.raw, tt.fallback); got != tt.want {
			t.Errorf("CurrencyCode(%q, %q) = %q, want %q", tt.raw, tt.fallback, got, tt.want)
		}
	}
}
