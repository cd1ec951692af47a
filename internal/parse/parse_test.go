package parse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/extract"
	"github.com/parsebank/statement-parser/internal/orchestrate"
)

func TestParseDate(t *testing.T) {
	p := NewParser(Config{Locale: LocaleUK}, nil)

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "uk slashes", raw: "02/01/2025", want: "2025-01-02"},
		{name: "iso", raw: "2025-01-02", want: "2025-01-02"},
		{name: "short year", raw: "02/01/25", want: "2025-01-02"},
		{name: "month name", raw: "2 Jan 2025", want: "2025-01-02"},
		{name: "padded with spaces", raw: "  02/01/2025 ", want: "2025-01-02"},
		{name: "garbage", raw: "not a date", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.parseDate(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseDate(%q): expected error, got %v", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDate(%q): %v", tt.raw, err)
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("parseDate(%q) = %s, want %s", tt.raw, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestCleanAmount(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		locale  LocaleProfile
		want    string
		negCue  bool
		wantErr bool
	}{
		{name: "plain", raw: "50.00", locale: LocaleUK, want: "50"},
		{name: "negative", raw: "-75.25", locale: LocaleUK, want: "75.25", negCue: true},
		{name: "thousands", raw: "2,000.00", locale: LocaleUK, want: "2000"},
		{name: "currency symbol", raw: "£1,250.75", locale: LocaleUK, want: "1250.75"},
		{name: "parentheses", raw: "(99.99)", locale: LocaleUK, want: "99.99", negCue: true},
		{name: "eu separators", raw: "1.234,56", locale: LocaleEU, want: "1234.56"},
		{name: "plus prefix", raw: "+12.00", locale: LocaleUK, want: "12"},
		{name: "not numeric", raw: "abc", locale: LocaleUK, wantErr: true},
		{name: "empty", raw: "", locale: LocaleUK, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mag, cues, err := cleanAmount(tt.raw, tt.locale)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("cleanAmount(%q): expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("cleanAmount(%q): %v", tt.raw, err)
			}
			if mag.String() != tt.want {
				t.Errorf("cleanAmount(%q) magnitude = %s, want %s", tt.raw, mag.String(), tt.want)
			}
			if cues.negative != tt.negCue {
				t.Errorf("cleanAmount(%q) negative cue = %v, want %v", tt.raw, cues.negative, tt.negCue)
			}
		})
	}
}

func TestSignPolicies(t *testing.T) {
	mag := decimal.RequireFromString("100")

	tests := []struct {
		name    string
		policy  SignPolicy
		cues    signCues
		column  string
		want    string
		wantErr bool
	}{
		{name: "signed column negative", policy: SignSignedColumn, cues: signCues{negative: true}, want: "-100"},
		{name: "signed column positive", policy: SignSignedColumn, want: "100"},
		{name: "debit column", policy: SignDebitCreditColumns, column: "Debit", want: "-100"},
		{name: "credit column", policy: SignDebitCreditColumns, column: "Credit", want: "100"},
		{name: "neither column", policy: SignDebitCreditColumns, column: "Amount", wantErr: true},
		{name: "dr suffix", policy: SignKeywordSuffix, cues: signCues{debitSuffix: true}, want: "-100"},
		{name: "cr suffix", policy: SignKeywordSuffix, cues: signCues{creditSuffix: true}, want: "100"},
		{name: "no suffix", policy: SignKeywordSuffix, wantErr: true},
		{name: "auto prefers column", policy: SignAuto, cues: signCues{negative: true}, column: "Paid In", want: "100"},
		{name: "auto falls back to sign", policy: SignAuto, cues: signCues{negative: true}, column: "Amount", want: "-100"},
		{name: "auto default positive", policy: SignAuto, column: "Amount", want: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.apply(mag, tt.cues, tt.column)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("apply: expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("apply = %s, want %s", got.String(), tt.want)
			}
		})
	}
}

func TestParseSignPolicy(t *testing.T) {
	if got := ParseSignPolicy("debit_credit_columns"); got != SignDebitCreditColumns {
		t.Errorf("ParseSignPolicy = %s", got)
	}
	if got := ParseSignPolicy(" Keyword_Suffix "); got != SignKeywordSuffix {
		t.Errorf("ParseSignPolicy with padding = %s", got)
	}
	if got := ParseSignPolicy("something else"); got != SignAuto {
		t.Errorf("ParseSignPolicy fallback = %s", got)
	}
}

func draftRow(row int, fields map[constants.FieldKind]string) orchestrate.Draft {
	d := orchestrate.Draft{Row: row, Fields: map[constants.FieldKind]orchestrate.ChosenField{}}
	for kind, value := range fields {
		d.Fields[kind] = orchestrate.ChosenField{
			Winner: extract.Candidate{
				Extractor:  constants.ExtractorCSV,
				Row:        row,
				Kind:       kind,
				Value:      value,
				Confidence: 1.0,
			},
		}
	}
	return d
}

func TestParseDraft(t *testing.T) {
	p := NewParser(Config{Locale: LocaleUK, Currency: "GBP"}, nil)

	drafts := []orchestrate.Draft{
		draftRow(0, map[constants.FieldKind]string{
			constants.FieldDate:        "02/01/2025",
			constants.FieldDescription: "COFFEE SHOP",
			constants.FieldAmount:      "-4.50",
			constants.FieldBalance:     "995.50",
			constants.FieldReference:   "REF123",
		}),
		draftRow(1, map[constants.FieldKind]string{
			constants.FieldDate:   "garbage",
			constants.FieldAmount: "10.00",
		}),
		draftRow(2, map[constants.FieldKind]string{
			constants.FieldDate:        "04/01/2025",
			constants.FieldDescription: "UNKNOWN CHARGE",
		}),
	}

	txs := p.Parse(drafts)
	if len(txs) != 3 {
		t.Fatalf("Parse returned %d transactions, want 3", len(txs))
	}

	first := txs[0]
	if first.Date != time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) {
		t.Errorf("first date = %v", first.Date)
	}
	if first.Amount.String() != "-4.5" {
		t.Errorf("first amount = %s", first.Amount)
	}
	if !first.Balance.Valid || first.Balance.Decimal.String() != "995.5" {
		t.Errorf("first balance = %+v", first.Balance)
	}
	if first.Reference != "REF123" {
		t.Errorf("first reference = %q", first.Reference)
	}
	if len(first.Unresolved) != 0 {
		t.Errorf("first unresolved = %v", first.Unresolved)
	}
	if first.Stage != constants.StageTyped {
		t.Errorf("first stage = %s", first.Stage)
	}

	second := txs[1]
	if !hasField(second.Unresolved, constants.FieldDate) {
		t.Errorf("second should carry unresolved date, got %v", second.Unresolved)
	}
	if second.Amount.String() != "10" {
		t.Errorf("second amount = %s", second.Amount)
	}
	if len(second.Issues) == 0 {
		t.Error("second should carry a parse issue")
	}

	third := txs[2]
	if !hasField(third.Unresolved, constants.FieldAmount) {
		t.Errorf("third should carry unresolved amount, got %v", third.Unresolved)
	}
}

func TestParseDraftDisputed(t *testing.T) {
	p := NewParser(Config{Locale: LocaleUK}, nil)

	d := draftRow(0, map[constants.FieldKind]string{
		constants.FieldDate:   "02/01/2025",
		constants.FieldAmount: "-4.50",
	})
	cf := d.Fields[constants.FieldAmount]
	cf.Disputed = true
	d.Fields[constants.FieldAmount] = cf

	txs := p.Parse([]orchestrate.Draft{d})
	if !hasField(txs[0].Disputed, constants.FieldAmount) {
		t.Errorf("disputed fields = %v, want amount", txs[0].Disputed)
	}
}

func TestParseMetadata(t *testing.T) {
	p := NewParser(Config{Locale: LocaleUK, Currency: "GBP"}, nil)

	md := p.ParseMetadata(extract.Metadata{
		BankName:       " First Bank ",
		AccountNumber:  "12345678",
		Period:         "01/01/2025 to 31/01/2025",
		OpeningBalance: "1,000.00",
		ClosingBalance: "£2,874.75",
	})
	if md.BankName != "First Bank" {
		t.Errorf("bank = %q", md.BankName)
	}
	if !md.OpeningBalance.Valid || md.OpeningBalance.Decimal.String() != "1000" {
		t.Errorf("opening = %+v", md.OpeningBalance)
	}
	if !md.ClosingBalance.Valid || md.ClosingBalance.Decimal.String() != "2874.75" {
		t.Errorf("closing = %+v", md.ClosingBalance)
	}
	if md.PeriodStart.Format("2006-01-02") != "2025-01-01" {
		t.Errorf("period start = %v", md.PeriodStart)
	}
	if md.PeriodEnd.Format("2006-01-02") != "2025-01-31" {
		t.Errorf("period end = %v", md.PeriodEnd)
	}
	if md.Currency != "GBP" {
		t.Errorf("currency = %q", md.Currency)
	}
}

func hasField(fields []constants.FieldKind, want constants.FieldKind) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}
