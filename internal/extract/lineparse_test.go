package extract

import (
	"testing"

	"github.com/parsebank/statement-parser/constants"
)

func kindValue(cands []Candidate, k constants.FieldKind) (string, bool) {
	for _, c := range cands {
		if c.Kind == k {
			return c.Value, true
		}
	}
	return "", false
}

func TestLineCandidatesSingleAmount(t *testing.T) {
	cands := lineCandidates("02/01/2025 COFFEE SHOP DR 4.50", constants.ExtractorOCR, 0, SourceRef{Page: 1}, 0.7)
	if cands == nil {
		t.Fatal("transaction line not recognized")
	}
	if v, _ := kindValue(cands, constants.FieldDate); v != "02/01/2025" {
		t.Errorf("date = %q", v)
	}
	if v, _ := kindValue(cands, constants.FieldAmount); v != "4.50" {
		t.Errorf("amount = %q", v)
	}
	if v, _ := kindValue(cands, constants.FieldDescription); v != "COFFEE SHOP DR" {
		t.Errorf("description = %q", v)
	}
	for _, c := range cands {
		if c.Kind == constants.FieldAmount && c.Source.Column != "debit" {
			t.Errorf("amount column = %q, DR hint should mark debit", c.Source.Column)
		}
	}
}

func TestLineCandidatesAmountAndBalance(t *testing.T) {
	cands := lineCandidates("03/01/2025 SALARY 2,000.00 2,995.50", constants.ExtractorPDFText, 4, SourceRef{Page: 2}, 0.9)
	if v, _ := kindValue(cands, constants.FieldAmount); v != "2,000.00" {
		t.Errorf("amount = %q", v)
	}
	if v, _ := kindValue(cands, constants.FieldBalance); v != "2,995.50" {
		t.Errorf("balance = %q", v)
	}
	for _, c := range cands {
		if c.Row != 4 {
			t.Errorf("row = %d, want 4", c.Row)
		}
	}
}

func TestLineCandidatesDebitCreditBalance(t *testing.T) {
	// zero debit, populated credit, balance
	cands := lineCandidates("03/01/2025 SALARY 0.00 2000.00 2995.50", constants.ExtractorOCR, 0, SourceRef{}, 0.7)
	v, _ := kindValue(cands, constants.FieldAmount)
	if v != "2000.00" {
		t.Errorf("amount = %q, want the credit cell", v)
	}
	if bv, _ := kindValue(cands, constants.FieldBalance); bv != "2995.50" {
		t.Errorf("balance = %q", bv)
	}
}

func TestLineCandidatesRejectsNonTransaction(t *testing.T) {
	for _, line := range []string{
		"Statement of Account",
		"Page 1 of 3",
		"02/01/2025 undated amounts only",
		"no date 4.50",
	} {
		if got := lineCandidates(line, constants.ExtractorOCR, 0, SourceRef{}, 0.5); got != nil {
			t.Errorf("line %q produced candidates %v", line, got)
		}
	}
}

func TestTextCandidatesRowNumbering(t *testing.T) {
	text := "First Bank\n02/01/2025 COFFEE 4.50\nnoise line\n03/01/2025 TAXI 12.00\n"
	cands := textCandidates(text, constants.ExtractorPDFText, 1, 0, 0.9)
	if countRows(cands) != 2 {
		t.Fatalf("rows = %d", countRows(cands))
	}
	for _, c := range cands {
		if c.Row > 1 {
			t.Errorf("row index %d, noise lines must not consume rows", c.Row)
		}
	}
}

func TestExtractReference(t *testing.T) {
	tests := []struct {
		desc string
		want string
		ok   bool
	}{
		{"PAYMENT Ref: AB123", "AB123", true},
		{"TRANSFER REFERENCE X99", "X99", true},
		{"TXN ID: 555a", "555a", true},
		{"COFFEE SHOP", "", false},
	}
	for _, tt := range tests {
		got, ok := extractReference(tt.desc)
		if got != tt.want || ok != tt.ok {
			t.Errorf("extractReference(%q) = %q,%v want %q,%v", tt.desc, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHeuristicConfidence(t *testing.T) {
	rich := "Statement 02/01/2025 COFFEE £4.50 balance 995.50 more text to pass the length bar, padding padding padding padding"
	poor := "x"
	if hc := heuristicConfidence(rich); hc <= heuristicConfidence(poor) {
		t.Errorf("rich text confidence %v not above poor %v", hc, heuristicConfidence(poor))
	}
	if hc := heuristicConfidence(poor); hc != 0.2 {
		t.Errorf("base confidence = %v, want 0.2", hc)
	}
}

func TestSniffMetadata(t *testing.T) {
	text := "HSBC Bank\nAccount No: 12345678\nStatement Period: 01/01/2025 to 31/01/2025\n" +
		"Opening Balance: 1,000.00\nClosing Balance: 2,874.75\nGBP\n"
	md := sniffMetadata(text, nil)
	if md.BankName != "HSBC" {
		t.Errorf("bank = %q", md.BankName)
	}
	if md.AccountNumber != "12345678" {
		t.Errorf("account number = %q", md.AccountNumber)
	}
	if md.Period != "01/01/2025 to 31/01/2025" {
		t.Errorf("period = %q", md.Period)
	}
	if md.OpeningBalance != "1,000.00" || md.ClosingBalance != "2,874.75" {
		t.Errorf("balances = %q / %q", md.OpeningBalance, md.ClosingBalance)
	}
	if md.Currency != "GBP" {
		t.Errorf("currency = %q", md.Currency)
	}
	if sniffMetadata("nothing here", nil).Empty() != true {
		t.Error("plain text should sniff nothing")
	}
}
