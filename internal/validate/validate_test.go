package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/normalize"
	"github.com/parsebank/statement-parser/internal/parse"
)

func record(row int, date, amount, balance, refID string) normalize.Record {
	rec := normalize.Record{ReferenceID: refID}
	rec.Row = row
	rec.Amount = decimal.RequireFromString(amount)
	rec.Description = "TX"
	rec.Extractor = constants.ExtractorCSV
	if date != "" {
		rec.Date, _ = time.Parse("2006-01-02", date)
	}
	if balance != "" {
		rec.Balance = decimal.NewNullDecimal(decimal.RequireFromString(balance))
	}
	return rec
}

func opening(s string) parse.Metadata {
	return parse.Metadata{OpeningBalance: decimal.NewNullDecimal(decimal.RequireFromString(s))}
}

func TestRunningBalanceClean(t *testing.T) {
	records := []normalize.Record{
		record(0, "2025-01-02", "-50.00", "950.00", "a"),
		record(1, "2025-01-03", "2000.00", "2950.00", "b"),
		record(2, "2025-01-04", "-75.25", "2874.75", "c"),
	}
	rep := New(Config{}, nil).Validate(records, opening("1000.00"))

	if rep.Valid != 3 || rep.Warnings != 0 || rep.Rejected != 0 {
		t.Fatalf("verdicts: valid=%d warnings=%d rejected=%d", rep.Valid, rep.Warnings, rep.Rejected)
	}
	for i, rec := range rep.Records {
		if rec.Severity != constants.SeverityValid {
			t.Errorf("record %d severity = %s", i, rec.Severity)
		}
		if rec.Stage != constants.StageValidated {
			t.Errorf("record %d stage = %s", i, rec.Stage)
		}
	}
}

func TestRunningBalanceSingleCorruptRow(t *testing.T) {
	records := []normalize.Record{
		record(0, "2025-01-02", "-50.00", "950.00", "a"),
		record(1, "2025-01-03", "2000.00", "2950.01", "b"),
		record(2, "2025-01-04", "-75.25", "2874.75", "c"),
	}
	// One mistyped stated balance flags its own row only; the computed
	// chain carries on from the transaction amounts.
	rep := New(Config{}, nil).Validate(records, opening("1000.00"))

	if rep.Records[0].Severity != constants.SeverityValid {
		t.Errorf("row 0 severity = %s", rep.Records[0].Severity)
	}
	if rep.Records[1].Severity != constants.SeverityWarning {
		t.Errorf("row 1 severity = %s, want warning", rep.Records[1].Severity)
	}
	if rep.Records[2].Severity != constants.SeverityValid {
		t.Errorf("row 2 severity = %s, want valid (computed chain unaffected)", rep.Records[2].Severity)
	}
	if rep.RuleCounts[RuleRunningBalance] != 1 {
		t.Errorf("running balance hits = %d", rep.RuleCounts[RuleRunningBalance])
	}
}

func TestRunningBalanceLargeDriftRejects(t *testing.T) {
	records := []normalize.Record{
		record(0, "2025-01-02", "-50.00", "5000.00", "a"),
	}
	rep := New(Config{}, nil).Validate(records, opening("1000.00"))
	if rep.Records[0].Severity != constants.SeverityRejected {
		t.Fatalf("severity = %s, want rejected", rep.Records[0].Severity)
	}
	if rep.Rejected != 1 {
		t.Errorf("rejected count = %d", rep.Rejected)
	}
	// rejected records stay in the output
	if len(rep.Records) != 1 {
		t.Errorf("records = %d", len(rep.Records))
	}
}

func TestRunningBalanceInferredOpening(t *testing.T) {
	// No declared opening: the first stated balance seeds the check.
	records := []normalize.Record{
		record(0, "2025-01-02", "-50.00", "950.00", "a"),
		record(1, "2025-01-03", "100.00", "1050.00", "b"),
		record(2, "2025-01-04", "-25.00", "1030.00", "c"),
	}
	rep := New(Config{}, nil).Validate(records, parse.Metadata{})
	if rep.Records[0].Severity != constants.SeverityValid {
		t.Errorf("row 0 severity = %s", rep.Records[0].Severity)
	}
	if rep.Records[1].Severity != constants.SeverityValid {
		t.Errorf("row 1 severity = %s", rep.Records[1].Severity)
	}
	if rep.Records[2].Severity != constants.SeverityWarning {
		t.Errorf("row 2 severity = %s, want warning (1025 expected)", rep.Records[2].Severity)
	}
}

func TestDateOrder(t *testing.T) {
	records := []normalize.Record{
		record(0, "2025-01-05", "-1.00", "", "a"),
		record(1, "2025-01-03", "-1.00", "", "b"),
		record(2, "2025-01-03", "-1.00", "", "c"),
	}
	rep := New(Config{}, nil).Validate(records, parse.Metadata{})

	if rep.Records[1].Severity != constants.SeverityWarning {
		t.Errorf("out-of-order row severity = %s", rep.Records[1].Severity)
	}
	// equal dates are fine
	if rep.Records[2].Severity != constants.SeverityValid {
		t.Errorf("equal-date row severity = %s", rep.Records[2].Severity)
	}
}

func TestUnresolvedAndDisputedFields(t *testing.T) {
	rec := record(0, "2025-01-02", "-1.00", "", "a")
	rec.Unresolved = []constants.FieldKind{constants.FieldDate}
	rec.Disputed = []constants.FieldKind{constants.FieldAmount}

	rep := New(Config{}, nil).Validate([]normalize.Record{rec}, parse.Metadata{})
	got := rep.Records[0]
	if got.Severity != constants.SeverityWarning {
		t.Fatalf("severity = %s", got.Severity)
	}
	if rep.RuleCounts[RuleUnresolvedField] != 1 || rep.RuleCounts[RuleDisputedField] != 1 {
		t.Errorf("rule counts = %v", rep.RuleCounts)
	}
	if len(got.IssueStrings()) != 2 {
		t.Errorf("issue strings = %v", got.IssueStrings())
	}
}

func TestDuplicateReference(t *testing.T) {
	records := []normalize.Record{
		record(0, "2025-01-02", "-1.00", "", "same"),
		record(1, "2025-01-03", "-2.00", "", "same"),
	}
	rep := New(Config{}, nil).Validate(records, parse.Metadata{})
	if rep.Records[0].Severity != constants.SeverityValid {
		t.Errorf("first occurrence severity = %s", rep.Records[0].Severity)
	}
	if rep.Records[1].Severity != constants.SeverityWarning {
		t.Errorf("duplicate severity = %s", rep.Records[1].Severity)
	}
}

func TestClosingBalanceMismatch(t *testing.T) {
	records := []normalize.Record{
		record(0, "2025-01-02", "-50.00", "950.00", "a"),
	}
	md := opening("1000.00")
	md.ClosingBalance = decimal.NewNullDecimal(decimal.RequireFromString("900.00"))

	rep := New(Config{}, nil).Validate(records, md)
	if len(rep.Statement) != 1 {
		t.Fatalf("statement violations = %d", len(rep.Statement))
	}
	if rep.Statement[0].Rule != RuleClosingBalance {
		t.Errorf("rule = %s", rep.Statement[0].Rule)
	}
	// statement-level issue leaves record verdicts alone
	if rep.Records[0].Severity != constants.SeverityValid {
		t.Errorf("record severity = %s", rep.Records[0].Severity)
	}
}

func TestSeverityAggregationIsMax(t *testing.T) {
	rec := record(0, "2025-01-02", "-50.00", "5000.00", "a")
	rec.Unresolved = []constants.FieldKind{constants.FieldDescription}

	rep := New(Config{}, nil).Validate([]normalize.Record{rec}, opening("1000.00"))
	if rep.Records[0].Severity != constants.SeverityRejected {
		t.Fatalf("severity = %s, want rejected (max of warning, rejected)", rep.Records[0].Severity)
	}
	if len(rep.Records[0].Violations) != 2 {
		t.Errorf("violations = %d, want both recorded", len(rep.Records[0].Violations))
	}
}
