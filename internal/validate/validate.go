// Package validate runs ordered, independent consistency rules over a
// normalized statement. Rules accumulate violations; nothing stops at
// the first failure and rejected records stay in the output.
package validate

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/normalize"
	"github.com/parsebank/statement-parser/internal/parse"
)

const (
	RuleRunningBalance     = "running_balance"
	RuleDateOrder          = "date_order"
	RuleUnresolvedField    = "unresolved_field"
	RuleDisputedField      = "disputed_field"
	RuleDuplicateReference = "duplicate_reference"
	RuleClosingBalance     = "closing_balance"
)

// Violation is one triggered rule on a record or statement.
type Violation struct {
	Rule     string              `json:"rule"`
	Severity constants.Severity  `json:"severity"`
	Field    constants.FieldKind `json:"field,omitempty"`
	Message  string              `json:"message"`
}

// Checked pairs a record with its verdict. The verdict never mutates
// the record.
type Checked struct {
	normalize.Record
	Severity   constants.Severity
	Violations []Violation
}

// IssueStrings flattens the record's violations into short
// "rule: message" lines for display and export.
func (c *Checked) IssueStrings() []string {
	if len(c.Violations) == 0 {
		return nil
	}
	out := make([]string, 0, len(c.Violations))
	for _, v := range c.Violations {
		out = append(out, v.Rule+": "+v.Message)
	}
	return out
}

// Report is the statement-level validation outcome.
type Report struct {
	Records    []Checked
	Statement  []Violation // violations not attributable to one record
	Valid      int
	Warnings   int
	Rejected   int
	RuleCounts map[string]int
}

// Config tunes the tolerance bands. A balance drift within Epsilon is
// clean, within RejectDelta a warning, beyond it a rejection.
type Config struct {
	Epsilon     decimal.Decimal
	RejectDelta decimal.Decimal
}

type Validator struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Validator {
	if cfg.Epsilon.IsZero() {
		cfg.Epsilon = decimal.New(5, -3) // half a cent: a one-cent drift already warns
	}
	if cfg.RejectDelta.IsZero() {
		cfg.RejectDelta = decimal.New(100, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg, logger: logger}
}

// Validate applies every rule to every record in order and aggregates
// each record's verdict as the maximum triggered severity.
func (v *Validator) Validate(records []normalize.Record, md parse.Metadata) Report {
	rep := Report{
		Records:    make([]Checked, 0, len(records)),
		RuleCounts: map[string]int{},
	}
	for _, rec := range records {
		rec.Stage = constants.StageValidated
		rep.Records = append(rep.Records, Checked{Record: rec})
	}

	v.checkFields(&rep)
	v.checkRunningBalance(&rep, md)
	v.checkDateOrder(&rep)
	v.checkDuplicates(&rep)
	v.checkClosing(&rep, md)

	for i := range rep.Records {
		switch rep.Records[i].Severity {
		case constants.SeverityRejected:
			rep.Rejected++
		case constants.SeverityWarning:
			rep.Warnings++
		default:
			rep.Valid++
		}
	}
	v.logger.Info("validate.done",
		"records", len(rep.Records),
		"valid", rep.Valid,
		"warnings", rep.Warnings,
		"rejected", rep.Rejected,
	)
	return rep
}

func (rep *Report) add(i int, vio Violation) {
	rec := &rep.Records[i]
	rec.Violations = append(rec.Violations, vio)
	rec.Severity = constants.MaxSeverity(rec.Severity, vio.Severity)
	rep.RuleCounts[vio.Rule]++
}

func (rep *Report) addStatement(vio Violation) {
	rep.Statement = append(rep.Statement, vio)
	rep.RuleCounts[vio.Rule]++
}

// checkFields surfaces parser and orchestrator flags: an unresolved or
// disputed field is at least a warning.
func (v *Validator) checkFields(rep *Report) {
	for i := range rep.Records {
		for _, f := range rep.Records[i].Unresolved {
			rep.add(i, Violation{
				Rule:     RuleUnresolvedField,
				Severity: constants.SeverityWarning,
				Field:    f,
				Message:  fmt.Sprintf("field %s could not be parsed", f),
			})
		}
		for _, f := range rep.Records[i].Disputed {
			rep.add(i, Violation{
				Rule:     RuleDisputedField,
				Severity: constants.SeverityWarning,
				Field:    f,
				Message:  fmt.Sprintf("extractors disagree on field %s", f),
			})
		}
	}
}

// checkRunningBalance tracks opening balance plus cumulative signed
// amounts and compares against each stated balance. Without a declared
// opening balance, the first stated balance seeds the check and that
// row is taken as consistent.
func (v *Validator) checkRunningBalance(rep *Report, md parse.Metadata) {
	running, ok := openingBalance(rep, md)
	if !ok {
		return
	}
	for i := range rep.Records {
		rec := &rep.Records[i]
		if hasUnresolved(rec, constants.FieldAmount) {
			continue
		}
		running = running.Add(rec.Amount)
		if !rec.Balance.Valid {
			continue
		}
		drift := rec.Balance.Decimal.Sub(running).Abs()
		if drift.LessThanOrEqual(v.cfg.Epsilon) {
			continue
		}
		sev := constants.SeverityWarning
		if drift.GreaterThan(v.cfg.RejectDelta) {
			sev = constants.SeverityRejected
		}
		rep.add(i, Violation{
			Rule:     RuleRunningBalance,
			Severity: sev,
			Field:    constants.FieldBalance,
			Message: fmt.Sprintf("stated balance %s differs from computed %s by %s",
				rec.Balance.Decimal.StringFixed(2), running.StringFixed(2), drift.StringFixed(2)),
		})
		// The computed chain keeps going. A typo in one stated balance
		// then flags that row alone; later rows consistent with the
		// transaction amounts stay clean.
	}
}

func openingBalance(rep *Report, md parse.Metadata) (decimal.Decimal, bool) {
	if md.OpeningBalance.Valid {
		return md.OpeningBalance.Decimal, true
	}
	cumulative := decimal.Zero
	for i := range rep.Records {
		rec := &rep.Records[i]
		if hasUnresolved(rec, constants.FieldAmount) {
			continue
		}
		cumulative = cumulative.Add(rec.Amount)
		if rec.Balance.Valid {
			return rec.Balance.Decimal.Sub(cumulative), true
		}
	}
	return decimal.Zero, false
}

func (v *Validator) checkDateOrder(rep *Report) {
	var last *Checked
	for i := range rep.Records {
		rec := &rep.Records[i]
		if !rec.HasDate() {
			continue
		}
		if last != nil && rec.Date.Before(last.Date) {
			rep.add(i, Violation{
				Rule:     RuleDateOrder,
				Severity: constants.SeverityWarning,
				Field:    constants.FieldDate,
				Message: fmt.Sprintf("date %s precedes previous row's %s",
					rec.Date.Format("2006-01-02"), last.Date.Format("2006-01-02")),
			})
		}
		last = rec
	}
}

func (v *Validator) checkDuplicates(rep *Report) {
	seen := map[string]int{}
	for i := range rep.Records {
		id := rep.Records[i].ReferenceID
		if id == "" {
			continue
		}
		if first, dup := seen[id]; dup {
			rep.add(i, Violation{
				Rule:     RuleDuplicateReference,
				Severity: constants.SeverityWarning,
				Message:  fmt.Sprintf("reference id already used by row %d", rep.Records[first].Row),
			})
			continue
		}
		seen[id] = i
	}
}

// checkClosing reconciles the computed final balance against the
// statement's declared closing balance, when both exist.
func (v *Validator) checkClosing(rep *Report, md parse.Metadata) {
	if !md.OpeningBalance.Valid || !md.ClosingBalance.Valid {
		return
	}
	running := md.OpeningBalance.Decimal
	for i := range rep.Records {
		rec := &rep.Records[i]
		if hasUnresolved(rec, constants.FieldAmount) {
			continue
		}
		running = running.Add(rec.Amount)
	}
	drift := md.ClosingBalance.Decimal.Sub(running).Abs()
	if drift.LessThanOrEqual(v.cfg.Epsilon) {
		return
	}
	rep.addStatement(Violation{
		Rule:     RuleClosingBalance,
		Severity: constants.SeverityWarning,
		Message: fmt.Sprintf("declared closing balance %s differs from computed %s",
			md.ClosingBalance.Decimal.StringFixed(2), running.StringFixed(2)),
	})
}

func hasUnresolved(rec *Checked, kind constants.FieldKind) bool {
	for _, f := range rec.Unresolved {
		if f == kind {
			return true
		}
	}
	return false
}
