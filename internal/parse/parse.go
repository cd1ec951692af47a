// Package parse turns merged draft rows into typed transactions. Every
// field kind has its own policy; a field that refuses to parse is
// marked unresolved on the record instead of failing the statement.
package parse

import (
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/common"
	"github.com/parsebank/statement-parser/internal/extract"
	"github.com/parsebank/statement-parser/internal/orchestrate"
)

// FieldIssue is a structured parse diagnostic attached to a record.
type FieldIssue struct {
	Field   constants.FieldKind `json:"field"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
}

// Transaction is a typed record between drafting and normalization.
type Transaction struct {
	Row         int
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Balance     decimal.NullDecimal
	Reference   string
	Currency    string

	Extractor     constants.ExtractorKind // winner of the amount field
	Confidence    float64                 // lowest winning-field confidence
	Supplementary bool

	Unresolved []constants.FieldKind
	Disputed   []constants.FieldKind
	Issues     []FieldIssue
	Stage      constants.RecordStage
}

// HasDate reports whether the date field parsed.
func (t *Transaction) HasDate() bool { return !t.Date.IsZero() }

func (t *Transaction) fieldUnresolved(k constants.FieldKind) {
	t.Unresolved = append(t.Unresolved, k)
}

// Config selects the parsing policies for one run.
type Config struct {
	Locale      LocaleProfile
	SignPolicy  SignPolicy
	DateLayouts []string // extra layouts tried before the locale's own
	Currency    string   // fallback when no column or metadata names one
}

type Parser struct {
	cfg    Config
	logger *slog.Logger
}

func NewParser(cfg Config, logger *slog.Logger) *Parser {
	if cfg.Locale.Name == "" {
		cfg.Locale = LocaleUK
	}
	if cfg.SignPolicy == "" {
		cfg.SignPolicy = SignAuto
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{cfg: cfg, logger: logger}
}

// Parse types every draft row. It never returns an error for a bad
// field; failures shrink to unresolved markers and issues on the record.
func (p *Parser) Parse(drafts []orchestrate.Draft) []Transaction {
	out := make([]Transaction, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, p.parseDraft(d))
	}
	p.logger.Debug("parse.done", "rows", len(drafts))
	return out
}

func (p *Parser) parseDraft(d orchestrate.Draft) Transaction {
	tx := Transaction{
		Row:           d.Row,
		Supplementary: d.Supplementary,
		Currency:      p.cfg.Currency,
		Confidence:    1.0,
		Stage:         constants.StageTyped,
	}

	for kind, cf := range d.Fields {
		if cf.Disputed {
			tx.Disputed = append(tx.Disputed, kind)
			tx.Issues = append(tx.Issues, FieldIssue{
				Field:   kind,
				Code:    common.CodeDisputedField,
				Message: "extractors disagree beyond tolerance",
			})
		}
		if cf.Winner.Confidence < tx.Confidence {
			tx.Confidence = cf.Winner.Confidence
		}
	}

	if cf, ok := d.Fields[constants.FieldDate]; ok {
		t, err := p.parseDate(cf.Winner.Value)
		if err != nil {
			tx.fieldUnresolved(constants.FieldDate)
			tx.Issues = append(tx.Issues, FieldIssue{
				Field:   constants.FieldDate,
				Code:    common.CodeUnparseableField,
				Message: err.Error(),
			})
		} else {
			tx.Date = t
		}
	} else {
		tx.fieldUnresolved(constants.FieldDate)
	}

	if cf, ok := d.Fields[constants.FieldAmount]; ok {
		amt, err := p.parseAmount(cf.Winner)
		if err != nil {
			tx.fieldUnresolved(constants.FieldAmount)
			tx.Issues = append(tx.Issues, FieldIssue{
				Field:   constants.FieldAmount,
				Code:    common.CodeUnparseableField,
				Message: err.Error(),
			})
		} else {
			tx.Amount = amt
			tx.Extractor = cf.Winner.Extractor
		}
	} else {
		tx.fieldUnresolved(constants.FieldAmount)
	}

	if cf, ok := d.Fields[constants.FieldBalance]; ok {
		bal, err := p.parseBalance(cf.Winner.Value)
		if err != nil {
			tx.Issues = append(tx.Issues, FieldIssue{
				Field:   constants.FieldBalance,
				Code:    common.CodeUnparseableField,
				Message: err.Error(),
			})
		} else {
			tx.Balance = decimal.NewNullDecimal(bal)
		}
	}

	if cf, ok := d.Fields[constants.FieldDescription]; ok {
		tx.Description = strings.TrimSpace(cf.Winner.Value)
	}
	if cf, ok := d.Fields[constants.FieldReference]; ok {
		tx.Reference = strings.TrimSpace(cf.Winner.Value)
	}
	return tx
}

func (p *Parser) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, common.NewAppError(common.CodeUnparseableField, "empty date", nil)
	}
	layouts := append(append([]string{}, p.cfg.DateLayouts...), p.cfg.Locale.DateLayouts...)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, common.NewAppError(common.CodeUnparseableField, "date matches no configured layout: "+raw, nil)
}

// parseAmount cleans the raw token per the locale profile and resolves
// the sign per the configured policy.
func (p *Parser) parseAmount(c extract.Candidate) (decimal.Decimal, error) {
	mag, cues, err := cleanAmount(c.Value, p.cfg.Locale)
	if err != nil {
		return decimal.Zero, err
	}
	return p.cfg.SignPolicy.apply(mag, cues, c.Source.Column)
}

// parseBalance ignores the sign policy: a stated balance carries its
// own sign (minus or parentheses for overdrawn).
func (p *Parser) parseBalance(raw string) (decimal.Decimal, error) {
	mag, cues, err := cleanAmount(raw, p.cfg.Locale)
	if err != nil {
		return decimal.Zero, err
	}
	if cues.negative {
		return mag.Neg(), nil
	}
	return mag, nil
}

// Metadata is the typed statement envelope.
type Metadata struct {
	BankName       string
	AccountNumber  string
	AccountName    string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	OpeningBalance decimal.NullDecimal
	ClosingBalance decimal.NullDecimal
	Currency       string
}

// ParseMetadata types the raw metadata strings sniffed during
// extraction. Fields that refuse to parse are left zero; statement
// metadata is advisory and never fails a run.
func (p *Parser) ParseMetadata(raw extract.Metadata) Metadata {
	md := Metadata{
		BankName:      strings.TrimSpace(raw.BankName),
		AccountNumber: strings.TrimSpace(raw.AccountNumber),
		AccountName:   strings.TrimSpace(raw.AccountName),
		Currency:      strings.TrimSpace(raw.Currency),
	}
	if md.Currency == "" {
		md.Currency = p.cfg.Currency
	}
	if v, err := p.parseBalance(raw.OpeningBalance); err == nil && raw.OpeningBalance != "" {
		md.OpeningBalance = decimal.NewNullDecimal(v)
	}
	if v, err := p.parseBalance(raw.ClosingBalance); err == nil && raw.ClosingBalance != "" {
		md.ClosingBalance = decimal.NewNullDecimal(v)
	}
	if raw.Period != "" {
		md.PeriodStart, md.PeriodEnd = p.parsePeriod(raw.Period)
	}
	return md
}

var periodSeps = []string{" to ", " TO ", " To ", " - ", "-", "–"}

func (p *Parser) parsePeriod(raw string) (time.Time, time.Time) {
	for _, sep := range periodSeps {
		parts := strings.SplitN(raw, sep, 2)
		if len(parts) != 2 {
			continue
		}
		start, errA := p.parseDate(strings.TrimSpace(parts[0]))
		end, errB := p.parseDate(strings.TrimSpace(parts[1]))
		if errA == nil && errB == nil {
			return start, end
		}
	}
	return time.Time{}, time.Time{}
}
