// Package export renders a StatementResult for downstream consumers:
// an XLSX workbook for spreadsheet review and a versioned JSON
// envelope for accounting-software import.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/parsebank/statement-parser/internal/pipeline"
	"github.com/parsebank/statement-parser/internal/validate"
)

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// XLSX returns a workbook with one Transactions sheet plus a Summary
// sheet. Rejected records are included and flagged, never dropped.
func (s *Service) XLSX(res *pipeline.StatementResult) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()

	const sheet = "Transactions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Date", "Description", "Amount", "Currency", "Balance",
		"Reference", "Verdict", "Issues", "Source", "Reference ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, rec := range res.Records {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		if rec.HasDate() {
			write(1, rec.Date.Format("2006-01-02"))
		} else {
			write(1, "")
		}
		write(2, rec.Description)
		write(3, rec.Amount.StringFixed(2))
		write(4, rec.Currency)
		if rec.Balance.Valid {
			write(5, rec.Balance.Decimal.StringFixed(2))
		}
		write(6, rec.Reference)
		write(7, rec.Severity.String())
		write(8, issueSummary(rec))
		write(9, string(rec.Extractor))
		write(10, rec.ReferenceID)
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 48)
	_ = f.SetColWidth(sheet, "C", "E", 14)
	_ = f.SetColWidth(sheet, "F", "F", 20)
	_ = f.SetColWidth(sheet, "H", "H", 40)
	_ = f.SetColWidth(sheet, "J", "J", 40)

	if err := s.writeSummarySheet(f, res); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"run_id", res.RunID.String(),
		"rows", len(res.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeSummarySheet(f *excelize.File, res *pipeline.StatementResult) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	rows := [][2]any{
		{"Run ID", res.RunID.String()},
		{"Schema Version", res.SchemaVersion},
		{"Bank", res.Metadata.BankName},
		{"Account", res.Metadata.AccountNumber},
		{"Currency", res.Metadata.Currency},
		{"Records", len(res.Records)},
		{"Valid", res.Summary.Valid},
		{"Warnings", res.Summary.Warnings},
		{"Rejected", res.Summary.Rejected},
		{"Credits", res.Summary.Credits.StringFixed(2)},
		{"Debits", res.Summary.Debits.StringFixed(2)},
		{"Net", res.Summary.Net.StringFixed(2)},
	}
	if res.Metadata.OpeningBalance.Valid {
		rows = append(rows, [2]any{"Opening Balance", res.Metadata.OpeningBalance.Decimal.StringFixed(2)})
	}
	if res.Metadata.ClosingBalance.Valid {
		rows = append(rows, [2]any{"Closing Balance", res.Metadata.ClosingBalance.Decimal.StringFixed(2)})
	}
	for i, kv := range rows {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valCell, _ := excelize.CoordinatesToCellName(2, i+1)
		_ = f.SetCellValue(sheet, keyCell, kv[0])
		_ = f.SetCellValue(sheet, valCell, kv[1])
	}
	_ = f.SetColWidth(sheet, "A", "A", 18)
	_ = f.SetColWidth(sheet, "B", "B", 44)
	return nil
}

func issueSummary(rec validate.Checked) string {
	parts := rec.IssueStrings()
	if len(parts) == 0 {
		return ""
	}
	return joinMax(parts, "; ", 140)
}

func joinMax(parts []string, sep string, max int) string {
	var b bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
	}
	s := b.String()
	if max <= 1 || len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// jsonEnvelope is the stable import schema. Bump
// pipeline.SchemaVersion on any breaking change here.
type jsonEnvelope struct {
	SchemaVersion string           `json:"schema_version"`
	RunID         string           `json:"run_id"`
	CreatedAt     time.Time        `json:"created_at"`
	Account       jsonAccount      `json:"account"`
	Summary       pipeline.Summary `json:"summary"`
	Transactions  []jsonRecord     `json:"transactions"`
}

type jsonAccount struct {
	Bank        string `json:"bank,omitempty"`
	Number      string `json:"number,omitempty"`
	Name        string `json:"name,omitempty"`
	Currency    string `json:"currency,omitempty"`
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
}

type jsonRecord struct {
	ReferenceID string   `json:"reference_id"`
	Date        string   `json:"date,omitempty"`
	Description string   `json:"description"`
	Amount      string   `json:"amount"`
	Currency    string   `json:"currency"`
	Balance     string   `json:"balance,omitempty"`
	Reference   string   `json:"reference,omitempty"`
	Verdict     string   `json:"verdict"`
	Issues      []string `json:"issues,omitempty"`
	Source      string   `json:"source"`
}

// JSON serializes the result into the versioned import envelope.
func (s *Service) JSON(res *pipeline.StatementResult) ([]byte, error) {
	env := jsonEnvelope{
		SchemaVersion: res.SchemaVersion,
		RunID:         res.RunID.String(),
		CreatedAt:     res.CreatedAt,
		Account: jsonAccount{
			Bank:     res.Metadata.BankName,
			Number:   res.Metadata.AccountNumber,
			Name:     res.Metadata.AccountName,
			Currency: res.Metadata.Currency,
		},
		Summary:      res.Summary,
		Transactions: make([]jsonRecord, 0, len(res.Records)),
	}
	if !res.Metadata.PeriodStart.IsZero() {
		env.Account.PeriodStart = res.Metadata.PeriodStart.Format("2006-01-02")
	}
	if !res.Metadata.PeriodEnd.IsZero() {
		env.Account.PeriodEnd = res.Metadata.PeriodEnd.Format("2006-01-02")
	}
	for _, rec := range res.Records {
		jr := jsonRecord{
			ReferenceID: rec.ReferenceID,
			Description: rec.Description,
			Amount:      rec.Amount.StringFixed(2),
			Currency:    rec.Currency,
			Reference:   rec.Reference,
			Verdict:     rec.Severity.String(),
			Issues:      rec.IssueStrings(),
			Source:      string(rec.Extractor),
		}
		if rec.HasDate() {
			jr.Date = rec.Date.Format("2006-01-02")
		}
		if rec.Balance.Valid {
			jr.Balance = rec.Balance.Decimal.StringFixed(2)
		}
		env.Transactions = append(env.Transactions, jr)
	}
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	s.logger.Info("export.json.ok", "run_id", res.RunID.String(), "rows", len(res.Records))
	return out, nil
}
