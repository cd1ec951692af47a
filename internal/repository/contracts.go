// Package repository persists pipeline runs and their validated
// records. Two backends exist: Postgres for service deployments and
// SQLite for the local CLI ledger.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/pipeline"
)

// Run is the stored header of one pipeline run.
type Run struct {
	ID            uuid.UUID
	AccountID     string
	Status        constants.RunStatus
	SchemaVersion string
	Format        string
	BankName      string
	AccountNumber string
	Currency      string
	Opening       decimal.NullDecimal
	Closing       decimal.NullDecimal
	Valid         int
	Warnings      int
	Rejected      int
	CreatedAt     time.Time
}

// Record is one stored transaction of a run.
type Record struct {
	RunID       uuid.UUID
	Seq         int
	ReferenceID string
	Date        *time.Time
	Description string
	Amount      decimal.Decimal
	Balance     decimal.NullDecimal
	Reference   string
	Currency    string
	Verdict     string
	Issues      []string
	Source      string
}

// StatementRepository stores and retrieves run results.
type StatementRepository interface {
	// SaveResult persists the run header and all records atomically.
	// Saving the same run id twice replaces the previous records.
	SaveResult(ctx context.Context, accountID string, res *pipeline.StatementResult) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, accountID string, limit int) ([]*Run, error)
	ListRecords(ctx context.Context, runID uuid.UUID) ([]*Record, error)
	// FindByReference locates prior imports of a reference id across
	// runs; cross-run dedup is the caller's decision, not the
	// pipeline's.
	FindByReference(ctx context.Context, referenceID string) ([]*Record, error)
}

// runFromResult flattens a StatementResult into storage rows.
func runFromResult(accountID string, res *pipeline.StatementResult) (*Run, []*Record) {
	run := &Run{
		ID:            res.RunID,
		AccountID:     accountID,
		Status:        res.Status,
		SchemaVersion: res.SchemaVersion,
		Format:        string(res.Diagnostics.Format),
		BankName:      res.Metadata.BankName,
		AccountNumber: res.Metadata.AccountNumber,
		Currency:      res.Metadata.Currency,
		Opening:       res.Metadata.OpeningBalance,
		Closing:       res.Metadata.ClosingBalance,
		Valid:         res.Summary.Valid,
		Warnings:      res.Summary.Warnings,
		Rejected:      res.Summary.Rejected,
		CreatedAt:     res.CreatedAt,
	}
	records := make([]*Record, 0, len(res.Records))
	for i, rec := range res.Records {
		row := &Record{
			RunID:       res.RunID,
			Seq:         i,
			ReferenceID: rec.ReferenceID,
			Description: rec.Description,
			Amount:      rec.Amount,
			Balance:     rec.Balance,
			Reference:   rec.Reference,
			Currency:    rec.Currency,
			Verdict:     rec.Severity.String(),
			Issues:      rec.IssueStrings(),
			Source:      string(rec.Extractor),
		}
		if rec.HasDate() {
			d := rec.Date
			row.Date = &d
		}
		records = append(records, row)
	}
	return run, records
}
