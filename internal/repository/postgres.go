package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/pipeline"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS statement_runs (
	id              UUID PRIMARY KEY,
	account_id      TEXT NOT NULL,
	status          TEXT NOT NULL,
	schema_version  TEXT NOT NULL,
	format          TEXT NOT NULL,
	bank_name       TEXT NOT NULL DEFAULT '',
	account_number  TEXT NOT NULL DEFAULT '',
	currency        TEXT NOT NULL DEFAULT '',
	opening_balance NUMERIC(18,2),
	closing_balance NUMERIC(18,2),
	valid_count     INT NOT NULL DEFAULT 0,
	warning_count   INT NOT NULL DEFAULT 0,
	rejected_count  INT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS statement_runs_account_idx ON statement_runs (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS statement_records (
	run_id       UUID NOT NULL REFERENCES statement_runs (id) ON DELETE CASCADE,
	seq          INT NOT NULL,
	reference_id TEXT NOT NULL,
	tx_date      DATE,
	description  TEXT NOT NULL DEFAULT '',
	amount       NUMERIC(18,2) NOT NULL,
	balance      NUMERIC(18,2),
	reference    TEXT NOT NULL DEFAULT '',
	currency     TEXT NOT NULL DEFAULT '',
	verdict      TEXT NOT NULL,
	issues       JSONB NOT NULL DEFAULT '[]',
	source       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS statement_records_reference_idx ON statement_records (reference_id);
`

type postgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresRepository(pool *pgxpool.Pool, logger *slog.Logger) StatementRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresRepository{pool: pool, logger: logger}
}

// Migrate applies the schema. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *postgresRepository) SaveResult(ctx context.Context, accountID string, res *pipeline.StatementResult) error {
	run, records := runFromResult(accountID, res)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO statement_runs
			(id, account_id, status, schema_version, format, bank_name,
			 account_number, currency, opening_balance, closing_balance,
			 valid_count, warning_count, rejected_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			valid_count = EXCLUDED.valid_count,
			warning_count = EXCLUDED.warning_count,
			rejected_count = EXCLUDED.rejected_count`,
		run.ID, run.AccountID, string(run.Status), run.SchemaVersion, run.Format,
		run.BankName, run.AccountNumber, run.Currency,
		nullDecimalArg(run.Opening), nullDecimalArg(run.Closing),
		run.Valid, run.Warnings, run.Rejected, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM statement_records WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	for _, rec := range records {
		issues, err := json.Marshal(rec.Issues)
		if err != nil {
			return fmt.Errorf("encode issues: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO statement_records
				(run_id, seq, reference_id, tx_date, description, amount,
				 balance, reference, currency, verdict, issues, source)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			rec.RunID, rec.Seq, rec.ReferenceID, rec.Date, rec.Description,
			rec.Amount.StringFixed(2), nullDecimalArg(rec.Balance),
			rec.Reference, rec.Currency, rec.Verdict, issues, rec.Source,
		)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.logger.Info("repository.save.ok", "run_id", run.ID.String(), "records", len(records))
	return nil
}

const runColumns = `id, account_id, status, schema_version, format, bank_name,
	account_number, currency, opening_balance::text, closing_balance::text,
	valid_count, warning_count, rejected_count, created_at`

func (r *postgresRepository) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM statement_runs WHERE id = $1`, id)
	return scanRun(row)
}

func (r *postgresRepository) ListRuns(ctx context.Context, accountID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	// empty account id lists every account
	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM statement_runs
		 WHERE ($1 = '' OR account_id = $1)
		 ORDER BY created_at DESC LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const recordColumns = `run_id, seq, reference_id, tx_date, description,
	amount::text, balance::text, reference, currency, verdict, issues, source`

func (r *postgresRepository) ListRecords(ctx context.Context, runID uuid.UUID) ([]*Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM statement_records
		 WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *postgresRepository) FindByReference(ctx context.Context, referenceID string) ([]*Record, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM statement_records
		 WHERE reference_id = $1 ORDER BY run_id, seq`, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var status string
	var opening, closing *string
	err := row.Scan(&run.ID, &run.AccountID, &status, &run.SchemaVersion,
		&run.Format, &run.BankName, &run.AccountNumber, &run.Currency,
		&opening, &closing, &run.Valid, &run.Warnings, &run.Rejected, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = constants.RunStatus(status)
	run.Opening = parseNullDecimal(opening)
	run.Closing = parseNullDecimal(closing)
	return &run, nil
}

func scanRecords(rows pgx.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var rec Record
		var date *time.Time
		var amount string
		var balance *string
		var issues []byte
		err := rows.Scan(&rec.RunID, &rec.Seq, &rec.ReferenceID, &date,
			&rec.Description, &amount, &balance, &rec.Reference,
			&rec.Currency, &rec.Verdict, &issues, &rec.Source)
		if err != nil {
			return nil, err
		}
		rec.Date = date
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", amount, err)
		}
		rec.Balance = parseNullDecimal(balance)
		if len(issues) > 0 {
			if err := json.Unmarshal(issues, &rec.Issues); err != nil {
				return nil, fmt.Errorf("stored issues: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func nullDecimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func parseNullDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
