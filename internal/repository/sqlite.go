package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/pipeline"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS statement_runs (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL,
	status          TEXT NOT NULL,
	schema_version  TEXT NOT NULL,
	format          TEXT NOT NULL,
	bank_name       TEXT NOT NULL DEFAULT '',
	account_number  TEXT NOT NULL DEFAULT '',
	currency        TEXT NOT NULL DEFAULT '',
	opening_balance TEXT,
	closing_balance TEXT,
	valid_count     INTEGER NOT NULL DEFAULT 0,
	warning_count   INTEGER NOT NULL DEFAULT 0,
	rejected_count  INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS statement_runs_account_idx ON statement_runs (account_id, created_at);

CREATE TABLE IF NOT EXISTS statement_records (
	run_id       TEXT NOT NULL REFERENCES statement_runs (id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	reference_id TEXT NOT NULL,
	tx_date      TEXT,
	description  TEXT NOT NULL DEFAULT '',
	amount       TEXT NOT NULL,
	balance      TEXT,
	reference    TEXT NOT NULL DEFAULT '',
	currency     TEXT NOT NULL DEFAULT '',
	verdict      TEXT NOT NULL,
	issues       TEXT NOT NULL DEFAULT '[]',
	source       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS statement_records_reference_idx ON statement_records (reference_id);
`

type sqliteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (and migrates) the local ledger file used by the CLI.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (StatementRepository, *sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("sqlite ledger ready", "path", path)
	return &sqliteRepository{db: db, logger: logger}, db, nil
}

func (r *sqliteRepository) SaveResult(ctx context.Context, accountID string, res *pipeline.StatementResult) error {
	run, records := runFromResult(accountID, res)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO statement_runs
			(id, account_id, status, schema_version, format, bank_name,
			 account_number, currency, opening_balance, closing_balance,
			 valid_count, warning_count, rejected_count, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			valid_count = excluded.valid_count,
			warning_count = excluded.warning_count,
			rejected_count = excluded.rejected_count`,
		run.ID.String(), run.AccountID, string(run.Status), run.SchemaVersion,
		run.Format, run.BankName, run.AccountNumber, run.Currency,
		nullDecimalArg(run.Opening), nullDecimalArg(run.Closing),
		run.Valid, run.Warnings, run.Rejected, run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM statement_records WHERE run_id = ?`, run.ID.String()); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	for _, rec := range records {
		issues, err := json.Marshal(rec.Issues)
		if err != nil {
			return fmt.Errorf("encode issues: %w", err)
		}
		var date *string
		if rec.Date != nil {
			d := rec.Date.Format("2006-01-02")
			date = &d
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO statement_records
				(run_id, seq, reference_id, tx_date, description, amount,
				 balance, reference, currency, verdict, issues, source)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			rec.RunID.String(), rec.Seq, rec.ReferenceID, date, rec.Description,
			rec.Amount.StringFixed(2), nullDecimalArg(rec.Balance),
			rec.Reference, rec.Currency, rec.Verdict, string(issues), rec.Source,
		)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.logger.Info("repository.save.ok", "run_id", run.ID.String(), "records", len(records))
	return nil
}

const sqliteRunColumns = `id, account_id, status, schema_version, format, bank_name,
	account_number, currency, opening_balance, closing_balance,
	valid_count, warning_count, rejected_count, created_at`

func (r *sqliteRepository) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM statement_runs WHERE id = ?`, id.String())
	return scanSQLiteRun(row)
}

func (r *sqliteRepository) ListRuns(ctx context.Context, accountID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM statement_runs
		 WHERE (? = '' OR account_id = ?)
		 ORDER BY created_at DESC LIMIT ?`,
		accountID, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const sqliteRecordColumns = `run_id, seq, reference_id, tx_date, description,
	amount, balance, reference, currency, verdict, issues, source`

func (r *sqliteRepository) ListRecords(ctx context.Context, runID uuid.UUID) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM statement_records
		 WHERE run_id = ? ORDER BY seq`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteRecords(rows)
}

func (r *sqliteRepository) FindByReference(ctx context.Context, referenceID string) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteRecordColumns+` FROM statement_records
		 WHERE reference_id = ? ORDER BY run_id, seq`, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (*Run, error) {
	var run Run
	var id, status, createdAt string
	var opening, closing *string
	err := row.Scan(&id, &run.AccountID, &status, &run.SchemaVersion,
		&run.Format, &run.BankName, &run.AccountNumber, &run.Currency,
		&opening, &closing, &run.Valid, &run.Warnings, &run.Rejected, &createdAt)
	if err != nil {
		return nil, err
	}
	run.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("stored run id %q: %w", id, err)
	}
	run.Status = constants.RunStatus(status)
	run.Opening = parseNullDecimal(opening)
	run.Closing = parseNullDecimal(closing)
	run.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("stored created_at %q: %w", createdAt, err)
	}
	return &run, nil
}

func scanSQLiteRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var rec Record
		var runID, amount, issues string
		var date, balance *string
		err := rows.Scan(&runID, &rec.Seq, &rec.ReferenceID, &date,
			&rec.Description, &amount, &balance, &rec.Reference,
			&rec.Currency, &rec.Verdict, &issues, &rec.Source)
		if err != nil {
			return nil, err
		}
		rec.RunID, err = uuid.Parse(runID)
		if err != nil {
			return nil, fmt.Errorf("stored run id %q: %w", runID, err)
		}
		if date != nil {
			d, err := time.Parse("2006-01-02", *date)
			if err != nil {
				return nil, fmt.Errorf("stored date %q: %w", *date, err)
			}
			rec.Date = &d
		}
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("stored amount %q: %w", amount, err)
		}
		rec.Balance = parseNullDecimal(balance)
		if issues != "" {
			if err := json.Unmarshal([]byte(issues), &rec.Issues); err != nil {
				return nil, fmt.Errorf("stored issues: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
