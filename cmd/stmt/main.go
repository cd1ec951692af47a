// Command stmt runs the statement pipeline from the command line:
// classify a document, process it end to end, export the result, and
// keep a local SQLite ledger of past runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/parsebank/statement-parser/internal/classify"
	"github.com/parsebank/statement-parser/internal/common"
	"github.com/parsebank/statement-parser/internal/export"
	"github.com/parsebank/statement-parser/internal/extract"
	"github.com/parsebank/statement-parser/internal/ingest"
	"github.com/parsebank/statement-parser/internal/pipeline"
	"github.com/parsebank/statement-parser/internal/repository"
	"github.com/parsebank/statement-parser/internal/template"
)

const usage = `usage: stmt <classify|run|runs> [flags] [file]`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "classify":
		err = runClassify(os.Args[2:], logger)
	case "run":
		err = runPipeline(os.Args[2:], logger)
	case "runs":
		err = listRuns(os.Args[2:], logger)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("stmt failed", "error", err)
		os.Exit(1)
	}
}

func runClassify(args []string, logger *slog.Logger) error {
	fs := ff.NewFlagSet("stmt classify")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	doc, err := loadDocument(fs.GetArgs())
	if err != nil {
		return err
	}
	cl := classify.New(logger).Classify(doc)
	logger.Info("classified",
		"doc", doc.Name,
		"format", string(cl.Format),
		"confidence", cl.Confidence,
		"pages", cl.Pages,
		"slow_probe", cl.SlowProbe,
	)
	return nil
}

func runPipeline(args []string, logger *slog.Logger) error {
	fs := ff.NewFlagSet("stmt run")
	var (
		configPath = fs.StringLong("config", "", "Run config YAML (optional)")
		accountID  = fs.StringLong("account", "", "Account id stamped into reference ids")
		jsonOut    = fs.StringLong("out", "", "Write result JSON to this path")
		xlsxOut    = fs.StringLong("xlsx", "", "Write result XLSX workbook to this path")
		save       = fs.BoolLong("save", "Record the run in the local ledger")
		timeout    = fs.DurationLong("timeout", 5*time.Minute, "Whole-run timeout")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	doc, err := loadDocument(fs.GetArgs())
	if err != nil {
		return err
	}

	cfg := pipeline.DefaultConfig()
	if *configPath != "" {
		cfg, err = pipeline.LoadConfig(*configPath)
		if err != nil {
			return err
		}
	}
	if *accountID != "" {
		cfg.AccountID = *accountID
	}

	app := common.LoadConfig()
	if cfg.TemplatesDir == "" {
		cfg.TemplatesDir = app.Templates.Dir
	}
	templates, err := template.Load(cfg.TemplatesDir, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ctrl := pipeline.New(cfg, pipeline.BuildPool(app, templates, logger), logger, nil)
	res, err := ctrl.Run(ctx, doc)
	if err != nil {
		return err
	}

	exporter := export.NewService(logger)
	if *jsonOut != "" {
		out, err := exporter.JSON(res)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*jsonOut, out, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *jsonOut, err)
		}
	}
	if *xlsxOut != "" {
		out, err := exporter.XLSX(res)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*xlsxOut, out, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *xlsxOut, err)
		}
	}
	if *save {
		repo, db, err := repository.OpenSQLite(ctx, app.Database.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := repo.SaveResult(ctx, cfg.AccountID, res); err != nil {
			return err
		}
	}
	return nil
}

func listRuns(args []string, logger *slog.Logger) error {
	fs := ff.NewFlagSet("stmt runs")
	var (
		accountID = fs.StringLong("account", "", "Filter by account id")
		limit     = fs.IntLong("limit", 20, "Maximum runs to list")
		runID     = fs.StringLong("id", "", "Show the records of one run")
	)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app := common.LoadConfig()
	repo, db, err := repository.OpenSQLite(ctx, app.Database.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if *runID != "" {
		id, err := uuid.Parse(*runID)
		if err != nil {
			return fmt.Errorf("invalid run id %q: %w", *runID, err)
		}
		records, err := repo.ListRecords(ctx, id)
		if err != nil {
			return err
		}
		for _, rec := range records {
			date := ""
			if rec.Date != nil {
				date = rec.Date.Format("2006-01-02")
			}
			fmt.Printf("%3d  %-10s  %12s  %-8s  %s\n",
				rec.Seq, date, rec.Amount.StringFixed(2), rec.Verdict, rec.Description)
		}
		return nil
	}

	runs, err := repo.ListRuns(ctx, *accountID, *limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  %-10s  valid=%d warn=%d rejected=%d\n",
			run.ID, run.CreatedAt.Format(time.RFC3339), run.Format,
			run.Valid, run.Warnings, run.Rejected)
	}
	return nil
}

func parseFlags(fs *ff.FlagSet, args []string) error {
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("STMT")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return err
	}
	return nil
}

func loadDocument(args []string) (*extract.Document, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected exactly one file argument")
	}
	return ingest.LoadDocument(args[0])
}
