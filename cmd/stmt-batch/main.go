// Command stmt-batch processes every statement file under a directory
// in one shot and writes the results next to it. Suited to catch-up
// imports where the daemon is overkill.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parsebank/statement-parser/internal/common"
	"github.com/parsebank/statement-parser/internal/export"
	"github.com/parsebank/statement-parser/internal/ingest"
	"github.com/parsebank/statement-parser/internal/pipeline"
	"github.com/parsebank/statement-parser/internal/repository"
	"github.com/parsebank/statement-parser/internal/template"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir        = flag.String("dir", "", "directory to process statements from (required)")
		out        = flag.String("out", "", "output directory (defaults to --dir)")
		configPath = flag.String("config", "", "run config YAML (optional)")
		account    = flag.String("account", "", "account id stamped into reference ids")
		inmem      = flag.Bool("inmem", false, "use an in-memory SQLite ledger")
		xlsx       = flag.Bool("xlsx", false, "also write an XLSX workbook per statement")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = *dir
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cfg := pipeline.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = pipeline.LoadConfig(*configPath)
		if err != nil {
			printError("Error: loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *account != "" {
		cfg.AccountID = *account
	}

	app := common.LoadConfig()
	if cfg.TemplatesDir == "" {
		cfg.TemplatesDir = app.Templates.Dir
	}
	templates, err := template.Load(cfg.TemplatesDir, logger)
	if err != nil {
		printError("Error: loading templates: %v\n", err)
		os.Exit(1)
	}

	ledgerPath := app.Database.SQLitePath
	if *inmem {
		ledgerPath = ":memory:"
	}
	repo, db, err := repository.OpenSQLite(ctx, ledgerPath, logger)
	if err != nil {
		printError("Error: opening ledger: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	paths, err := ingest.ScanDirectory(*dir, nil, true)
	if err != nil {
		printError("Error: scanning %s: %v\n", *dir, err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		logger.Info("no statement files found", "dir", *dir)
		return
	}

	ctrl := pipeline.New(cfg, pipeline.BuildPool(app, templates, logger), logger, nil)
	exporter := export.NewService(logger)

	var failed int
	for _, path := range paths {
		if err := processOne(ctx, ctrl, repo, exporter, cfg.AccountID, path, *out, *xlsx); err != nil {
			logger.Error("statement failed", "path", path, "error", err)
			failed++
		}
	}
	logger.Info("batch complete", "total", len(paths), "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func processOne(ctx context.Context, ctrl *pipeline.Controller, repo repository.StatementRepository,
	exporter *export.Service, accountID, path, outDir string, writeXLSX bool) error {

	doc, err := ingest.LoadDocument(path)
	if err != nil {
		return err
	}
	res, err := ctrl.Run(ctx, doc)
	if err != nil {
		return err
	}
	if err := repo.SaveResult(ctx, accountID, res); err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	raw, err := exporter.JSON(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, base+".result.json"), raw, 0o644); err != nil {
		return err
	}
	if writeXLSX {
		book, err := exporter.XLSX(res)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(outDir, base+".result.xlsx"), book, 0o644); err != nil {
			return err
		}
	}
	return nil
}
