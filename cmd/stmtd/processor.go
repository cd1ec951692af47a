package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parsebank/statement-parser/internal/async"
	"github.com/parsebank/statement-parser/internal/ingest"
	"github.com/parsebank/statement-parser/internal/pipeline"
	"github.com/parsebank/statement-parser/internal/repository"
)

// statementProcessor runs one watched file through the pipeline and
// stores the outcome. Byte-identical re-drops are skipped by content
// hash for the life of the process.
type statementProcessor struct {
	ctrl      *pipeline.Controller
	repo      repository.StatementRepository
	accountID string
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func (p *statementProcessor) Process(ctx context.Context, job async.Job) error {
	doc, err := ingest.LoadDocument(job.Path)
	if err != nil {
		return err
	}

	hash := ingest.HashDocument(doc)
	p.mu.Lock()
	if _, dup := p.seen[hash]; dup {
		p.mu.Unlock()
		p.logger.Info("skipping duplicate document", "path", job.Path, "hash", hash)
		return nil
	}
	p.seen[hash] = struct{}{}
	p.mu.Unlock()

	res, err := p.ctrl.Run(ctx, doc)
	if err != nil {
		return err
	}
	account := job.AccountID
	if account == "" {
		account = p.accountID
	}
	return p.repo.SaveResult(ctx, account, res)
}
