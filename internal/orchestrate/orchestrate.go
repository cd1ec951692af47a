// Package orchestrate selects and runs extractors for a classified
// document, then merges their candidates into transaction drafts.
// Extractors fan out concurrently and are joined before merging; a
// failed or timed-out extractor contributes zero candidates and a
// diagnostic, never a stalled statement.
package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/classify"
	"github.com/parsebank/statement-parser/internal/extract"
	"github.com/parsebank/statement-parser/internal/template"
)

// ChosenField is the winning candidate for one field of one draft row,
// with the losing candidates kept for audit.
type ChosenField struct {
	Winner     extract.Candidate
	Disputed   bool
	Alternates []extract.Candidate
}

// Draft is one merged transaction row awaiting typing. Each pipeline
// stage produces a new value rather than mutating a shared one.
type Draft struct {
	Row           int
	Fields        map[constants.FieldKind]ChosenField
	Candidates    []extract.Candidate
	Supplementary bool // unmatched row from a lower-trust extractor, kept for review
}

// Result is the orchestrator's output for one document.
type Result struct {
	Drafts      []Draft
	Metadata    extract.Metadata
	Template    *template.Template // bank template matched by the most trusted extractor, if any
	Diagnostics []extract.Diagnostics
	Methods     []constants.ExtractorKind // extractors that produced candidates
}

// Config tunes chain selection and merging for one run.
type Config struct {
	TrustTiers       map[constants.ExtractorKind]int
	ExtractorTimeout time.Duration
	AmountEpsilon    decimal.Decimal
	Concurrency      bool // sequential mode is for debugging only
}

func (c Config) tier(k constants.ExtractorKind) int {
	if t, ok := c.TrustTiers[k]; ok {
		return t
	}
	return constants.DefaultTrustTiers[k]
}

type Orchestrator struct {
	pool   map[constants.ExtractorKind]extract.Extractor
	cfg    Config
	logger *slog.Logger
}

func New(pool []extract.Extractor, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[constants.ExtractorKind]extract.Extractor, len(pool))
	for _, ex := range pool {
		m[ex.Kind()] = ex
	}
	return &Orchestrator{pool: m, cfg: cfg, logger: logger}
}

// chain returns the ordered extractor list for a classification:
// primary first, fallbacks after. Order doubles as the deterministic
// tie-break between equal-confidence candidates.
func (o *Orchestrator) chain(cl classify.Classification) []constants.ExtractorKind {
	var kinds []constants.ExtractorKind
	switch cl.Format {
	case constants.FormatCSV:
		kinds = []constants.ExtractorKind{constants.ExtractorCSV, constants.ExtractorML}
	case constants.FormatXLSX:
		kinds = []constants.ExtractorKind{constants.ExtractorXLSX, constants.ExtractorML}
	case constants.FormatPDFText, constants.FormatPDFTabular:
		kinds = []constants.ExtractorKind{constants.ExtractorPDFText, constants.ExtractorML}
	case constants.FormatPDFScanned:
		kinds = []constants.ExtractorKind{constants.ExtractorOCR, constants.ExtractorML, constants.ExtractorPDFText}
	case constants.FormatImage:
		kinds = []constants.ExtractorKind{constants.ExtractorOCR, constants.ExtractorML}
	default:
		// generic fallback chain for unknown input
		kinds = []constants.ExtractorKind{
			constants.ExtractorCSV,
			constants.ExtractorPDFText,
			constants.ExtractorOCR,
			constants.ExtractorML,
		}
	}
	out := kinds[:0]
	for _, k := range kinds {
		if _, ok := o.pool[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

type runOutcome struct {
	kind  constants.ExtractorKind
	order int
	cands []extract.Candidate
	diag  extract.Diagnostics
}

// Run executes the chain and merges candidates into drafts.
func (o *Orchestrator) Run(ctx context.Context, doc *extract.Document, cl classify.Classification) (Result, error) {
	kinds := o.chain(cl)
	outcomes := make([]runOutcome, len(kinds))

	runOne := func(i int, kind constants.ExtractorKind) {
		ex := o.pool[kind]
		runCtx := ctx
		var cancel context.CancelFunc
		if o.cfg.ExtractorTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, o.cfg.ExtractorTimeout)
			defer cancel()
		}
		cands, diag, err := ex.Extract(runCtx, doc)
		if err != nil {
			diag.Err = err.Error()
			diag.TimedOut = errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded)
			o.logger.Warn("orchestrate.extractor.failed",
				"doc", doc.Name,
				"extractor", string(kind),
				"timed_out", diag.TimedOut,
				"error", err,
			)
			cands = nil
		}
		outcomes[i] = runOutcome{kind: kind, order: i, cands: cands, diag: diag}
	}

	if o.cfg.Concurrency {
		var wg sync.WaitGroup
		for i, kind := range kinds {
			wg.Add(1)
			go func(i int, kind constants.ExtractorKind) {
				defer wg.Done()
				runOne(i, kind)
			}(i, kind)
		}
		wg.Wait()
	} else {
		for i, kind := range kinds {
			runOne(i, kind)
		}
	}

	res := o.merge(outcomes)
	o.logger.Info("orchestrate.done",
		"doc", doc.Name,
		"format", string(cl.Format),
		"extractors", len(kinds),
		"methods", len(res.Methods),
		"drafts", len(res.Drafts),
	)
	return res, nil
}
