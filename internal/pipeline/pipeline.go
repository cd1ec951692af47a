// Package pipeline sequences classification, extraction, parsing,
// normalization and validation into one run per document, and shapes
// the result object handed across the integration boundary.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/classify"
	"github.com/parsebank/statement-parser/internal/common"
	"github.com/parsebank/statement-parser/internal/extract"
	"github.com/parsebank/statement-parser/internal/normalize"
	"github.com/parsebank/statement-parser/internal/observability"
	"github.com/parsebank/statement-parser/internal/orchestrate"
	"github.com/parsebank/statement-parser/internal/parse"
	"github.com/parsebank/statement-parser/internal/template"
	"github.com/parsebank/statement-parser/internal/validate"
)

// SchemaVersion stamps every StatementResult so downstream consumers
// can detect breaking output changes.
const SchemaVersion = "1.0"

// Summary aggregates a statement's validated records.
type Summary struct {
	Credits  decimal.Decimal `json:"credits"`
	Debits   decimal.Decimal `json:"debits"`
	Net      decimal.Decimal `json:"net"`
	Valid    int             `json:"valid"`
	Warnings int             `json:"warnings"`
	Rejected int             `json:"rejected"`
}

// Diagnostics is the per-run observability record, independent of the
// transactional output.
type Diagnostics struct {
	Format           constants.DocumentFormat  `json:"format"`
	FormatConfidence float64                   `json:"format_confidence"`
	SlowProbe        bool                      `json:"slow_probe"`
	Template         string                    `json:"template,omitempty"`
	Extractors       []extract.Diagnostics     `json:"extractors"`
	Methods          []constants.ExtractorKind `json:"methods"`
	DisputedFields   int                       `json:"disputed_fields"`
	RuleCounts       map[string]int            `json:"rule_counts,omitempty"`
	Duration         time.Duration             `json:"duration"`
}

// StatementResult is the unit exposed across the pipeline boundary.
// Immutable once returned.
type StatementResult struct {
	RunID         uuid.UUID
	SchemaVersion string
	Status        constants.RunStatus
	Metadata      parse.Metadata
	Records       []validate.Checked
	Statement     []validate.Violation
	Summary       Summary
	Diagnostics   Diagnostics
	CreatedAt     time.Time
}

// Controller wires the stages together for repeated runs under one
// configuration. It holds no per-document state.
type Controller struct {
	cfg        Config
	classifier *classify.Classifier
	orch       *orchestrate.Orchestrator
	parser     *parse.Parser
	parserCfg  parse.Config
	normalizer *normalize.Normalizer
	validator  *validate.Validator
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New builds a controller over an extractor pool. The pool's order is
// the deterministic invocation order used for merge tie-breaks.
// metrics may be nil.
func New(cfg Config, pool []extract.Extractor, logger *slog.Logger, metrics *observability.Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	locale, ok := parse.Locales[cfg.Locale]
	if !ok {
		locale = parse.LocaleUK
	}
	parserCfg := parse.Config{
		Locale:      locale,
		SignPolicy:  parse.ParseSignPolicy(cfg.SignPolicy),
		DateLayouts: cfg.DateLayouts,
		Currency:    cfg.Currency,
	}
	return &Controller{
		cfg:        cfg,
		classifier: classify.New(logger),
		orch: orchestrate.New(pool, orchestrate.Config{
			TrustTiers:       cfg.TrustTiers,
			ExtractorTimeout: cfg.ExtractorTimeout,
			AmountEpsilon:    cfg.AmountEpsilon,
			Concurrency:      cfg.Concurrency,
		}, logger),
		parser:    parse.NewParser(parserCfg, logger),
		parserCfg: parserCfg,
		normalizer: normalize.New(normalize.Config{
			AccountID:  cfg.AccountID,
			Currency:   cfg.Currency,
			TrustTiers: cfg.TrustTiers,
		}, logger),
		validator: validate.New(validate.Config{
			Epsilon:     cfg.BalanceEpsilon,
			RejectDelta: cfg.RejectDelta,
		}, logger),
		logger:  logger,
		metrics: metrics,
	}
}

// BuildPool constructs the standard extractor set from process
// configuration. The ML extractor joins only when an API key is
// present; the rest are always available.
func BuildPool(app *common.Config, templates *template.Set, logger *slog.Logger) []extract.Extractor {
	pool := []extract.Extractor{
		extract.NewCSVExtractor(templates, logger),
		extract.NewXLSXExtractor(templates, logger),
		extract.NewPDFTextExtractor(templates, logger),
		extract.NewOCRExtractor(extract.OCRConfig{
			Tesseract:   app.OCR.Tesseract,
			Lang:        app.OCR.TesseractLang,
			TessdataDir: app.OCR.TessdataDir,
			DPI:         app.OCR.DPI,
			Timeout:     app.OCR.Timeout,
		}, logger),
	}
	if app.ML.APIKey != "" {
		pool = append(pool, extract.NewMLExtractor(nil, extract.MLConfig{
			Model:   app.ML.Model,
			Timeout: app.ML.Timeout,
		}, logger))
	}
	return pool
}

// Run processes one document end to end. The only fatal condition is
// zero candidates from every extractor; any partial success still
// returns a StatementResult.
func (c *Controller) Run(ctx context.Context, doc *extract.Document) (*StatementResult, error) {
	start := time.Now()
	runID := uuid.New()
	ctx = common.WithRunID(ctx, runID.String())
	c.logger.Info("pipeline.run.start", "run_id", runID, "doc", doc.Name, "bytes", len(doc.Bytes))

	cl := c.classifier.Classify(doc)

	merged, err := c.orch.Run(ctx, doc, cl)
	if err != nil {
		return nil, err
	}
	if len(merged.Methods) == 0 {
		c.observeRun("failed", cl.Format, start)
		c.logger.Error("pipeline.run.empty", "run_id", runID, "doc", doc.Name)
		return nil, common.NewAppError(common.CodeEmptyExtraction,
			"no extractor produced any candidate", common.ErrEmptyExtraction)
	}

	parser := c.parser
	if merged.Template != nil {
		parser = parse.NewParser(overlayTemplate(c.parserCfg, merged.Template), c.logger)
		c.logger.Debug("pipeline.template.applied", "run_id", runID, "template", merged.Template.Name)
	}
	typed := parser.Parse(merged.Drafts)
	md := parser.ParseMetadata(merged.Metadata)
	records := c.normalizer.Normalize(typed)
	report := c.validator.Validate(records, md)

	res := &StatementResult{
		RunID:         runID,
		SchemaVersion: SchemaVersion,
		Status:        constants.RunCompleted,
		Metadata:      md,
		Records:       report.Records,
		Statement:     report.Statement,
		Summary:       summarize(report),
		Diagnostics: Diagnostics{
			Format:           cl.Format,
			FormatConfidence: cl.Confidence,
			SlowProbe:        cl.SlowProbe,
			Template:         templateName(merged.Template),
			Extractors:       merged.Diagnostics,
			Methods:          merged.Methods,
			DisputedFields:   countDisputes(merged.Drafts),
			RuleCounts:       report.RuleCounts,
			Duration:         time.Since(start),
		},
		CreatedAt: start.UTC(),
	}
	c.observeResult(res, cl.Format, start)
	c.logger.Info("pipeline.run.done",
		"run_id", runID,
		"doc", doc.Name,
		"format", string(cl.Format),
		"records", len(res.Records),
		"valid", res.Summary.Valid,
		"warnings", res.Summary.Warnings,
		"rejected", res.Summary.Rejected,
		"duration", res.Diagnostics.Duration,
	)
	return res, nil
}

// overlayTemplate applies per-bank hints from a matched template on top
// of the run's parser configuration. Template layouts are tried first
// so a bank-specific date format beats the locale's guesses.
func overlayTemplate(cfg parse.Config, tpl *template.Template) parse.Config {
	if len(tpl.DateLayouts) > 0 {
		cfg.DateLayouts = append(append([]string{}, tpl.DateLayouts...), cfg.DateLayouts...)
	}
	if tpl.SignPolicy != "" {
		cfg.SignPolicy = parse.ParseSignPolicy(tpl.SignPolicy)
	}
	if tpl.Currency != "" {
		cfg.Currency = tpl.Currency
	}
	return cfg
}

func templateName(tpl *template.Template) string {
	if tpl == nil {
		return ""
	}
	return tpl.Name
}

func summarize(rep validate.Report) Summary {
	s := Summary{Valid: rep.Valid, Warnings: rep.Warnings, Rejected: rep.Rejected}
	for i := range rep.Records {
		amt := rep.Records[i].Amount
		if amt.IsNegative() {
			s.Debits = s.Debits.Add(amt.Abs())
		} else {
			s.Credits = s.Credits.Add(amt)
		}
		s.Net = s.Net.Add(amt)
	}
	return s
}

func countDisputes(drafts []orchestrate.Draft) int {
	n := 0
	for _, d := range drafts {
		for _, cf := range d.Fields {
			if cf.Disputed {
				n++
			}
		}
	}
	return n
}

func (c *Controller) observeRun(status string, format constants.DocumentFormat, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RunsTotal.WithLabelValues(status, string(format)).Inc()
	c.metrics.RunDuration.Observe(time.Since(start).Seconds())
}

func (c *Controller) observeResult(res *StatementResult, format constants.DocumentFormat, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.observeRun("completed", format, start)
	for _, d := range res.Diagnostics.Extractors {
		c.metrics.ExtractorDuration.WithLabelValues(string(d.Extractor)).Observe(d.Duration.Seconds())
		switch {
		case d.TimedOut:
			c.metrics.ExtractorErrors.WithLabelValues(string(d.Extractor), "timeout").Inc()
		case d.Err != "":
			c.metrics.ExtractorErrors.WithLabelValues(string(d.Extractor), "error").Inc()
		}
	}
	c.metrics.DisputedFields.Add(float64(res.Diagnostics.DisputedFields))
	c.metrics.RecordsTotal.WithLabelValues("valid").Add(float64(res.Summary.Valid))
	c.metrics.RecordsTotal.WithLabelValues("warning").Add(float64(res.Summary.Warnings))
	c.metrics.RecordsTotal.WithLabelValues("rejected").Add(float64(res.Summary.Rejected))
	for rule, n := range res.Diagnostics.RuleCounts {
		c.metrics.RuleViolations.WithLabelValues(rule).Add(float64(n))
	}
}
