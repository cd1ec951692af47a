package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/parsebank/statement-parser/constants"
)

// mlPrompt instructs the model to label transaction rows in the
// attached statement. Output is constrained to strict JSON so the
// response can be decoded without heuristics.
const mlPrompt = `You are a bank statement parser.

Task:
- Read ALL transactions in the attached bank statement.
- Output STRICT JSON only (no comments, no trailing commas, no extra text).
- Output a JSON array of objects, one per transaction row, in statement order.

Each object must have these fields:
- "date": string exactly as printed on the statement
- "description": string
- "amount": string exactly as printed (keep sign, separators, currency symbols)
- "balance": string as printed, or null when absent
- "reference": string, or null when absent
- "confidence": number between 0 and 1 for this row

Return ONLY valid raw JSON.
Do NOT wrap the response in code fences.
Output must begin with "[" and end with "]".`

// ModelInvoker sends a prompt plus the document to a sequence-labeling
// model and returns its raw text response. Kept narrow so tests can
// stub the model.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string, doc *Document) (string, error)
}

// GeminiInvoker implements ModelInvoker on the Gemini API.
type GeminiInvoker struct {
	Model string
}

func (g *GeminiInvoker) Invoke(ctx context.Context, prompt string, doc *Document) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: doc.MIME,
						Data:     doc.Bytes,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// MLConfig holds model-extractor settings.
type MLConfig struct {
	Model   string
	Timeout time.Duration // per-document cap on model latency; zero means uncapped
}

// MLExtractor labels transaction rows with a generative model. The
// model's per-row score becomes the candidate confidence.
type MLExtractor struct {
	invoker ModelInvoker
	cfg     MLConfig
	logger  *slog.Logger
}

func NewMLExtractor(invoker ModelInvoker, cfg MLConfig, logger *slog.Logger) *MLExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if invoker == nil {
		invoker = &GeminiInvoker{Model: cfg.Model}
	}
	return &MLExtractor{invoker: invoker, cfg: cfg, logger: logger}
}

func (e *MLExtractor) Kind() constants.ExtractorKind { return constants.ExtractorML }

type mlRow struct {
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Amount      string   `json:"amount"`
	Balance     *string  `json:"balance"`
	Reference   *string  `json:"reference"`
	Confidence  *float64 `json:"confidence"`
}

func (e *MLExtractor) Extract(ctx context.Context, doc *Document) ([]Candidate, Diagnostics, error) {
	start := time.Now()
	diag := Diagnostics{Extractor: e.Kind(), Engine: e.cfg.Model, Pages: doc.Pages}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	raw, err := e.invoker.Invoke(ctx, mlPrompt, doc)
	if err != nil {
		diag.Duration = time.Since(start)
		return nil, diag, err
	}

	var rows []mlRow
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &rows); err != nil {
		diag.Duration = time.Since(start)
		return nil, diag, fmt.Errorf("decode model output: %w", err)
	}

	var out []Candidate
	for i, r := range rows {
		conf := 0.5
		if r.Confidence != nil && *r.Confidence > 0 && *r.Confidence <= 1 {
			conf = *r.Confidence
		} else {
			diag.HeuristicConfidence = true
		}
		mk := func(k constants.FieldKind, v string) Candidate {
			return Candidate{
				Extractor:  e.Kind(),
				Row:        i,
				Kind:       k,
				Value:      v,
				Confidence: conf,
				Source:     SourceRef{Line: i + 1},
			}
		}
		if r.Date == "" || r.Amount == "" {
			diag.Warnings = append(diag.Warnings, fmt.Sprintf("row %d missing date or amount", i))
			continue
		}
		out = append(out, mk(constants.FieldDate, r.Date), mk(constants.FieldAmount, r.Amount))
		if r.Description != "" {
			out = append(out, mk(constants.FieldDescription, r.Description))
		}
		if r.Balance != nil && *r.Balance != "" {
			out = append(out, mk(constants.FieldBalance, *r.Balance))
		}
		if r.Reference != nil && *r.Reference != "" {
			out = append(out, mk(constants.FieldReference, *r.Reference))
		}
	}

	diag.Rows = countRows(out)
	diag.Duration = time.Since(start)
	e.logger.Debug("extract.ml.done",
		"doc", doc.Name,
		"model", e.cfg.Model,
		"rows", diag.Rows,
		"candidates", len(out),
	)
	return out, diag, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk the model
// sometimes emits despite instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
