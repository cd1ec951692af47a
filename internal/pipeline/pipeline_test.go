package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/common"
	"github.com/parsebank/statement-parser/internal/extract"
	"github.com/parsebank/statement-parser/internal/template"
)

const statementCSV = "Date,Description,Amount,Balance\n" +
	"02/01/2025,CARD PAYMENT GROCER,-50.00,950.00\n" +
	"03/01/2025,SALARY ACME LTD,2000.00,2950.00\n" +
	"04/01/2025,DIRECT DEBIT ENERGY,-75.25,2874.75\n"

func testController(t *testing.T) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	cfg.AccountID = "acct-9001"
	pool := []extract.Extractor{extract.NewCSVExtractor(nil, nil)}
	return New(cfg, pool, nil, nil)
}

func TestRunEndToEnd(t *testing.T) {
	ctrl := testController(t)
	doc := &extract.Document{Name: "jan.csv", MIME: "text/csv", Bytes: []byte(statementCSV)}

	res, err := ctrl.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != constants.RunCompleted {
		t.Errorf("status = %s", res.Status)
	}
	if res.SchemaVersion != SchemaVersion {
		t.Errorf("schema version = %s", res.SchemaVersion)
	}
	if res.Diagnostics.Format != constants.FormatCSV {
		t.Errorf("format = %s", res.Diagnostics.Format)
	}
	if len(res.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(res.Records))
	}
	if res.Summary.Valid != 3 || res.Summary.Warnings != 0 || res.Summary.Rejected != 0 {
		t.Fatalf("summary = %+v, want three valid records", res.Summary)
	}

	wantAmounts := []string{"-50", "2000", "-75.25"}
	for i, rec := range res.Records {
		if got := rec.Amount.String(); got != wantAmounts[i] {
			t.Errorf("record %d amount = %s, want %s", i, got, wantAmounts[i])
		}
		if rec.ReferenceID == "" {
			t.Errorf("record %d missing reference id", i)
		}
		if rec.Currency != "GBP" {
			t.Errorf("record %d currency = %s", i, rec.Currency)
		}
		if rec.Stage != constants.StageValidated {
			t.Errorf("record %d stage = %s", i, rec.Stage)
		}
	}
	if got := res.Summary.Credits.String(); got != "2000" {
		t.Errorf("credits = %s", got)
	}
	if got := res.Summary.Debits.String(); got != "125.25" {
		t.Errorf("debits = %s", got)
	}
	if got := res.Summary.Net.String(); got != "1874.75" {
		t.Errorf("net = %s", got)
	}
}

func TestRunIdempotentReferenceIDs(t *testing.T) {
	ctrl := testController(t)
	doc := &extract.Document{Name: "jan.csv", MIME: "text/csv", Bytes: []byte(statementCSV)}

	first, err := ctrl.Run(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ctrl.Run(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if first.RunID == second.RunID {
		t.Error("run ids must differ between runs")
	}
	for i := range first.Records {
		if first.Records[i].ReferenceID != second.Records[i].ReferenceID {
			t.Errorf("record %d reference id changed between runs", i)
		}
	}
}

func TestRunCorruptedBalanceWarnsSingleRow(t *testing.T) {
	corrupted := "Date,Description,Amount,Balance\n" +
		"02/01/2025,CARD PAYMENT GROCER,-50.00,950.00\n" +
		"03/01/2025,SALARY ACME LTD,2000.00,2950.01\n" +
		"04/01/2025,DIRECT DEBIT ENERGY,-75.25,2874.75\n"

	ctrl := testController(t)
	res, err := ctrl.Run(context.Background(), &extract.Document{Name: "jan.csv", MIME: "text/csv", Bytes: []byte(corrupted)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.Valid != 2 || res.Summary.Warnings != 1 {
		t.Fatalf("summary = %+v, want exactly one warning", res.Summary)
	}
	want := []constants.Severity{constants.SeverityValid, constants.SeverityWarning, constants.SeverityValid}
	for i, rec := range res.Records {
		if rec.Severity != want[i] {
			t.Errorf("record %d severity = %s, want %s", i, rec.Severity, want[i])
		}
	}
}

func TestRunTemplateDateLayouts(t *testing.T) {
	// Dotted dates parse with no built-in en-GB layout; only the
	// matched template's date_layouts can resolve them.
	dotted := "ACME Credit Union Statement\n" +
		"Date,Description,Amount,Balance\n" +
		"15.01.2025,CARD PAYMENT GROCER,-50.00,950.00\n" +
		"16.01.2025,SALARY ACME LTD,2000.00,2950.00\n"
	doc := &extract.Document{Name: "jan.csv", MIME: "text/csv", Bytes: []byte(dotted)}

	bare, err := testController(t).Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run without templates: %v", err)
	}
	if bare.Summary.Warnings == 0 {
		t.Fatal("dotted dates should stay unresolved without a template")
	}

	dir := t.TempDir()
	tplJSON := `{
		"name": "acme-credit-union",
		"identifiers": ["ACME Credit Union"],
		"date_layouts": ["02.01.2006"]
	}`
	if err := os.WriteFile(filepath.Join(dir, "acme.json"), []byte(tplJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := template.Load(dir, nil)
	if err != nil {
		t.Fatalf("Load templates: %v", err)
	}

	cfg := DefaultConfig()
	cfg.AccountID = "acct-9001"
	ctrl := New(cfg, []extract.Extractor{extract.NewCSVExtractor(set, nil)}, nil, nil)

	res, err := ctrl.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run with template: %v", err)
	}
	if res.Diagnostics.Template != "acme-credit-union" {
		t.Errorf("diagnostics template = %q", res.Diagnostics.Template)
	}
	if res.Summary.Valid != 2 || res.Summary.Warnings != 0 {
		t.Fatalf("summary = %+v, want both rows valid", res.Summary)
	}
	if got := res.Records[0].Date.Format("2006-01-02"); got != "2025-01-15" {
		t.Errorf("record 0 date = %s", got)
	}
}

func TestRunEmptyExtraction(t *testing.T) {
	ctrl := testController(t)
	doc := &extract.Document{Name: "junk.csv", MIME: "text/csv", Bytes: []byte("no table in here\njust words\n")}

	_, err := ctrl.Run(context.Background(), doc)
	if err == nil {
		t.Fatal("expected empty extraction error")
	}
	if !errors.Is(err, common.ErrEmptyExtraction) {
		t.Errorf("error = %v, want ErrEmptyExtraction in chain", err)
	}
	if common.CodeOf(err) != common.CodeEmptyExtraction {
		t.Errorf("code = %s", common.CodeOf(err))
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	body := "account_id: acct-42\n" +
		"currency: USD\n" +
		"locale: en-US\n" +
		"sign_policy: signed_column\n" +
		"extractor_timeout: 45s\n" +
		"concurrency: false\n" +
		"balance_epsilon: \"0.02\"\n" +
		"trust_tiers:\n  ocr: 25\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AccountID != "acct-42" || cfg.Currency != "USD" || cfg.Locale != "en-US" {
		t.Errorf("identity fields = %+v", cfg)
	}
	if cfg.SignPolicy != "signed_column" {
		t.Errorf("sign policy = %s", cfg.SignPolicy)
	}
	if cfg.ExtractorTimeout != 45*time.Second {
		t.Errorf("timeout = %s", cfg.ExtractorTimeout)
	}
	if cfg.Concurrency {
		t.Error("concurrency should be off")
	}
	if got := cfg.BalanceEpsilon.String(); got != "0.02" {
		t.Errorf("balance epsilon = %s", got)
	}
	if cfg.TrustTiers[constants.ExtractorOCR] != 25 {
		t.Errorf("ocr tier = %d", cfg.TrustTiers[constants.ExtractorOCR])
	}
	// unset keys keep defaults
	if cfg.TrustTiers[constants.ExtractorCSV] != constants.DefaultTrustTiers[constants.ExtractorCSV] {
		t.Errorf("csv tier = %d", cfg.TrustTiers[constants.ExtractorCSV])
	}
	if got := cfg.RejectDelta.String(); got != "100" {
		t.Errorf("reject delta = %s", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("extractor_timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); common.CodeOf(err) != common.CodeConfigError {
		t.Errorf("code = %s, want config error", common.CodeOf(err))
	}
	if _, err := LoadConfig(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("missing file must error")
	}
}
