package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jan.csv")
	body := []byte("Date,Description,Amount\n02/01/2025,COFFEE,-4.50\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if doc.Name != "jan.csv" {
		t.Errorf("name = %q", doc.Name)
	}
	if len(doc.Bytes) != len(body) {
		t.Errorf("bytes = %d, want %d", len(doc.Bytes), len(body))
	}
	if doc.MIME == "" {
		t.Error("mime not detected")
	}
}

func TestLoadDocumentRejectsExtension(t *testing.T) {
	dir := t.TempDir()
	// legacy xls included: no extractor can read it, so accepting it
	// would only ever end in an empty extraction
	for _, name := range []string{"malware.exe", "legacy.xls"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("MZ"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadDocument(path); err == nil {
			t.Errorf("%s: unsupported extension must be rejected", name)
		}
	}
}

func TestHashDocumentStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jan.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	d1, err := LoadDocument(path)
	if err != nil {
		t.Fatal(err)
	}
	d2, _ := LoadDocument(path)
	if HashDocument(d1) != HashDocument(d2) {
		t.Error("hash must be stable for identical content")
	}
	if len(HashDocument(d1)) != 64 {
		t.Errorf("hash length = %d, want hex sha-256", len(HashDocument(d1)))
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.csv":           "x",
		"b.pdf":           "x",
		"skip.txt":        "x",
		".hidden/c.csv":   "x",
		"nested/d.xlsx":   "x",
		"nested/.e.csv":   "x",
		"nested/deep.png": "x",
	}
	for rel, body := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ScanDirectory(dir, nil, true)
	if err != nil {
		t.Fatalf("ScanDirectory: %v", err)
	}
	names := map[string]bool{}
	for _, p := range got {
		names[filepath.Base(p)] = true
	}
	for _, want := range []string{"a.csv", "b.pdf", "d.xlsx", "deep.png"} {
		if !names[want] {
			t.Errorf("missing %s in %v", want, got)
		}
	}
	for _, skip := range []string{"skip.txt", "c.csv", ".e.csv"} {
		if names[skip] {
			t.Errorf("unexpected %s in results", skip)
		}
	}
}
