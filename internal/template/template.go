// Package template loads bank statement templates: per-bank hints for
// identifying a statement and mapping its columns onto transaction
// fields. Templates are JSON files validated against a schema at load
// time so a malformed template fails fast instead of mis-extracting.
package template

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Template describes one bank's statement layout.
type Template struct {
	Name        string   `json:"name"`
	Identifiers []string `json:"identifiers"`

	// FieldMapping maps a field kind ("date", "amount", "debit",
	// "credit", "balance", "description", "reference") to a
	// case-insensitive regex matched against column headers.
	FieldMapping map[string]string `json:"field_mapping,omitempty"`

	// MetadataPatterns maps statement metadata keys ("account_number",
	// "opening_balance", ...) to regexes with one capture group.
	MetadataPatterns map[string]string `json:"metadata_patterns,omitempty"`

	// DateLayouts are tried before the run locale's own layouts.
	DateLayouts []string `json:"date_layouts,omitempty"`
	SignPolicy  string   `json:"sign_policy,omitempty"` // "signed_column" | "debit_credit_columns" | "keyword_suffix"
	// HeaderRows is the number of preamble rows above the column
	// header; zero means the header is located by content.
	HeaderRows int    `json:"header_rows,omitempty"`
	Currency   string `json:"currency,omitempty"`

	fieldRes map[string]*regexp.Regexp
	metaRes  map[string]*regexp.Regexp
}

// Matches reports whether any of the template's identifiers occur in
// the given document text (case-insensitive).
func (t *Template) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, id := range t.Identifiers {
		if id != "" && strings.Contains(lower, strings.ToLower(id)) {
			return true
		}
	}
	return false
}

// FieldColumn returns the field kind a column header maps to, if any.
func (t *Template) FieldColumn(header string) (string, bool) {
	for field, re := range t.fieldRes {
		if re.MatchString(header) {
			return field, true
		}
	}
	return "", false
}

// MetadataValue applies the named metadata pattern to text and returns
// the first capture group.
func (t *Template) MetadataValue(key, text string) (string, bool) {
	re, ok := t.metaRes[key]
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func (t *Template) compile() error {
	t.fieldRes = make(map[string]*regexp.Regexp, len(t.FieldMapping))
	for field, pat := range t.FieldMapping {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return fmt.Errorf("field_mapping[%s]: %w", field, err)
		}
		t.fieldRes[field] = re
	}
	t.metaRes = make(map[string]*regexp.Regexp, len(t.MetadataPatterns))
	for key, pat := range t.MetadataPatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return fmt.Errorf("metadata_patterns[%s]: %w", key, err)
		}
		t.metaRes[key] = re
	}
	return nil
}

// Set is an immutable collection of loaded templates.
type Set struct {
	templates []*Template
}

// Load reads every *.json template in dir, validating each against the
// template schema. A missing or empty dir yields an empty set.
func Load(dir string, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Set{}
	if dir == "" {
		return s, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read templates dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		tpl, err := ParseTemplate(raw)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", e.Name(), err)
		}
		if tpl.Name == "" {
			tpl.Name = strings.TrimSuffix(e.Name(), ".json")
		}
		s.templates = append(s.templates, tpl)
		logger.Debug("template.loaded", "name", tpl.Name, "identifiers", len(tpl.Identifiers))
	}
	return s, nil
}

// ParseTemplate validates and compiles a single raw JSON template.
func ParseTemplate(raw []byte) (*Template, error) {
	if err := validateTemplateJSON(raw); err != nil {
		return nil, err
	}
	var tpl Template
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	if err := tpl.compile(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Match finds the first template whose identifiers occur in text.
func (s *Set) Match(text string) (*Template, bool) {
	for _, tpl := range s.templates {
		if tpl.Matches(text) {
			return tpl, true
		}
	}
	return nil, false
}

// Len reports how many templates are loaded.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.templates)
}
