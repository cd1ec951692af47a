package extract

import (
	"regexp"
	"strings"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/template"
)

// Shared table logic for the CSV and XLSX extractors: locate the header
// row, classify columns, trim trailing summary rows, and emit one
// candidate per populated cell of each transaction row.

var (
	reColDate    = regexp.MustCompile(`(?i)date`)
	reColDesc    = regexp.MustCompile(`(?i)description|particulars|details|narration|memo`)
	reColDebit   = regexp.MustCompile(`(?i)debit|withdrawal|paid\s*out|\bdr\b`)
	reColCredit  = regexp.MustCompile(`(?i)credit|deposit|paid\s*in|\bcr\b`)
	reColAmount  = regexp.MustCompile(`(?i)amount`)
	reColBalance = regexp.MustCompile(`(?i)balance`)
	reColRef     = regexp.MustCompile(`(?i)\bref(erence)?\b|txn\s*(id|no)`)
)

// IsDebitColumn reports whether a column header names a debit column.
// The parser's debit/credit sign policy relies on this classification.
func IsDebitColumn(header string) bool { return reColDebit.MatchString(header) }

// IsCreditColumn reports whether a column header names a credit column.
func IsCreditColumn(header string) bool { return reColCredit.MatchString(header) }

type columnRole struct {
	index  int
	header string
	kind   constants.FieldKind
}

// classifyColumns maps header cells onto field kinds. A template's
// field mapping wins over the generic header patterns.
func classifyColumns(headers []string, tpl *template.Template) []columnRole {
	var roles []columnRole
	add := func(i int, h string, k constants.FieldKind) {
		roles = append(roles, columnRole{index: i, header: h, kind: k})
	}
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if tpl != nil {
			if field, ok := tpl.FieldColumn(h); ok {
				switch field {
				case "date":
					add(i, h, constants.FieldDate)
				case "description":
					add(i, h, constants.FieldDescription)
				case "amount", "debit", "credit":
					add(i, h, constants.FieldAmount)
				case "balance":
					add(i, h, constants.FieldBalance)
				case "reference":
					add(i, h, constants.FieldReference)
				}
				continue
			}
		}
		switch {
		case reColDate.MatchString(h):
			add(i, h, constants.FieldDate)
		case reColBalance.MatchString(h):
			add(i, h, constants.FieldBalance)
		case reColDebit.MatchString(h), reColCredit.MatchString(h), reColAmount.MatchString(h):
			add(i, h, constants.FieldAmount)
		case reColDesc.MatchString(h):
			add(i, h, constants.FieldDescription)
		case reColRef.MatchString(h):
			add(i, h, constants.FieldReference)
		}
	}
	return roles
}

// findHeaderRow scans the first rows for one that looks like a column
// header (a date column plus a description-ish column).
func findHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		joined := strings.ToLower(strings.Join(rows[i], " "))
		if strings.Contains(joined, "date") &&
			(reColDesc.MatchString(joined) || reColAmount.MatchString(joined) ||
				reColDebit.MatchString(joined) || reColCredit.MatchString(joined)) {
			return i
		}
	}
	return -1
}

// trimSummaryRows drops trailing total/closing rows from the body.
func trimSummaryRows(body [][]string) [][]string {
	end := len(body)
	floor := end - 10
	if floor < 0 {
		floor = 0
	}
	for i := end - 1; i >= floor; i-- {
		joined := strings.ToLower(strings.Join(body[i], " "))
		if strings.Contains(joined, "total") || strings.Contains(joined, "closing") {
			end = i
			break
		}
	}
	return body[:end]
}

// tableCandidates converts raw table rows into candidates. The sheet
// argument fills SourceRef.Page so workbook extractors can distinguish
// sheets; CSV passes 1.
func tableCandidates(rows [][]string, tpl *template.Template, kind constants.ExtractorKind, sheet int) ([]Candidate, Metadata, []string) {
	var warnings []string

	headerIdx := findHeaderRow(rows)
	if tpl != nil && tpl.HeaderRows > 0 && tpl.HeaderRows < len(rows) {
		headerIdx = tpl.HeaderRows
	}
	if headerIdx < 0 {
		return nil, Metadata{}, []string{"no header row found"}
	}

	headText := joinRows(rows[:headerIdx+1])
	md := sniffMetadata(headText+"\n"+joinRows(tailRows(rows, 5)), tpl)

	roles := classifyColumns(rows[headerIdx], tpl)
	var hasDate, hasValue bool
	for _, r := range roles {
		switch r.kind {
		case constants.FieldDate:
			hasDate = true
		case constants.FieldAmount:
			hasValue = true
		}
	}
	if !hasDate || !hasValue {
		return nil, md, []string{"header row lacks date or amount columns"}
	}

	body := trimSummaryRows(rows[headerIdx+1:])

	var out []Candidate
	row := 0
	for i, cells := range body {
		if isBlankRow(cells) {
			continue
		}
		var rowCands []Candidate
		var sawDate, sawAmount bool
		for _, role := range roles {
			if role.index >= len(cells) {
				continue
			}
			val := strings.TrimSpace(cells[role.index])
			if val == "" {
				continue
			}
			switch role.kind {
			case constants.FieldDate:
				sawDate = true
			case constants.FieldAmount:
				if sawAmount {
					// both debit and credit populated; keep both for the
					// validator to adjudicate rather than guessing
					warnings = append(warnings, "row has both debit and credit values")
				}
				sawAmount = true
			}
			rowCands = append(rowCands, Candidate{
				Extractor:  kind,
				Row:        row,
				Kind:       role.kind,
				Value:      val,
				Confidence: 1.0,
				Source:     SourceRef{Page: sheet, Line: headerIdx + 2 + i, Column: role.header},
			})
		}
		if !sawDate || !sawAmount {
			continue
		}
		out = append(out, rowCands...)
		// pull a reference out of the description when no explicit column exists
		for _, c := range rowCands {
			if c.Kind == constants.FieldDescription {
				if ref, ok := extractReference(c.Value); ok && !hasKind(rowCands, constants.FieldReference) {
					rc := c
					rc.Kind = constants.FieldReference
					rc.Value = ref
					out = append(out, rc)
				}
			}
		}
		row++
	}
	return out, md, warnings
}

func hasKind(cands []Candidate, k constants.FieldKind) bool {
	for _, c := range cands {
		if c.Kind == k {
			return true
		}
	}
	return false
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func joinRows(rows [][]string) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Join(r, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func tailRows(rows [][]string, n int) [][]string {
	if len(rows) <= n {
		return rows
	}
	return rows[len(rows)-n:]
}
