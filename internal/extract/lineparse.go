package extract

import (
	"regexp"
	"strings"

	"github.com/parsebank/statement-parser/constants"
)

// Free-text row recognition shared by the text-PDF and OCR extractors.
// A transaction line is any line carrying both a date-shaped and an
// amount-shaped token; everything left after removing those tokens is
// the description.

var (
	reLineDate   = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)
	reLineAmount = regexp.MustCompile(`-?\d{1,3}(?:,\d{3})*\.\d{2}\b|-?\d+\.\d{2}\b`)
	reSpaces     = regexp.MustCompile(`\s+`)

	reDebitHint  = regexp.MustCompile(`(?i)\b(dr|debit|withdrawal|with)\b`)
	reCreditHint = regexp.MustCompile(`(?i)\b(cr|credit|dep|deposit)\b`)

	refPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)reference\s*:?\s*([A-Za-z0-9-]+)`),
		regexp.MustCompile(`(?i)\bref\b\.?\s*:?\s*([A-Za-z0-9-]+)`),
		regexp.MustCompile(`(?i)txn\s*(?:id|no)\s*:?\s*([A-Za-z0-9]+)`),
	}
)

// extractReference pulls a reference number out of a description line.
func extractReference(desc string) (string, bool) {
	for _, re := range refPatterns {
		if m := re.FindStringSubmatch(desc); len(m) > 1 {
			return m[1], true
		}
	}
	return "", false
}

// lineCandidates parses one text line into candidates for a given row
// index. Returns nil when the line does not look like a transaction.
//
// Amount disambiguation mirrors statement layouts seen in the wild:
// one amount is the transaction amount; with two, the second is the
// running balance; with three, the layout is debit/credit/balance.
func lineCandidates(line string, kind constants.ExtractorKind, row int, src SourceRef, conf float64) []Candidate {
	dateTok := reLineDate.FindString(line)
	amounts := reLineAmount.FindAllString(line, -1)
	if dateTok == "" || len(amounts) == 0 {
		return nil
	}

	mk := func(fk constants.FieldKind, val string, column string) Candidate {
		s := src
		s.Column = column
		return Candidate{
			Extractor:  kind,
			Row:        row,
			Kind:       fk,
			Value:      val,
			Confidence: conf,
			Source:     s,
		}
	}

	out := []Candidate{mk(constants.FieldDate, dateTok, "")}

	switch {
	case len(amounts) == 1:
		column := ""
		if reDebitHint.MatchString(line) {
			column = "debit"
		} else if reCreditHint.MatchString(line) {
			column = "credit"
		}
		out = append(out, mk(constants.FieldAmount, amounts[0], column))
	case len(amounts) == 2:
		out = append(out, mk(constants.FieldAmount, amounts[0], ""))
		out = append(out, mk(constants.FieldBalance, amounts[1], ""))
	default:
		// debit / credit / balance columns flattened into one line
		if isZeroAmount(amounts[0]) && !isZeroAmount(amounts[1]) {
			out = append(out, mk(constants.FieldAmount, amounts[1], "credit"))
		} else {
			out = append(out, mk(constants.FieldAmount, amounts[0], "debit"))
		}
		out = append(out, mk(constants.FieldBalance, amounts[len(amounts)-1], ""))
	}

	desc := reLineDate.ReplaceAllString(line, "")
	for _, a := range amounts {
		desc = strings.Replace(desc, a, "", 1)
	}
	desc = strings.TrimSpace(reSpaces.ReplaceAllString(desc, " "))
	if desc != "" {
		out = append(out, mk(constants.FieldDescription, desc, ""))
		if ref, ok := extractReference(desc); ok {
			out = append(out, mk(constants.FieldReference, ref, ""))
		}
	}
	return out
}

func isZeroAmount(s string) bool {
	s = strings.NewReplacer(",", "", "-", "").Replace(s)
	for _, r := range s {
		if r != '0' && r != '.' {
			return false
		}
	}
	return true
}

// textCandidates runs lineCandidates over a block of text, assigning
// consecutive row indexes to recognized transaction lines.
func textCandidates(text string, kind constants.ExtractorKind, page, startRow int, conf float64) []Candidate {
	var out []Candidate
	row := startRow
	for i, line := range strings.Split(text, "\n") {
		cands := lineCandidates(line, kind, row, SourceRef{Page: page, Line: i + 1}, conf)
		if len(cands) == 0 {
			continue
		}
		out = append(out, cands...)
		row++
	}
	return out
}
