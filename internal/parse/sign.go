package parse

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/internal/common"
	"github.com/parsebank/statement-parser/internal/extract"
)

// LocaleProfile describes how a locale writes monetary amounts and
// dates. Profiles are immutable values passed in at run time.
type LocaleProfile struct {
	Name         string
	DecimalSep   string
	ThousandsSep string
	DateLayouts  []string
}

var (
	LocaleUK = LocaleProfile{
		Name:         "en-GB",
		DecimalSep:   ".",
		ThousandsSep: ",",
		DateLayouts: []string{
			"02/01/2006", "2006-01-02", "02-01-2006", "02/01/06",
			"2 Jan 2006", "02 Jan 2006", "2 January 2006", "Jan 2, 2006",
		},
	}
	LocaleUS = LocaleProfile{
		Name:         "en-US",
		DecimalSep:   ".",
		ThousandsSep: ",",
		DateLayouts: []string{
			"01/02/2006", "2006-01-02", "01-02-2006", "01/02/06",
			"Jan 2, 2006", "January 2, 2006", "2 Jan 2006",
		},
	}
	LocaleEU = LocaleProfile{
		Name:         "de-DE",
		DecimalSep:   ",",
		ThousandsSep: ".",
		DateLayouts: []string{
			"02.01.2006", "2006-01-02", "02/01/2006", "02.01.06",
		},
	}
)

// Locales indexes the built-in profiles by name for config lookup.
var Locales = map[string]LocaleProfile{
	LocaleUK.Name: LocaleUK,
	LocaleUS.Name: LocaleUS,
	LocaleEU.Name: LocaleEU,
}

// signCues records the sign evidence found while cleaning a token.
// The magnitude is always returned positive; the policy decides.
type signCues struct {
	negative     bool // leading minus or accounting parentheses
	debitSuffix  bool // trailing DR / DEBIT
	creditSuffix bool // trailing CR / CREDIT
}

var currencyTokens = []string{"£", "$", "€", "₦", "¥", "GBP", "USD", "EUR", "NGN", "JPY"}

// cleanAmount strips currency symbols and locale separators and
// returns the absolute magnitude plus the sign cues seen in the token.
func cleanAmount(raw string, loc LocaleProfile) (decimal.Decimal, signCues, error) {
	var cues signCues
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, cues, common.NewAppError(common.CodeUnparseableField, "empty amount", nil)
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		cues.negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"), strings.HasSuffix(upper, "DEBIT"):
		cues.debitSuffix = true
		s = s[:len(s)-len(trailingWord(upper))]
	case strings.HasSuffix(upper, "CR"), strings.HasSuffix(upper, "CREDIT"):
		cues.creditSuffix = true
		s = s[:len(s)-len(trailingWord(upper))]
	}

	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "-") {
		cues.negative = true
		s = strings.TrimPrefix(s, "-")
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimPrefix(s, "+")
	}

	s = strings.ReplaceAll(s, loc.ThousandsSep, "")
	if loc.DecimalSep != "." {
		s = strings.ReplaceAll(s, loc.DecimalSep, ".")
	}
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, cues, common.NewAppError(common.CodeUnparseableField, "amount not numeric: "+raw, err)
	}
	if d.IsNegative() {
		cues.negative = true
		d = d.Abs()
	}
	return d, cues, nil
}

func trailingWord(upper string) string {
	for _, w := range []string{"DEBIT", "CREDIT", "DR", "CR"} {
		if strings.HasSuffix(upper, w) {
			return w
		}
	}
	return ""
}

// SignPolicy names an explicit sign-resolution rule selected per
// document layout. Debits are negative, credits positive.
type SignPolicy string

const (
	// SignAuto tries every cue in order: column role, suffix, token sign.
	SignAuto SignPolicy = "auto"
	// SignSignedColumn trusts the token's own minus/parentheses only.
	SignSignedColumn SignPolicy = "signed_column"
	// SignDebitCreditColumns takes the sign from the source column header.
	SignDebitCreditColumns SignPolicy = "debit_credit_columns"
	// SignKeywordSuffix takes the sign from a trailing DR/CR marker.
	SignKeywordSuffix SignPolicy = "keyword_suffix"
)

// ParseSignPolicy maps a template or config string onto a policy,
// defaulting to auto for anything unrecognized.
func ParseSignPolicy(s string) SignPolicy {
	switch SignPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case SignSignedColumn:
		return SignSignedColumn
	case SignDebitCreditColumns:
		return SignDebitCreditColumns
	case SignKeywordSuffix:
		return SignKeywordSuffix
	default:
		return SignAuto
	}
}

func (p SignPolicy) apply(mag decimal.Decimal, cues signCues, column string) (decimal.Decimal, error) {
	switch p {
	case SignSignedColumn:
		if cues.negative {
			return mag.Neg(), nil
		}
		return mag, nil
	case SignDebitCreditColumns:
		if extract.IsDebitColumn(column) {
			return mag.Neg(), nil
		}
		if extract.IsCreditColumn(column) {
			return mag, nil
		}
		return decimal.Zero, common.NewAppError(common.CodeUnparseableField,
			"debit_credit_columns policy but column is neither: "+column, nil)
	case SignKeywordSuffix:
		if cues.debitSuffix {
			return mag.Neg(), nil
		}
		if cues.creditSuffix {
			return mag, nil
		}
		return decimal.Zero, common.NewAppError(common.CodeUnparseableField,
			"keyword_suffix policy but no DR/CR marker", nil)
	default: // SignAuto
		switch {
		case extract.IsDebitColumn(column):
			return mag.Neg(), nil
		case extract.IsCreditColumn(column):
			return mag, nil
		case cues.debitSuffix:
			return mag.Neg(), nil
		case cues.creditSuffix:
			return mag, nil
		case cues.negative:
			return mag.Neg(), nil
		}
		return mag, nil
	}
}
