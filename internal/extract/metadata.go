package extract

import (
	"regexp"
	"strings"

	"github.com/parsebank/statement-parser/internal/template"
)

var (
	reAccountNo = regexp.MustCompile(`(?i)(?:account\s*no|account\s*number|a/c\s*no)[:.\s]*([0-9Xx*]{4,})`)
	rePeriod    = regexp.MustCompile(`(?i)(?:statement period|period)[:\s]*([\w\s,/.-]+?\s+to\s+[\w\s,/.-]+?)(?:\n|$)`)
	reOpening   = regexp.MustCompile(`(?i)(?:opening balance|begin(?:ning)? balance|balance brought forward)[:\s]*(-?[\d,]+\.\d{2})`)
	reClosing   = regexp.MustCompile(`(?i)(?:closing balance|end(?:ing)? balance|balance carried forward)[:\s]*(-?[\d,]+\.\d{2})`)
	reCurrency  = regexp.MustCompile(`\b(USD|EUR|GBP|INR|CAD|AUD|JPY|NGN|CHF)\b`)
)

var knownBanks = []string{
	"HDFC", "SBI", "ICICI", "Axis", "Bank of Baroda", "PNB",
	"Kotak", "Yes Bank", "IDBI", "Bank of India", "Canara Bank", "Chase",
	"Bank of America", "Wells Fargo", "Citibank", "HSBC", "Barclays",
	"Lloyds", "NatWest", "Santander", "GTBank", "Zenith",
}

// sniffMetadata pulls statement-level metadata out of header text. A
// matched template's patterns take precedence over the generic ones.
func sniffMetadata(text string, tpl *template.Template) Metadata {
	var md Metadata

	if tpl != nil {
		if v, ok := tpl.MetadataValue("account_number", text); ok {
			md.AccountNumber = v
		}
		if v, ok := tpl.MetadataValue("account_name", text); ok {
			md.AccountName = v
		}
		if v, ok := tpl.MetadataValue("statement_period", text); ok {
			md.Period = v
		}
		if v, ok := tpl.MetadataValue("opening_balance", text); ok {
			md.OpeningBalance = v
		}
		if v, ok := tpl.MetadataValue("closing_balance", text); ok {
			md.ClosingBalance = v
		}
		if v, ok := tpl.MetadataValue("bank_name", text); ok {
			md.BankName = v
		}
		if tpl.Currency != "" {
			md.Currency = tpl.Currency
		}
	}

	if md.AccountNumber == "" {
		if m := reAccountNo.FindStringSubmatch(text); len(m) > 1 {
			md.AccountNumber = strings.TrimSpace(m[1])
		}
	}
	if md.Period == "" {
		if m := rePeriod.FindStringSubmatch(text); len(m) > 1 {
			md.Period = strings.TrimSpace(m[1])
		}
	}
	if md.OpeningBalance == "" {
		if m := reOpening.FindStringSubmatch(text); len(m) > 1 {
			md.OpeningBalance = m[1]
		}
	}
	if md.ClosingBalance == "" {
		if m := reClosing.FindStringSubmatch(text); len(m) > 1 {
			md.ClosingBalance = m[1]
		}
	}
	if md.Currency == "" {
		if m := reCurrency.FindStringSubmatch(text); len(m) > 1 {
			md.Currency = m[1]
		}
	}
	if md.BankName == "" {
		lower := strings.ToLower(text)
		for _, bank := range knownBanks {
			if strings.Contains(lower, strings.ToLower(bank)) {
				md.BankName = bank
				break
			}
		}
	}
	return md
}
