package orchestrate

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/extract"
	"github.com/parsebank/statement-parser/internal/template"
)

// merge aligns rows across extractor runs and picks a winner per
// (row, field) group. Losing candidates are never discarded: they ride
// along as alternates, and rows no extractor could anchor are appended
// as supplementary drafts for validator review.
func (o *Orchestrator) merge(outcomes []runOutcome) Result {
	var res Result
	for _, oc := range outcomes {
		res.Diagnostics = append(res.Diagnostics, oc.diag)
		if len(oc.cands) > 0 {
			res.Methods = append(res.Methods, oc.kind)
		}
	}
	res.Metadata = o.mergeMetadata(outcomes)
	res.Template = o.mergeTemplate(outcomes)

	var successful []runOutcome
	for _, oc := range outcomes {
		if len(oc.cands) > 0 {
			successful = append(successful, oc)
		}
	}
	if len(successful) == 0 {
		return res
	}

	// The highest-tier successful run anchors row numbering.
	base := successful[0]
	for _, oc := range successful[1:] {
		if o.cfg.tier(oc.kind) > o.cfg.tier(base.kind) {
			base = oc
		}
	}

	var tagged []taggedCandidate
	baseAnchors := map[string]int{} // anchor -> base row
	maxRow := -1
	for _, c := range base.cands {
		tagged = append(tagged, taggedCandidate{Candidate: c, order: base.order})
		if c.Row > maxRow {
			maxRow = c.Row
		}
	}
	for anchor, row := range rowAnchors(base.cands) {
		baseAnchors[anchor] = row
	}

	nextSupplementary := maxRow + 1
	for _, oc := range successful {
		if oc.kind == base.kind {
			continue
		}
		anchors := rowAnchors(oc.cands)
		rowMap := map[int]int{}        // extractor row -> merged row
		supplementary := map[int]bool{}
		for _, row := range sortedRows(oc.cands) {
			matched := false
			for anchor, r := range anchors {
				if r != row {
					continue
				}
				if baseRow, ok := baseAnchors[anchor]; ok {
					rowMap[row] = baseRow
					matched = true
				}
				break
			}
			if !matched {
				rowMap[row] = nextSupplementary
				supplementary[row] = true
				nextSupplementary++
			}
		}
		for _, c := range oc.cands {
			mc := c
			mc.Row = rowMap[c.Row]
			tagged = append(tagged, taggedCandidate{Candidate: mc, order: oc.order, supplementary: supplementary[c.Row]})
		}
	}

	// Group by (row, kind) and pick winners.
	type groupKey struct {
		row  int
		kind constants.FieldKind
	}
	groups := map[groupKey][]taggedCandidate{}
	rowIsSupplementary := map[int]bool{}
	rowCandidates := map[int][]extract.Candidate{}
	for _, tc := range tagged {
		k := groupKey{row: tc.Row, kind: tc.Kind}
		groups[k] = append(groups[k], tc)
		rowCandidates[tc.Row] = append(rowCandidates[tc.Row], tc.Candidate)
		if tc.supplementary {
			rowIsSupplementary[tc.Row] = true
		}
	}

	drafts := map[int]Draft{}
	for k, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			ti, tj := o.cfg.tier(group[i].Extractor), o.cfg.tier(group[j].Extractor)
			if ti != tj {
				return ti > tj
			}
			if group[i].Confidence != group[j].Confidence {
				return group[i].Confidence > group[j].Confidence
			}
			return group[i].order < group[j].order
		})

		cf := ChosenField{Winner: group[0].Candidate}
		for _, tc := range group[1:] {
			cf.Alternates = append(cf.Alternates, tc.Candidate)
		}
		if ru := firstOtherExtractor(group); ru != nil {
			cf.Disputed = o.disagree(k.kind, group[0].Candidate, *ru)
		}

		d, ok := drafts[k.row]
		if !ok {
			d = Draft{
				Row:           k.row,
				Fields:        map[constants.FieldKind]ChosenField{},
				Candidates:    rowCandidates[k.row],
				Supplementary: rowIsSupplementary[k.row],
			}
		}
		d.Fields[k.kind] = cf
		drafts[k.row] = d
	}

	rows := make([]int, 0, len(drafts))
	for r := range drafts {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	for _, r := range rows {
		res.Drafts = append(res.Drafts, drafts[r])
	}
	return res
}

type taggedCandidate struct {
	extract.Candidate
	order         int
	supplementary bool
}

// firstOtherExtractor finds the best-ranked candidate that came from a
// different extractor than the winner, the only meaningful source of a
// dispute.
func firstOtherExtractor(group []taggedCandidate) *extract.Candidate {
	for _, tc := range group[1:] {
		if tc.Extractor != group[0].Extractor {
			c := tc.Candidate
			return &c
		}
	}
	return nil
}

// disagree applies the type-specific tolerance between the winner and
// the runner-up from another extractor.
func (o *Orchestrator) disagree(kind constants.FieldKind, a, b extract.Candidate) bool {
	switch kind {
	case constants.FieldAmount, constants.FieldBalance:
		da, oka := looseDecimal(a.Value)
		db, okb := looseDecimal(b.Value)
		if !oka || !okb {
			return a.Value != b.Value
		}
		eps := o.cfg.AmountEpsilon
		if eps.IsZero() {
			eps = decimal.New(1, -2) // 0.01
		}
		return da.Abs().Sub(db.Abs()).Abs().GreaterThan(eps)
	case constants.FieldDate:
		return dateKey(a.Value) != dateKey(b.Value)
	case constants.FieldReference:
		return !strings.EqualFold(strings.TrimSpace(a.Value), strings.TrimSpace(b.Value))
	default:
		// descriptions legitimately differ between engines
		return false
	}
}

// mergeMetadata fills statement metadata field-wise, highest tier first.
func (o *Orchestrator) mergeMetadata(outcomes []runOutcome) extract.Metadata {
	sorted := make([]runOutcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return o.cfg.tier(sorted[i].kind) > o.cfg.tier(sorted[j].kind)
	})
	var md extract.Metadata
	for _, oc := range sorted {
		m := oc.diag.Metadata
		if md.BankName == "" {
			md.BankName = m.BankName
		}
		if md.AccountNumber == "" {
			md.AccountNumber = m.AccountNumber
		}
		if md.AccountName == "" {
			md.AccountName = m.AccountName
		}
		if md.Period == "" {
			md.Period = m.Period
		}
		if md.OpeningBalance == "" {
			md.OpeningBalance = m.OpeningBalance
		}
		if md.ClosingBalance == "" {
			md.ClosingBalance = m.ClosingBalance
		}
		if md.Currency == "" {
			md.Currency = m.Currency
		}
	}
	return md
}

// mergeTemplate keeps the bank template matched by the most trusted
// extractor run.
func (o *Orchestrator) mergeTemplate(outcomes []runOutcome) *template.Template {
	var best *template.Template
	bestTier := 0
	for _, oc := range outcomes {
		if oc.diag.Template == nil {
			continue
		}
		if best == nil || o.cfg.tier(oc.kind) > bestTier {
			best = oc.diag.Template
			bestTier = o.cfg.tier(oc.kind)
		}
	}
	return best
}

// rowAnchors builds the (date, amount) anchor for each extractor row.
// Rows lacking either half get no anchor and stay unmatched.
func rowAnchors(cands []extract.Candidate) map[string]int {
	dates := map[int]string{}
	amounts := map[int]string{}
	for _, c := range cands {
		switch c.Kind {
		case constants.FieldDate:
			dates[c.Row] = dateKey(c.Value)
		case constants.FieldAmount:
			if d, ok := looseDecimal(c.Value); ok {
				amounts[c.Row] = d.Abs().StringFixed(2)
			}
		}
	}
	anchors := map[string]int{}
	for row, dk := range dates {
		ak, ok := amounts[row]
		if !ok || dk == "" {
			continue
		}
		anchor := dk + "|" + ak
		if _, dup := anchors[anchor]; !dup {
			anchors[anchor] = row
		}
	}
	return anchors
}

func sortedRows(cands []extract.Candidate) []int {
	seen := map[int]struct{}{}
	for _, c := range cands {
		seen[c.Row] = struct{}{}
	}
	rows := make([]int, 0, len(seen))
	for r := range seen {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	return rows
}

var anchorLayouts = []string{
	"2006-01-02", "02/01/2006", "01/02/2006", "02-01-2006",
	"2006/01/02", "02/01/06", "2 Jan 2006", "Jan 2, 2006",
}

// dateKey canonicalizes a raw date token for anchor matching. Falls
// back to a digits-only key when no layout parses.
func dateKey(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range anchorLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("20060102")
		}
	}
	return nonDigits.ReplaceAllString(s, "")
}

var nonDigits = regexp.MustCompile(`[^0-9]`)
var looseAmount = regexp.MustCompile(`[^0-9.\-]`)

// looseDecimal parses an amount string permissively (symbols and
// separators stripped) for comparison purposes only.
func looseDecimal(s string) (decimal.Decimal, bool) {
	cleaned := looseAmount.ReplaceAllString(s, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
