// Package normalize canonicalizes typed transactions and assigns each
// a deterministic reference id. Re-running a statement through the
// pipeline yields identical ids, which is what makes re-import safe.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/parsebank/statement-parser/constants"
	"github.com/parsebank/statement-parser/internal/parse"
)

// Record is a normalized transaction ready for validation.
type Record struct {
	parse.Transaction
	ReferenceID string
	// Collapsed counts duplicate records merged into this one during
	// within-run dedup.
	Collapsed int
}

// Config pins the identity inputs for one run.
type Config struct {
	AccountID  string
	Currency   string // ISO code applied when a record carries none
	TrustTiers map[constants.ExtractorKind]int
}

type Normalizer struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Normalizer {
	if cfg.TrustTiers == nil {
		cfg.TrustTiers = constants.DefaultTrustTiers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{cfg: cfg, logger: logger}
}

// Normalize canonicalizes every transaction in order, assigns
// reference ids, and collapses within-run duplicates. Ordering is
// preserved; only explicit, logged collapses remove records.
func (n *Normalizer) Normalize(txs []parse.Transaction) []Record {
	seqByKey := map[string]int{}
	firstByKey := map[string]int{} // key -> index into out
	out := make([]Record, 0, len(txs))

	for _, tx := range txs {
		rec := Record{Transaction: tx}
		rec.Description = CanonicalDescription(tx.Description)
		rec.Currency = CurrencyCode(tx.Currency, n.cfg.Currency)
		rec.Amount = tx.Amount.Round(2)
		if tx.Balance.Valid {
			rec.Balance.Valid = true
			rec.Balance.Decimal = tx.Balance.Decimal.Round(2)
		}
		rec.Stage = constants.StageNormalized

		key := n.dedupKey(&rec)

		// A supplementary row repeating an already-normalized key is
		// the same transaction seen by a second extractor, not a new
		// one. Keep whichever source ranks higher.
		if idx, seen := firstByKey[key]; seen && tx.Supplementary {
			kept := &out[idx]
			if n.tier(rec.Extractor) > n.tier(kept.Extractor) {
				rec.ReferenceID = kept.ReferenceID
				rec.Row = kept.Row
				rec.Collapsed = kept.Collapsed + 1
				rec.Supplementary = kept.Supplementary
				*kept = rec
			} else {
				kept.Collapsed++
			}
			n.logger.Info("normalize.dedup",
				"reference_id", kept.ReferenceID,
				"kept_extractor", string(kept.Extractor),
			)
			continue
		}

		seq := seqByKey[key]
		seqByKey[key] = seq + 1
		rec.ReferenceID = referenceID(n.cfg.AccountID, key, seq)
		if _, seen := firstByKey[key]; !seen {
			firstByKey[key] = len(out)
		}
		out = append(out, rec)
	}
	return out
}

func (n *Normalizer) tier(k constants.ExtractorKind) int {
	return n.cfg.TrustTiers[k]
}

// dedupKey joins the canonical identity fields. Records with
// unresolved date or amount fall back to zero values so the key stays
// deterministic.
func (n *Normalizer) dedupKey(r *Record) string {
	date := "0001-01-01"
	if r.HasDate() {
		date = r.Date.Format("2006-01-02")
	}
	return strings.Join([]string{
		date,
		r.Amount.StringFixed(2),
		r.Description,
	}, "\x1f")
}

func referenceID(accountID, key string, seq int) string {
	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte{0x1f})
	h.Write([]byte(key))
	h.Write([]byte{0x1f})
	h.Write([]byte(strconv.Itoa(seq)))
	return hex.EncodeToString(h.Sum(nil))
}

// CanonicalDescription applies NFC normalization and collapses runs of
// whitespace into single spaces.
func CanonicalDescription(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

var symbolCurrencies = map[string]string{
	"£": "GBP", "$": "USD", "€": "EUR", "₦": "NGN", "¥": "JPY",
}

// CurrencyCode maps a raw currency token onto an ISO code, falling
// back to the run default.
func CurrencyCode(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if code, ok := symbolCurrencies[raw]; ok {
		return code
	}
	if len(raw) == 3 {
		return strings.ToUpper(raw)
	}
	if fallback != "" {
		return strings.ToUpper(fallback)
	}
	return raw
}
