package estratto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"primanota/internal/models"

	"github.com/google/uuid"
)

const dedupDescriptionLen = 60

// Normalize coerces raw model output into canonical transactions and drops
// duplicates. Duplicates arise both from the source (repeated statement
// lines) and from overlapping re-extraction of the same pages; the content
// key makes both cases converge. First occurrence wins for any input order.
func Normalize(raws []RawTransaction, batchID, accountID uuid.UUID) []models.BankTransaction {
	seen := make(map[string]struct{}, len(raws))
	out := make([]models.BankTransaction, 0, len(raws))
	now := time.Now()

	for _, raw := range raws {
		date := NormalizeDate(raw.Date)
		amount, hasAmount := parseNumber(raw.Amount)

		// Without either a date or an amount this cannot be a transaction.
		if date == "" && !hasAmount {
			continue
		}

		tx := models.BankTransaction{
			ID:           uuid.New(),
			BatchID:      batchID,
			AccountID:    accountID,
			Date:         date,
			ValueDate:    NormalizeDate(raw.ValueDate),
			Amount:       amount,
			Description:  sanitizeUTF8(strings.TrimSpace(raw.Description)),
			Counterparty: sanitizeUTF8(strings.TrimSpace(raw.Counterparty)),
			CounterIBAN:  strings.TrimSpace(raw.CounterIBAN),
			Type:         normalizeType(raw.Type),
			Reference:    strings.TrimSpace(raw.Reference),
			InvoiceRef:   strings.TrimSpace(raw.InvoiceRef),
			Branch:       strings.TrimSpace(raw.Branch),
			FlowID:       strings.TrimSpace(raw.FlowID),
			RawText:      sanitizeUTF8(raw.RawText),
			CreatedAt:    now,
		}

		if commission, ok := parseNumber(raw.Commission); ok && commission != 0 {
			// Commissions always reduce the balance, whatever sign the
			// model chose.
			c := -math.Abs(commission)
			tx.Commission = &c
		}
		if balance, ok := parseNumber(raw.Balance); ok {
			tx.Balance = &balance
		}

		key := DedupKey(tx.Date, tx.Amount, tx.Description)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tx.DedupHash = DedupHash(key)
		out = append(out, tx)
	}

	// Newest first for display.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out
}

// NormalizeDate converts DD/MM/YYYY, DD-MM-YYYY or ISO dates to ISO
// YYYY-MM-DD. The 4-digit token decides which side the year is on; an
// unrecognizable value comes back empty.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	sep := "/"
	if !strings.Contains(s, "/") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return ""
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var year, month, day string
	if len(parts[0]) == 4 {
		year, month, day = parts[0], parts[1], parts[2]
	} else if len(parts[2]) == 4 {
		year, month, day = parts[2], parts[1], parts[0]
	} else {
		return ""
	}
	if len(month) == 1 {
		month = "0" + month
	}
	if len(day) == 1 {
		day = "0" + day
	}

	iso := year + "-" + month + "-" + day
	if _, err := time.Parse("2006-01-02", iso); err != nil {
		return ""
	}
	return iso
}

// DedupKey builds the idempotency key over date, amount and the first 60
// characters of the description.
func DedupKey(date string, amount float64, description string) string {
	desc := description
	if len(desc) > dedupDescriptionLen {
		desc = desc[:dedupDescriptionLen]
	}
	return fmt.Sprintf("%s|%.2f|%s", date, amount, desc)
}

// DedupHash digests the dedup key for the storage layer's idempotent
// upsert. Truncated: collisions across different keys are irrelevant at
// this keyspace size and shorter values index better.
func DedupHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

func normalizeType(t string) models.TransactionType {
	candidate := models.TransactionType(strings.ToLower(strings.TrimSpace(t)))
	if models.ValidTransactionType(candidate) {
		return candidate
	}
	return models.TypeAltro
}

func parseNumber(n interface{ String() string }) (float64, bool) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return 0, false
	}
	// Italian decimal commas show up despite the prompt contract.
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// sanitizeUTF8 removes invalid UTF-8 sequences so model-derived text never
// trips PostgreSQL's encoding checks.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}
