package estratto

import (
	"encoding/json"
	"strings"
)

// RawTransaction is one transaction object as the model emitted it, before
// normalization. Numeric fields are json.Number so both quoted and bare
// numbers survive.
type RawTransaction struct {
	Date         string      `json:"date"`
	ValueDate    string      `json:"value_date"`
	Amount       json.Number `json:"amount"`
	Commission   json.Number `json:"commission"`
	Balance      json.Number `json:"balance"`
	Description  string      `json:"description"`
	Counterparty string      `json:"counterparty"`
	CounterIBAN  string      `json:"counterparty_account"`
	Type         string      `json:"transaction_type"`
	Reference    string      `json:"reference"`
	InvoiceRef   string      `json:"invoice_ref"`
	Branch       string      `json:"branch"`
	FlowID       string      `json:"flow_id"`
	RawText      string      `json:"raw_text"`
}

// RepairTransactions recovers a best-effort transaction array from model
// output. The attempts run in order of decreasing trust: parse directly,
// parse the outermost JSON span, then truncate at the last complete object
// and close the array. A hopeless payload degrades to an empty list, never
// an error, so a mangled chunk costs its own transactions and nothing else.
func RepairTransactions(raw string) []RawTransaction {
	text := stripFences(raw)
	if text == "" {
		return nil
	}

	if txs, ok := tryParse(text); ok {
		return txs
	}

	if span := outerSpan(text); span != "" {
		if txs, ok := tryParse(span); ok {
			return txs
		}
		text = span
	}

	// Typical truncation: the array stops mid-object. Cut back to the last
	// complete "}," boundary and close the array.
	if idx := strings.LastIndex(text, "},"); idx >= 0 {
		candidate := text[:idx+1] + "]"
		if !strings.HasPrefix(strings.TrimSpace(candidate), "[") {
			candidate = "[" + candidate
		}
		if txs, ok := tryParse(candidate); ok {
			return txs
		}
	}

	return nil
}

func tryParse(text string) ([]RawTransaction, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var txs []RawTransaction
	if err := dec.Decode(&txs); err == nil {
		return txs, true
	}

	// A single object instead of an array also counts.
	dec = json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var single RawTransaction
	if err := dec.Decode(&single); err == nil {
		return []RawTransaction{single}, true
	}
	return nil, false
}

// stripFences removes a markdown code-fence wrapper, with or without a
// language tag.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

// outerSpan extracts the outermost [...] or {...} region, whichever starts
// first.
func outerSpan(text string) string {
	arrStart := strings.Index(text, "[")
	objStart := strings.Index(text, "{")

	start, closer := arrStart, "]"
	if start < 0 || (objStart >= 0 && objStart < start) {
		start, closer = objStart, "}"
	}
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(text, closer)
	if end <= start {
		// No closing bracket at all: return the open tail so the
		// truncation cut can still work on it.
		return text[start:]
	}
	return text[start : end+1]
}
