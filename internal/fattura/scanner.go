package fattura

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// ScanForXML is the fallback recovery path used when strict DER extraction
// fails: it hunts the raw bytes for an embedded XML document by pattern.
// Signed envelopes keep the invoice XML contiguous, so slicing between the
// declaration (or first start-tag) and the closing FatturaElettronica tag
// recovers it even when the surrounding DER is damaged.
func ScanForXML(raw []byte) (string, error) {
	start := bytes.Index(raw, []byte("<?xml"))
	if start < 0 {
		start = indexStartTag(raw)
	}
	if start < 0 {
		return "", extractionErr("ScanForXML", ErrNoXMLStart)
	}

	text := decodeLossy(raw[start:])

	closeIdx := strings.Index(text, "FatturaElettronica>")
	for closeIdx >= 0 {
		// Walk back to the matching "</" so any namespace prefix between
		// them is tolerated.
		open := strings.LastIndex(text[:closeIdx], "</")
		if open >= 0 && !strings.ContainsAny(text[open+2:closeIdx], "<> \t\r\n") {
			return text[:closeIdx+len("FatturaElettronica>")], nil
		}
		next := strings.Index(text[closeIdx+1:], "FatturaElettronica>")
		if next < 0 {
			break
		}
		closeIdx += 1 + next
	}
	return "", extractionErr("ScanForXML", ErrNoClosingTag)
}

// indexStartTag finds the first '<' immediately followed by a letter.
func indexStartTag(raw []byte) int {
	for i := 0; i+1 < len(raw); i++ {
		if raw[i] != '<' {
			continue
		}
		c := raw[i+1]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			return i
		}
	}
	return -1
}

// decodeLossy converts bytes to a string, replacing invalid UTF-8 sequences
// instead of failing on them.
func decodeLossy(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size == 1 {
			raw = raw[1:]
			continue
		}
		b.WriteRune(r)
		raw = raw[size:]
	}
	return b.String()
}
