package fattura

import (
	"bytes"
	"encoding/base64"
	"encoding/pem"
	"strings"
)

// pkcs7DataOID is the DER encoding of the pkcs7-data content type
// (1.2.840.113549.1.7.1), tag and length included.
var pkcs7DataOID = []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x01}

const (
	// oidScanBound limits the linear OID scan to the head of the structure;
	// the encapContentInfo of a signed invoice always sits well within it.
	oidScanBound = 2000

	// maxNesting caps the constructed-TLV walk on untrusted input.
	maxNesting = 16
)

const invoiceMarker = "FatturaElettronica"

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// ResolveEnvelope recovers DER bytes from a .p7m payload. Files in the wild
// arrive as raw DER, as bare base64, or as PEM armor; each shape is tried
// in that order.
func ResolveEnvelope(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrNotDER
	}
	if raw[0] == 0x30 {
		return raw, nil
	}

	compact := stripWhitespace(raw)
	if decoded, err := base64.StdEncoding.DecodeString(string(compact)); err == nil {
		if len(decoded) > 0 && decoded[0] == 0x30 {
			return decoded, nil
		}
	}

	if block, _ := pem.Decode(raw); block != nil {
		if len(block.Bytes) > 0 && block.Bytes[0] == 0x30 {
			return block.Bytes, nil
		}
	}

	return nil, ErrNotDER
}

// ExtractSignedXML walks a DER-encoded PKCS#7 SignedData structure and
// reassembles the embedded invoice XML. It is a purpose-built reader, not a
// general ASN.1 parser: it locates the pkcs7-data OID by byte pattern and
// then concatenates every OCTET STRING payload under the content wrapper,
// recursing into constructed containers.
func ExtractSignedXML(der []byte) (string, error) {
	bound := len(der)
	if bound > oidScanBound {
		bound = oidScanBound
	}
	idx := bytes.Index(der[:bound], pkcs7DataOID)
	if idx < 0 {
		return "", extractionErr("ExtractSignedXML", ErrOIDNotFound)
	}

	cur := &derCursor{buf: der, pos: idx + len(pkcs7DataOID)}

	// Skip the [0] EXPLICIT content wrapper when present. Its length bounds
	// the walk for definite encodings; indefinite encodings run to the
	// end-of-contents marker.
	end := len(der)
	if tag, ok := cur.peekTag(); ok && tag == 0xa0 {
		_, length, indefinite, err := cur.readHeader()
		if err != nil {
			return "", extractionErr("ExtractSignedXML", err)
		}
		if !indefinite {
			end = cur.pos + length
			if end > len(der) {
				return "", extractionErr("ExtractSignedXML", ErrMalformedLength)
			}
		}
	}

	var content bytes.Buffer
	if err := cur.collectOctets(end, 0, &content); err != nil {
		return "", extractionErr("ExtractSignedXML", err)
	}
	if content.Len() == 0 {
		return "", extractionErr("ExtractSignedXML", ErrNoContent)
	}

	text := string(bytes.TrimPrefix(content.Bytes(), utf8BOM))
	if !strings.Contains(text, invoiceMarker) {
		return "", extractionErr("ExtractSignedXML", ErrMarkerMissing)
	}
	return text, nil
}

// derCursor is an index cursor over a DER byte buffer.
type derCursor struct {
	buf []byte
	pos int
}

func (c *derCursor) peekTag() (byte, bool) {
	if c.pos >= len(c.buf) {
		return 0, false
	}
	return c.buf[c.pos], true
}

// readHeader consumes one tag byte plus its length octets. A returned
// indefinite=true means the value runs until an end-of-contents marker.
func (c *derCursor) readHeader() (tag byte, length int, indefinite bool, err error) {
	if c.pos >= len(c.buf) {
		return 0, 0, false, ErrMalformedLength
	}
	tag = c.buf[c.pos]
	c.pos++

	if c.pos >= len(c.buf) {
		return 0, 0, false, ErrMalformedLength
	}
	first := c.buf[c.pos]
	c.pos++

	switch {
	case first < 0x80:
		length = int(first)
	case first == 0x80:
		indefinite = true
	default:
		n := int(first & 0x7f)
		if n > 4 || c.pos+n > len(c.buf) {
			return 0, 0, false, ErrMalformedLength
		}
		for i := 0; i < n; i++ {
			length = length<<8 | int(c.buf[c.pos])
			c.pos++
		}
	}
	if !indefinite && c.pos+length > len(c.buf) {
		return 0, 0, false, ErrMalformedLength
	}
	return tag, length, indefinite, nil
}

// atEOC reports whether the cursor sits on an end-of-contents marker
// (a TLV pair of two zero bytes) and consumes it when so.
func (c *derCursor) atEOC() bool {
	if c.pos+1 < len(c.buf) && c.buf[c.pos] == 0x00 && c.buf[c.pos+1] == 0x00 {
		c.pos += 2
		return true
	}
	return false
}

// collectOctets walks sibling TLVs up to end, appending every primitive
// OCTET STRING payload to out and descending into constructed containers.
// end == len(buf) together with indefinite parents means the walk stops at
// end-of-contents markers instead.
func (c *derCursor) collectOctets(end int, depth int, out *bytes.Buffer) error {
	if depth > maxNesting {
		return ErrMalformedLength
	}
	for c.pos < end {
		if c.atEOC() {
			return nil
		}
		tag, length, indefinite, err := c.readHeader()
		if err != nil {
			return err
		}

		constructed := tag&0x20 != 0
		switch {
		case tag == 0x04 && !constructed:
			out.Write(c.buf[c.pos : c.pos+length])
			c.pos += length
		case constructed:
			childEnd := end
			if !indefinite {
				childEnd = c.pos + length
			}
			if err := c.collectOctets(childEnd, depth+1, out); err != nil {
				return err
			}
			if !indefinite {
				c.pos = childEnd
			}
		case indefinite:
			// A primitive value cannot be indefinite-length.
			return ErrMalformedLength
		default:
			c.pos += length
		}
	}
	return nil
}

func stripWhitespace(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
		default:
			out = append(out, c)
		}
	}
	return out
}
