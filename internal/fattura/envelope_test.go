package fattura

import (
	"bytes"
	"encoding/base64"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<p:FatturaElettronica versione="FPR12">
  <FatturaElettronicaHeader></FatturaElettronicaHeader>
  <FatturaElettronicaBody></FatturaElettronicaBody>
</p:FatturaElettronica>`

func encodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var octets []byte
	for v := n; v > 0; v >>= 8 {
		octets = append([]byte{byte(v)}, octets...)
	}
	return append([]byte{byte(0x80 | len(octets))}, octets...)
}

func tlv(tag byte, content []byte) []byte {
	out := []byte{tag}
	out = append(out, encodeLength(len(content))...)
	return append(out, content...)
}

// buildSignedData assembles a minimal SignedData-shaped envelope: an outer
// SEQUENCE carrying the pkcs7-data OID followed by the [0] content wrapper
// around the given OCTET STRING encoding of the payload.
func buildSignedData(octets []byte) []byte {
	body := append([]byte{}, pkcs7DataOID...)
	body = append(body, tlv(0xa0, octets)...)
	return tlv(0x30, body)
}

func TestExtractSignedXMLRoundTrip(t *testing.T) {
	der := buildSignedData(tlv(0x04, []byte(sampleXML)))

	resolved, err := ResolveEnvelope(der)
	require.NoError(t, err)
	assert.Equal(t, der, resolved)

	xmlText, err := ExtractSignedXML(resolved)
	require.NoError(t, err)
	assert.Equal(t, sampleXML, xmlText)
}

func TestExtractSignedXMLFragmentedOctets(t *testing.T) {
	// Streamed signatures split the payload across several OCTET STRINGs
	// inside a constructed wrapper; extraction must reassemble them.
	half := len(sampleXML) / 2
	fragmented := tlv(0x24, append(
		tlv(0x04, []byte(sampleXML[:half])),
		tlv(0x04, []byte(sampleXML[half:]))...,
	))
	der := buildSignedData(fragmented)

	xmlText, err := ExtractSignedXML(der)
	require.NoError(t, err)
	assert.Equal(t, sampleXML, xmlText)
}

func TestExtractSignedXMLIndefiniteLength(t *testing.T) {
	// BER indefinite-length wrappers terminate on end-of-contents markers.
	var buf bytes.Buffer
	buf.Write([]byte{0x30, 0x80})
	buf.Write(pkcs7DataOID)
	buf.Write([]byte{0xa0, 0x80})
	buf.Write(tlv(0x04, []byte(sampleXML)))
	buf.Write([]byte{0x00, 0x00}) // EOC for [0]
	buf.Write([]byte{0x00, 0x00}) // EOC for SEQUENCE

	xmlText, err := ExtractSignedXML(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sampleXML, xmlText)
}

func TestExtractSignedXMLStripsBOM(t *testing.T) {
	payload := append(append([]byte{}, utf8BOM...), []byte(sampleXML)...)
	der := buildSignedData(tlv(0x04, payload))

	xmlText, err := ExtractSignedXML(der)
	require.NoError(t, err)
	assert.Equal(t, sampleXML, xmlText)
}

func TestExtractSignedXMLErrors(t *testing.T) {
	t.Run("oid not found", func(t *testing.T) {
		_, err := ExtractSignedXML(tlv(0x30, []byte("no oid here")))
		assert.ErrorIs(t, err, ErrOIDNotFound)
	})

	t.Run("claimed length past end of buffer", func(t *testing.T) {
		der := buildSignedData(tlv(0x04, []byte(sampleXML)))
		_, err := ExtractSignedXML(der[:len(der)-10])
		assert.ErrorIs(t, err, ErrMalformedLength)
	})

	t.Run("no octet strings", func(t *testing.T) {
		body := append([]byte{}, pkcs7DataOID...)
		body = append(body, tlv(0xa0, tlv(0x02, []byte{0x01}))...)
		_, err := ExtractSignedXML(tlv(0x30, body))
		assert.ErrorIs(t, err, ErrNoContent)
	})

	t.Run("payload without invoice marker", func(t *testing.T) {
		der := buildSignedData(tlv(0x04, []byte("<other>document</other>")))
		_, err := ExtractSignedXML(der)
		assert.ErrorIs(t, err, ErrMarkerMissing)
	})
}

func TestResolveEnvelopeBase64(t *testing.T) {
	der := buildSignedData(tlv(0x04, []byte(sampleXML)))

	// Base64 transport often arrives with line wrapping.
	encoded := base64.StdEncoding.EncodeToString(der)
	var wrapped bytes.Buffer
	for i := 0; i < len(encoded); i += 64 {
		end := i + 64
		if end > len(encoded) {
			end = len(encoded)
		}
		wrapped.WriteString(encoded[i:end])
		wrapped.WriteString("\r\n")
	}

	resolved, err := ResolveEnvelope(wrapped.Bytes())
	require.NoError(t, err)
	assert.Equal(t, der, resolved)
}

func TestResolveEnvelopePEM(t *testing.T) {
	der := buildSignedData(tlv(0x04, []byte(sampleXML)))
	armored := pem.EncodeToMemory(&pem.Block{Type: "PKCS7", Bytes: der})

	resolved, err := ResolveEnvelope(armored)
	require.NoError(t, err)
	assert.Equal(t, der, resolved)
}

func TestResolveEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ResolveEnvelope([]byte("definitely not an envelope"))
	assert.ErrorIs(t, err, ErrNotDER)

	_, err = ResolveEnvelope(nil)
	assert.ErrorIs(t, err, ErrNotDER)
}
