package fattura

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanForXMLWithDeclaration(t *testing.T) {
	raw := append([]byte{0x30, 0x82, 0x01, 0xff, 0x06, 0x09}, []byte(sampleXML)...)
	raw = append(raw, 0x31, 0x0b, 0x30) // trailing signature bytes

	xmlText, err := ScanForXML(raw)
	require.NoError(t, err)
	assert.Equal(t, sampleXML, xmlText)
}

func TestScanForXMLWithoutDeclaration(t *testing.T) {
	doc := `<ns2:FatturaElettronica versione="FPA12"><FatturaElettronicaBody></FatturaElettronicaBody></ns2:FatturaElettronica>`
	raw := append([]byte{0x02, 0x01, 0x00}, []byte(doc)...)

	xmlText, err := ScanForXML(raw)
	require.NoError(t, err)
	assert.Equal(t, doc, xmlText)
}

func TestScanForXMLSkipsUnprefixedOpenTag(t *testing.T) {
	// The bare open tag also ends in "FatturaElettronica>"; the scanner
	// must keep looking for the actual closing tag.
	doc := `<FatturaElettronica><FatturaElettronicaHeader></FatturaElettronicaHeader></FatturaElettronica>`
	xmlText, err := ScanForXML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, doc, xmlText)
}

func TestScanForXMLToleratesInvalidUTF8(t *testing.T) {
	raw := append([]byte(sampleXML[:20]), 0xfe, 0xff)
	raw = append(raw, []byte(sampleXML[20:])...)
	raw = append([]byte{0x30, 0x80}, raw...)

	xmlText, err := ScanForXML(raw)
	require.NoError(t, err)
	assert.Contains(t, xmlText, "</p:FatturaElettronica>")
}

func TestScanForXMLErrors(t *testing.T) {
	_, err := ScanForXML([]byte{0x30, 0x82, 0x01, 0x02})
	assert.ErrorIs(t, err, ErrNoXMLStart)

	_, err = ScanForXML([]byte(`<?xml version="1.0"?><FatturaElettronica><unclosed>`))
	assert.ErrorIs(t, err, ErrNoClosingTag)
}
