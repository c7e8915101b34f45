package fattura

import (
	"archive/zip"
	"bytes"
	"testing"

	"primanota/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func buildZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseFilePlainXML(t *testing.T) {
	r := NewRouter(zap.NewNop())

	results := r.ParseFile("IT01234567890_00001.xml", []byte(invoiceXML))
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, models.MethodPlainXML, res.Method)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Invoice)
	assert.Len(t, res.Invoice.Bodies, 2)
	assert.NotEmpty(t, res.ContentHash)
}

func TestParseFileStripsXMLBOM(t *testing.T) {
	r := NewRouter(zap.NewNop())
	data := append(append([]byte{}, utf8BOM...), []byte(invoiceXML)...)

	results := r.ParseFile("invoice.xml", data)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Invoice)
}

func TestParseFileSignedP7M(t *testing.T) {
	r := NewRouter(zap.NewNop())
	der := buildSignedData(tlv(0x04, []byte(invoiceXML)))

	results := r.ParseFile("IT01234567890_00001.xml.p7m", der)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, models.MethodDER, res.Method)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, "Alfa S.r.l.", res.Invoice.Supplier.Name)
}

func TestParseFileP7MByteScanFallback(t *testing.T) {
	r := NewRouter(zap.NewNop())

	// A damaged envelope: valid-looking head, then the XML inlined without
	// any OCTET STRING structure. DER extraction fails, the scanner wins.
	raw := append([]byte{0x30, 0x82, 0xff, 0xff}, []byte(invoiceXML)...)

	results := r.ParseFile("damaged.xml.p7m", raw)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, models.MethodByteScan, res.Method)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Invoice)
}

func TestParseFileP7MCorruptedLengthFallsBack(t *testing.T) {
	r := NewRouter(zap.NewNop())

	// OID present but the content wrapper claims a length far past the
	// buffer end; the intact XML after it is still scannable.
	raw := append([]byte{0x30, 0x82, 0x0f, 0xff}, pkcs7DataOID...)
	raw = append(raw, 0xa0, 0x84, 0x7f, 0xff, 0xff, 0xff)
	raw = append(raw, []byte(invoiceXML)...)

	results := r.ParseFile("corrupt-length.xml.p7m", raw)
	require.Len(t, results, 1)
	assert.Equal(t, models.MethodByteScan, results[0].Method)
	assert.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Invoice)
}

func TestParseFileP7MBothPathsFail(t *testing.T) {
	r := NewRouter(zap.NewNop())

	results := r.ParseFile("junk.p7m", []byte{0x30, 0x82, 0x00, 0x04, 0x01, 0x02, 0x03, 0x04})
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, models.MethodFailed, res.Method)
	assert.Contains(t, res.Error, "DER extraction failed")
	assert.Contains(t, res.Error, "byte-scan failed")
}

func TestParseFileZip(t *testing.T) {
	r := NewRouter(zap.NewNop())
	der := buildSignedData(tlv(0x04, []byte(invoiceXML)))
	data := buildZip(t, map[string][]byte{
		"fatture/a.xml":     []byte(invoiceXML),
		"fatture/b.xml.p7m": der,
		"fatture/c.xml":     []byte("<not-an-invoice/>"),
		"readme.txt":        []byte("ignored"),
	})

	results := r.ParseFile("bundle.zip", data)
	require.Len(t, results, 3)

	var ok, failed int
	for _, res := range results {
		if res.Error == "" {
			ok++
			assert.NotNil(t, res.Invoice)
		} else {
			failed++
			assert.Nil(t, res.Invoice)
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)
}

func TestParseFileZipWithoutInvoices(t *testing.T) {
	r := NewRouter(zap.NewNop())
	data := buildZip(t, map[string][]byte{"notes.txt": []byte("nothing here")})

	results := r.ParseFile("empty.zip", data)
	require.Len(t, results, 1)
	assert.Equal(t, models.MethodFailed, results[0].Method)
	assert.Contains(t, results[0].Error, "no .xml or .p7m entries")
}

func TestParseFileUnreadableZip(t *testing.T) {
	r := NewRouter(zap.NewNop())

	results := r.ParseFile("broken.zip", []byte("PK but not really"))
	require.Len(t, results, 1)
	assert.Equal(t, models.MethodFailed, results[0].Method)
	assert.Contains(t, results[0].Error, "unreadable ZIP archive")
}

func TestContentHashIgnoresWhitespace(t *testing.T) {
	a := ContentHash("<FatturaElettronica>\n  <Numero>1</Numero>\n</FatturaElettronica>")
	b := ContentHash("<FatturaElettronica> <Numero>1</Numero> </FatturaElettronica>")
	c := ContentHash("<FatturaElettronica> <Numero>2</Numero> </FatturaElettronica>")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
