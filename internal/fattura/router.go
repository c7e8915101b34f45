package fattura

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"primanota/internal/models"

	"go.uber.org/zap"
)

// Router dispatches an uploaded file to the invoice extraction chain. A
// single upload can be a bare XML, a signed .p7m, or a ZIP bundling many of
// either; the router always returns one ParseResult per source document.
type Router struct {
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{logger: logger}
}

// ParseFile processes one uploaded file. Errors are captured per entry: a
// broken document inside a ZIP never aborts its siblings.
func (r *Router) ParseFile(fileName string, data []byte) []models.ParseResult {
	if strings.EqualFold(filepath.Ext(fileName), ".zip") {
		return r.parseArchive(fileName, data)
	}
	return []models.ParseResult{r.parseEntry(fileName, data)}
}

func (r *Router) parseArchive(fileName string, data []byte) []models.ParseResult {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return []models.ParseResult{{
			FileName: fileName,
			Method:   models.MethodFailed,
			Error:    fmt.Sprintf("unreadable ZIP archive: %v", err),
		}}
	}

	var results []models.ParseResult
	for _, entry := range reader.File {
		ext := strings.ToLower(filepath.Ext(entry.Name))
		if entry.FileInfo().IsDir() || (ext != ".xml" && ext != ".p7m") {
			continue
		}
		content, err := readZipEntry(entry)
		if err != nil {
			results = append(results, models.ParseResult{
				FileName: entry.Name,
				Method:   models.MethodFailed,
				Error:    fmt.Sprintf("unreadable archive entry: %v", err),
			})
			continue
		}
		results = append(results, r.parseEntry(entry.Name, content))
	}
	if len(results) == 0 {
		results = append(results, models.ParseResult{
			FileName: fileName,
			Method:   models.MethodFailed,
			Error:    "archive contains no .xml or .p7m entries",
		})
	}
	return results
}

// parseEntry runs one document through envelope resolution, the DER
// extractor with byte-scan fallback, and the XML mapper.
func (r *Router) parseEntry(fileName string, data []byte) models.ParseResult {
	xmlText, method, err := r.recoverXML(fileName, data)
	if err != nil {
		r.logger.Warn("Invoice extraction failed",
			zap.String("file", fileName),
			zap.Error(err),
		)
		return models.ParseResult{FileName: fileName, Method: models.MethodFailed, Error: err.Error()}
	}

	if !strings.Contains(xmlText, invoiceMarker) {
		return models.ParseResult{
			FileName: fileName,
			Method:   method,
			RawXML:   xmlText,
			Error:    ErrMarkerMissing.Error(),
		}
	}

	invoice, err := MapInvoice(xmlText)
	if err != nil {
		return models.ParseResult{
			FileName: fileName,
			Method:   method,
			RawXML:   xmlText,
			Error:    fmt.Sprintf("parse_error: %v", err),
		}
	}

	r.logger.Info("Invoice parsed",
		zap.String("file", fileName),
		zap.String("method", method),
		zap.Int("bodies", len(invoice.Bodies)),
	)
	return models.ParseResult{
		FileName:    fileName,
		Method:      method,
		RawXML:      xmlText,
		ContentHash: ContentHash(xmlText),
		Invoice:     invoice,
	}
}

// recoverXML picks the extraction path by extension: .p7m goes through the
// DER extractor and falls back to the byte scanner; anything else is taken
// as plain XML.
func (r *Router) recoverXML(fileName string, data []byte) (string, string, error) {
	if !strings.EqualFold(filepath.Ext(fileName), ".p7m") {
		return string(bytes.TrimPrefix(data, utf8BOM)), models.MethodPlainXML, nil
	}

	der, derErr := ResolveEnvelope(data)
	if derErr == nil {
		xmlText, err := ExtractSignedXML(der)
		if err == nil {
			return xmlText, models.MethodDER, nil
		}
		derErr = err
	}

	xmlText, scanErr := ScanForXML(data)
	if scanErr == nil {
		return xmlText, models.MethodByteScan, nil
	}

	return "", models.MethodFailed, fmt.Errorf("DER extraction failed (%v); byte-scan failed (%v)", derErr, scanErr)
}

// ContentHash is the invoice idempotency key: a digest of the recovered
// XML with whitespace normalized, so re-uploads of the same document are
// detected regardless of transport padding.
func ContentHash(xmlText string) string {
	normalized := strings.Join(strings.Fields(xmlText), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
