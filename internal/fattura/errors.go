package fattura

import (
	"errors"
	"fmt"
)

// Envelope and mapping errors. The router uses these to decide whether a
// DER failure should fall through to the byte scanner.
var (
	// ErrNotDER is returned when the input is neither DER nor a base64/PEM
	// wrapper around DER.
	ErrNotDER = errors.New("input is not a DER structure or a recognizable wrapper")

	// ErrOIDNotFound is returned when the pkcs7-data OID cannot be located
	// within the scan bound.
	ErrOIDNotFound = errors.New("pkcs7-data OID not found")

	// ErrMalformedLength is returned for an invalid DER length encoding.
	ErrMalformedLength = errors.New("malformed DER length encoding")

	// ErrNoContent is returned when the signed content yields no OCTET
	// STRING payload.
	ErrNoContent = errors.New("no signed content found in PKCS#7 structure")

	// ErrMarkerMissing is returned when recovered text does not contain the
	// FatturaElettronica root marker.
	ErrMarkerMissing = errors.New("recovered content is not a FatturaElettronica document")

	// ErrNoXMLStart is returned by the byte scanner when no XML start can
	// be located in the stream.
	ErrNoXMLStart = errors.New("no XML start marker found in byte stream")

	// ErrNoClosingTag is returned by the byte scanner when the closing
	// FatturaElettronica tag is missing.
	ErrNoClosingTag = errors.New("closing FatturaElettronica tag not found")

	// ErrNoBodies is returned when a mapped invoice carries zero bodies.
	ErrNoBodies = errors.New("invoice contains no document bodies")
)

// ExtractionError wraps a failure with the stage that produced it, so the
// router can report both the DER and the byte-scan cause in one message.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("fattura: %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &ExtractionError{Stage: stage, Err: err}
}
