package estratto

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Chunk is a bounded group of statement pages packaged as a standalone PDF,
// small enough for one model invocation. FirstPage/LastPage are 1-based.
type Chunk struct {
	Index     int
	FirstPage int
	LastPage  int
	Data      []byte
}

// SplitIntoChunks partitions a statement PDF into fixed-size page windows.
// Large statements cannot go to the model whole: output limits truncate the
// response and huge inputs raise the truncation risk, so a few pages per
// request trades request count for reliability.
func SplitIntoChunks(pdf []byte, pagesPerChunk int) ([]Chunk, int, error) {
	if pagesPerChunk < 1 {
		pagesPerChunk = 1
	}

	total, err := api.PageCount(bytes.NewReader(pdf), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	if total == 0 {
		return nil, 0, ErrNoPages
	}

	var chunks []Chunk
	for first := 1; first <= total; first += pagesPerChunk {
		last := first + pagesPerChunk - 1
		if last > total {
			last = total
		}

		var buf bytes.Buffer
		selection := []string{fmt.Sprintf("%d-%d", first, last)}
		if err := api.Trim(bytes.NewReader(pdf), &buf, selection, nil); err != nil {
			return nil, 0, fmt.Errorf("failed to cut pages %d-%d: %w", first, last, err)
		}

		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			FirstPage: first,
			LastPage:  last,
			Data:      buf.Bytes(),
		})
	}
	return chunks, total, nil
}

// PageText extracts per-page text locally, for the text-mode extraction
// variant that prompts the model with text instead of uploading page PDFs.
func PageText(pdf []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			text = ""
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

// ChunkText joins the page texts covered by a chunk, for text-mode
// prompting.
func ChunkText(pages []string, c Chunk) string {
	if c.FirstPage < 1 || c.FirstPage > len(pages) {
		return ""
	}
	last := c.LastPage
	if last > len(pages) {
		last = len(pages)
	}
	return strings.Join(pages[c.FirstPage-1:last], "\n")
}
