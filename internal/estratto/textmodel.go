package estratto

import (
	"context"
	"fmt"
	"strings"

	"primanota/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

// TextModel is the text-mode extraction variant: pages are read locally
// with go-fitz and the model is prompted with the chunk's text instead of a
// PDF attachment. Useful for born-digital statements where local text
// extraction is reliable and uploads are wasted bandwidth.
type TextModel struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	pages  []string
	logger *zap.Logger
}

func NewTextModel(ctx context.Context, cfg *config.GigaChatConfig, pages []string, logger *zap.Logger) (*TextModel, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = extractionPrompt
	model.Temperature = 0.1

	return &TextModel{client: client, model: model, pages: pages, logger: logger}, nil
}

func (m *TextModel) ExtractChunk(ctx context.Context, chunk Chunk) (*ModelResult, error) {
	text := ChunkText(m.pages, chunk)
	if strings.TrimSpace(text) == "" {
		// Nothing readable on these pages; not an error.
		return &ModelResult{RawText: "[]", FinishReason: "stop"}, nil
	}

	prompt := fmt.Sprintf("Testo delle pagine %d-%d dell'estratto conto:\n\n%s",
		chunk.FirstPage, chunk.LastPage, text)

	resp, err := m.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	})
	if err != nil {
		if strings.Contains(err.Error(), "429") {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	m.logger.Debug("Chunk extracted from local text",
		zap.Int("chunk", chunk.Index),
		zap.Int("text_length", len(content)),
	)
	// The client does not surface a finish reason; an unterminated JSON
	// array is caught downstream by the repair stage instead.
	return &ModelResult{RawText: content, FinishReason: "stop"}, nil
}

func (m *TextModel) Close() error {
	if m.client != nil {
		m.client.Close()
	}
	return nil
}
