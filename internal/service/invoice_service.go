package service

import (
	"context"
	"errors"
	"fmt"

	"primanota/internal/fattura"
	"primanota/internal/models"
	"primanota/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxSummaryErrors bounds the error list returned to the caller.
const maxSummaryErrors = 20

// ImportSummary reports one invoice import: per-file outcomes plus the
// saved / duplicate / failed counts. Raw XML stays on the results for
// inspection; it is never the primary message.
type ImportSummary struct {
	Saved      int                  `json:"saved"`
	Duplicates int                  `json:"duplicates"`
	Failed     int                  `json:"failed"`
	Errors     []string             `json:"errors,omitempty"`
	Results    []models.ParseResult `json:"results"`
}

type InvoiceService struct {
	router      *fattura.Router
	invoiceRepo *repository.InvoiceRepository
	logger      *zap.Logger
}

func NewInvoiceService(router *fattura.Router, invoiceRepo *repository.InvoiceRepository, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{router: router, invoiceRepo: invoiceRepo, logger: logger}
}

// ImportFile runs one uploaded file (XML, P7M or ZIP) through extraction
// and persists every successfully parsed document. Failures are captured
// per entry and never abort the batch.
func (s *InvoiceService) ImportFile(ctx context.Context, ownerID uuid.UUID, fileName string, data []byte) (*ImportSummary, error) {
	results := s.router.ParseFile(fileName, data)

	summary := &ImportSummary{Results: results}
	for i := range results {
		result := &results[i]
		if result.Error != "" {
			summary.Failed++
			summary.addError(fmt.Sprintf("%s: %s", result.FileName, result.Error))
			continue
		}

		if _, err := s.invoiceRepo.InsertWithLines(ctx, ownerID, result); err != nil {
			if errors.Is(err, repository.ErrDuplicateInvoice) {
				summary.Duplicates++
				if existingID, lookupErr := s.invoiceRepo.GetByHash(ctx, ownerID, result.ContentHash); lookupErr == nil && existingID != uuid.Nil {
					s.logger.Info("Invoice already imported",
						zap.String("file", result.FileName),
						zap.String("invoice_id", existingID.String()),
					)
				}
				continue
			}
			summary.Failed++
			summary.addError(fmt.Sprintf("%s: save failed: %v", result.FileName, err))
			s.logger.Error("Failed to store invoice",
				zap.String("file", result.FileName),
				zap.Error(err),
			)
			continue
		}
		summary.Saved++
	}

	s.logger.Info("Invoice import finished",
		zap.String("file", fileName),
		zap.Int("saved", summary.Saved),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *ImportSummary) addError(msg string) {
	if len(s.Errors) < maxSummaryErrors {
		s.Errors = append(s.Errors, msg)
	}
}
