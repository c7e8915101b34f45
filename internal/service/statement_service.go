package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"primanota/internal/estratto"
	"primanota/internal/models"
	"primanota/internal/repository"
	"primanota/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ModelFactory builds the extraction model for one statement. Text mode
// needs the document's page texts up front, so the model is constructed
// per PDF rather than per service.
type ModelFactory func(ctx context.Context, pdf []byte) (estratto.ExtractionModel, error)

type StatementService struct {
	batchRepo    *repository.BatchRepository
	txRepo       *repository.TransactionRepository
	modelFactory ModelFactory
	cfg          config.ImportConfig
	logger       *zap.Logger
}

func NewStatementService(
	batchRepo *repository.BatchRepository,
	txRepo *repository.TransactionRepository,
	modelFactory ModelFactory,
	cfg config.ImportConfig,
	logger *zap.Logger,
) *StatementService {
	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		logger.Warn("Failed to create upload directory", zap.Error(err))
	}
	return &StatementService{
		batchRepo:    batchRepo,
		txRepo:       txRepo,
		modelFactory: modelFactory,
		cfg:          cfg,
		logger:       logger,
	}
}

// CreateBatch stores the uploaded statement PDF and opens its import
// batch record.
func (s *StatementService) CreateBatch(ctx context.Context, accountID uuid.UUID, fileName string, data []byte) (*models.ImportBatch, error) {
	batchID := uuid.New()
	storedName := batchID.String() + ".pdf"
	path := filepath.Join(s.cfg.UploadDir, storedName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	now := time.Now()
	batch := &models.ImportBatch{
		ID:        batchID,
		AccountID: accountID,
		FileName:  fileName,
		FileURL:   "/uploads/" + storedName,
		Status:    models.BatchPending,
		Errors:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.batchRepo.Create(ctx, batch); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to create batch record: %w", err)
	}
	return batch, nil
}

// ExtractWindow processes one window of a statement's chunks and persists
// the window's transactions. The returned done event carries the cursor
// for the next round; intermediate events go through emit as they happen.
// Requests are stateless on the server side: the PDF is re-split every
// round, which is cheap and keeps the cursor the only shared state.
func (s *StatementService) ExtractWindow(ctx context.Context, batchID uuid.UUID, startChunk, maxChunks int, emit estratto.EventSink) (*estratto.Event, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch not found: %w", err)
	}

	pdf, err := os.ReadFile(filepath.Join(s.cfg.UploadDir, filepath.Base(batch.FileURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to read statement file: %w", err)
	}

	chunks, totalPages, err := estratto.SplitIntoChunks(pdf, s.cfg.PagesPerChunk)
	if err != nil {
		s.failBatch(ctx, batchID, err)
		return nil, err
	}
	if batch.TotalPages == 0 {
		if err := s.batchRepo.SetTotalPages(ctx, batchID, totalPages); err != nil {
			s.logger.Warn("Failed to record page count", zap.Error(err))
		}
	}

	model, err := s.modelFactory(ctx, pdf)
	if err != nil {
		s.failBatch(ctx, batchID, err)
		return nil, fmt.Errorf("failed to build extraction model: %w", err)
	}

	if maxChunks < 1 {
		maxChunks = s.cfg.MaxChunksPerWindow
	}
	adapter := estratto.NewAdapter(model, s.cfg.ChunkRetries, s.cfg.ChunkDelay, s.logger)
	processor := estratto.NewWindowProcessor(adapter, s.cfg.ChunkDelay, s.logger)

	done := processor.Process(ctx, chunks, estratto.WindowRequest{
		BatchID:    batchID,
		AccountID:  batch.AccountID,
		StartChunk: startChunk,
		MaxChunks:  maxChunks,
	}, emit)

	// Save what this window found before answering; a failed group only
	// costs its own records.
	outcome := s.txRepo.InsertBatchIdempotent(ctx, done.Transactions, s.cfg.SaveBatchSize)
	done.Warnings = append(done.Warnings, outcome.Errors...)

	status := models.BatchProcessing
	if !done.HasMore {
		switch {
		case outcome.Saved == 0 && outcome.Duplicates == 0 && (len(done.FailedChunks) > 0 || outcome.Failed > 0):
			status = models.BatchFailed
		case len(done.FailedChunks) > 0 || outcome.Failed > 0:
			status = models.BatchCompletedWithErrors
		default:
			status = models.BatchCompleted
		}
	}
	if err := s.batchRepo.UpdateProgress(ctx, batchID, status, outcome.Saved, outcome.Duplicates, outcome.Failed, done.Warnings); err != nil {
		s.logger.Warn("Failed to update batch progress", zap.Error(err))
	}

	s.logger.Info("Window extracted",
		zap.String("batch_id", batchID.String()),
		zap.Int("start_chunk", done.StartChunk),
		zap.Int("end_chunk", done.EndChunk),
		zap.Bool("has_more", done.HasMore),
		zap.Int("saved", outcome.Saved),
		zap.Int("duplicates", outcome.Duplicates),
	)
	return &done, nil
}

// BatchWithTransactions returns a batch record together with its saved
// transactions, newest first.
func (s *StatementService) BatchWithTransactions(ctx context.Context, batchID uuid.UUID) (*models.ImportBatch, []models.BankTransaction, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("batch not found: %w", err)
	}
	transactions, err := s.txRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return batch, transactions, nil
}

func (s *StatementService) failBatch(ctx context.Context, batchID uuid.UUID, cause error) {
	err := s.batchRepo.UpdateProgress(ctx, batchID, models.BatchFailed, 0, 0, 0, []string{cause.Error()})
	if err != nil {
		s.logger.Warn("Failed to mark batch failed", zap.Error(err))
	}
}

// VisionModelFactory returns a factory that reuses one attachment-based
// model for every statement.
func VisionModelFactory(model estratto.ExtractionModel) ModelFactory {
	return func(ctx context.Context, pdf []byte) (estratto.ExtractionModel, error) {
		return model, nil
	}
}

// TextModelFactory extracts page text locally and prompts with it instead
// of uploading chunk PDFs.
func TextModelFactory(cfg *config.GigaChatConfig, logger *zap.Logger) ModelFactory {
	return func(ctx context.Context, pdf []byte) (estratto.ExtractionModel, error) {
		pages, err := estratto.PageText(pdf)
		if err != nil {
			return nil, err
		}
		return estratto.NewTextModel(ctx, cfg, pages, logger)
	}
}
