package handlers

import (
	"bufio"
	"context"
	"io"
	"strconv"

	"primanota/internal/dto"
	"primanota/internal/estratto"
	"primanota/internal/service"
	"primanota/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type StatementHandler struct {
	statementService *service.StatementService
	cfg              *config.ImportConfig
	logger           *zap.Logger
}

func NewStatementHandler(statementService *service.StatementService, cfg *config.ImportConfig, logger *zap.Logger) *StatementHandler {
	return &StatementHandler{statementService: statementService, cfg: cfg, logger: logger}
}

// UploadStatement stores the PDF and registers a pending import batch.
// Extraction itself happens window by window through ExtractWindow.
func (h *StatementHandler) UploadStatement(c *fiber.Ctx) error {
	ownerID, err := uuid.Parse(c.FormValue("account_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Valid account_id is required",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read file",
		})
	}

	batch, err := h.statementService.CreateBatch(c.Context(), ownerID, file.Filename, data)
	if err != nil {
		h.logger.Error("Statement upload failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to register statement",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewBatchResponse(batch))
}

// GetBatch returns one import batch and its saved transactions.
func (h *StatementHandler) GetBatch(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Valid batch id is required",
		})
	}

	batch, transactions, err := h.statementService.BatchWithTransactions(c.Context(), batchID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Batch not found",
		})
	}
	return c.JSON(fiber.Map{
		"batch":        dto.NewBatchResponse(batch),
		"transactions": transactions,
	})
}

// ExtractWindow runs one extraction window and streams progress as NDJSON.
// The client follows next_start_chunk from the final done event to resume.
func (h *StatementHandler) ExtractWindow(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Valid batch id is required",
		})
	}

	startChunk, err := strconv.Atoi(c.Query("start_chunk", "0"))
	if err != nil || startChunk < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "start_chunk must be a non-negative integer",
		})
	}
	maxChunks, err := strconv.Atoi(c.Query("max_chunks", strconv.Itoa(h.cfg.MaxChunksPerWindow)))
	if err != nil || maxChunks < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "max_chunks must be a positive integer",
		})
	}
	if maxChunks > h.cfg.MaxChunksPerWindow {
		maxChunks = h.cfg.MaxChunksPerWindow
	}

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	// The stream writer runs after this handler returns, so everything it
	// needs must be captured here; the fiber context is no longer valid.
	svc := h.statementService
	logger := h.logger
	timeout := h.cfg.WindowTimeout

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// A failed write or flush means the client is gone; cancelling the
		// context aborts the window instead of processing chunks nobody
		// will read.
		emit := func(ev estratto.Event) {
			if err := estratto.WriteEvent(w, ev); err != nil {
				logger.Warn("Progress write failed, aborting window", zap.Error(err))
				cancel()
				return
			}
			if err := w.Flush(); err != nil {
				logger.Warn("Progress flush failed, aborting window", zap.Error(err))
				cancel()
			}
		}

		done, err := svc.ExtractWindow(ctx, batchID, startChunk, maxChunks, emit)
		if err != nil {
			logger.Error("Extraction window failed",
				zap.String("batch_id", batchID.String()),
				zap.Error(err))
			emit(estratto.Event{Type: estratto.EventChunkError, Error: err.Error()})
			return
		}
		emit(*done)
	}))
	return nil
}
