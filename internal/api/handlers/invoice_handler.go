package handlers

import (
	"io"

	"primanota/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type InvoiceHandler struct {
	invoiceService *service.InvoiceService
	logger         *zap.Logger
}

func NewInvoiceHandler(invoiceService *service.InvoiceService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService, logger: logger}
}

// ImportInvoices accepts one .xml, .p7m or .zip upload and returns the
// per-file parse results plus the saved/duplicate/failed summary.
func (h *InvoiceHandler) ImportInvoices(c *fiber.Ctx) error {
	ownerID, err := accountID(c)
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

	summary, err := h.invoiceService.ImportFile(c.Context(), ownerID, file.Filename, data)
	if err != nil {
		h.logger.Error("Invoice import failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to import invoices",
		})
	}
	return c.JSON(summary)
}

func accountID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.FormValue("account_id"))
}
