package api

import (
	"primanota/internal/api/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func SetupRouter(
	invoiceHandler *handlers.InvoiceHandler,
	statementHandler *handlers.StatementHandler,
) *fiber.App {
	app := fiber.New(fiber.Config{
		// Statement uploads can be large scanned PDFs
		BodyLimit: 50 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	invoices := api.Group("/invoices")
	invoices.Post("/import", invoiceHandler.ImportInvoices)

	statements := api.Group("/statements")
	statements.Post("/import", statementHandler.UploadStatement)
	statements.Get("/:id", statementHandler.GetBatch)
	statements.Post("/:id/extract", statementHandler.ExtractWindow)

	return app
}
