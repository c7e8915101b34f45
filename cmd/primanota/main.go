package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"primanota/internal/api"
	"primanota/internal/api/handlers"
	"primanota/internal/estratto"
	"primanota/internal/fattura"
	"primanota/internal/repository"
	"primanota/internal/service"
	"primanota/pkg/config"
	"primanota/pkg/logger"
	"primanota/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting primanota service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize repositories
	invoiceRepo := repository.NewInvoiceRepository(db, appLogger)
	batchRepo := repository.NewBatchRepository(db, appLogger)
	txRepo := repository.NewTransactionRepository(db, appLogger)

	// Initialize services
	invoiceService := service.NewInvoiceService(fattura.NewRouter(appLogger), invoiceRepo, appLogger)

	var modelFactory service.ModelFactory
	if cfg.Import.TextMode {
		appLogger.Info("Using text-mode extraction")
		modelFactory = service.TextModelFactory(&cfg.GigaChat, appLogger)
	} else {
		model, err := estratto.NewGigaChatModel(&cfg.GigaChat, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize extraction model", zap.Error(err))
		}
		modelFactory = service.VisionModelFactory(model)
	}

	statementService := service.NewStatementService(batchRepo, txRepo, modelFactory, cfg.Import, appLogger)

	// Initialize handlers
	invoiceHandler := handlers.NewInvoiceHandler(invoiceService, appLogger)
	statementHandler := handlers.NewStatementHandler(statementService, &cfg.Import, appLogger)

	// Setup router
	app := api.SetupRouter(invoiceHandler, statementHandler)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
