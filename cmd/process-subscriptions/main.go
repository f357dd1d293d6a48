package main

import (
	"context"
	"log"
	"os"

	"subly-reconciler/internal/config"
	"subly-reconciler/internal/database"
	"subly-reconciler/internal/ledger"
	"subly-reconciler/internal/services"
	"subly-reconciler/pkg/logging"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	client, err := ledger.NewClient(config.AppConfig)
	if err != nil {
		log.Fatal("Failed to create ledger client:", err)
	}

	journal := &services.GormJournal{}
	resolver := services.NewResolver(services.NewPayPalService(), services.NewSettlementService(client), journal)
	scanner := services.NewDueScannerService(client, resolver, journal,
		config.AppConfig.LookAheadSeconds, config.AppConfig.BatchSize)
	alerts := services.NewAlertService()

	ctx := context.Background()
	result, err := scanner.Run(ctx)
	if err != nil {
		logging.Errorf("Due scan aborted: %v", err)
		if result != nil {
			alerts.SendRunReport(ctx, result, err)
		}
		os.Exit(1)
	}

	alerts.SendRunReport(ctx, result, nil)
	logging.Infof("Due scan complete. %s", result.Summary())
	if result.Failed() {
		os.Exit(1)
	}
}
