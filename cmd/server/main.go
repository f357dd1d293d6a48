package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"subly-reconciler/internal/api"
	"subly-reconciler/internal/config"
	"subly-reconciler/internal/database"
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

	// Initialize the shared ledger client
	if err := api.InitLedger(); err != nil {
		log.Fatal("Failed to initialize ledger client:", err)
	}

	// Set Gin mode
	gin.SetMode(config.AppConfig.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r)

	// Start server
	port := config.AppConfig.Port
	logging.Infof("Starting ops server on port %s", port)

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
