package api

import (
	"github.com/gin-gonic/gin"

	"subly-reconciler/internal/config"
	"subly-reconciler/internal/ledger"
	"subly-reconciler/internal/middleware"
)

// Ledger is the shared read-only ledger client used by the status endpoints.
var Ledger *ledger.Client

// InitLedger initializes the shared ledger client
func InitLedger() error {
	client, err := ledger.NewClient(config.AppConfig)
	if err != nil {
		return err
	}
	Ledger = client
	return nil
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine) {
	// Ops route group (requires the shared API key)
	ops := r.Group("/api")
	ops.Use(middleware.OpsAuthMiddleware())
	{
		ops.GET("/runs", GetRecentRuns)
		ops.GET("/runs/:run_id/payouts", GetRunPayouts)
		ops.GET("/payouts", GetRecentPayouts)
		ops.GET("/subscriptions/status", GetSubscriptionStatus)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "subly-reconciler",
		})
	})
}
