package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"subly-reconciler/internal/database"
	"subly-reconciler/internal/response"
)

const defaultListLimit = 20

// limitParam reads the limit query parameter, clamped to a sane range.
func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// GetRecentRuns returns the most recent scan runs
func GetRecentRuns(c *gin.Context) {
	runs, err := database.GetRecentScanRuns(limitParam(c))
	if err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to get scan runs")
		return
	}
	response.SuccessJSON(c, runs)
}

// GetRunPayouts returns all payout records of one run
func GetRunPayouts(c *gin.Context) {
	runID := c.Param("run_id")
	if runID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "run_id is required")
		return
	}

	records, err := database.GetPayoutRecordsByRun(runID)
	if err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to get payout records")
		return
	}
	response.SuccessJSON(c, records)
}

// GetRecentPayouts returns recent payout records, optionally filtered by user
func GetRecentPayouts(c *gin.Context) {
	user := c.Query("user")

	var err error
	var records interface{}
	if user != "" {
		records, err = database.GetPayoutRecordsByUser(user, limitParam(c))
	} else {
		records, err = database.GetRecentPayoutRecords(limitParam(c))
	}
	if err != nil {
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to get payout records")
		return
	}
	response.SuccessJSON(c, records)
}
