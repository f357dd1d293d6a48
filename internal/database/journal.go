package database

import (
	"subly-reconciler/internal/models"
)

// CreateScanRun inserts a new scan run row.
func CreateScanRun(run *models.ScanRun) error {
	return DB.Create(run).Error
}

// UpdateScanRun saves the final counters of a scan run.
func UpdateScanRun(run *models.ScanRun) error {
	return DB.Save(run).Error
}

// CreatePayoutRecord inserts a new payout journal entry.
func CreatePayoutRecord(record *models.PayoutRecord) error {
	return DB.Create(record).Error
}

// UpdatePayoutRecord saves the current state of a payout journal entry.
func UpdatePayoutRecord(record *models.PayoutRecord) error {
	return DB.Save(record).Error
}

// GetRecentScanRuns returns the most recent scan runs, newest first.
func GetRecentScanRuns(limit int) ([]models.ScanRun, error) {
	var runs []models.ScanRun
	err := DB.Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRecentPayoutRecords returns the most recent payout records, newest first.
func GetRecentPayoutRecords(limit int) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	err := DB.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

// GetPayoutRecordsByRun returns all payout records of one run.
func GetPayoutRecordsByRun(runID string) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	err := DB.Where("run_id = ?", runID).Order("id ASC").Find(&records).Error
	return records, err
}

// GetPayoutRecordsByUser returns a user's payout history, newest first.
func GetPayoutRecordsByUser(user string, limit int) ([]models.PayoutRecord, error) {
	var records []models.PayoutRecord
	err := DB.Where("\"user\" = ?", user).Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
