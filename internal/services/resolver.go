package services

import (
	"context"
	"fmt"

	"subly-reconciler/internal/ledger"
	"subly-reconciler/internal/models"
	"subly-reconciler/pkg/logging"
)

// Resolution stages reported in failures.
const (
	StagePayout     = "payout"
	StageSettlement = "settlement"
)

// Resolver runs the shared resolution pipeline: payout first, settlement only
// after the payout call completed without error. A failed payout never writes
// settlement, so the billing period stays due and is retried by a later scan.
type Resolver struct {
	payout     PayoutGateway
	settlement *SettlementService
	journal    Journal
}

// NewResolver creates a new resolver
func NewResolver(payout PayoutGateway, settlement *SettlementService, journal Journal) *Resolver {
	return &Resolver{
		payout:     payout,
		settlement: settlement,
		journal:    journal,
	}
}

// Resolve processes one due entry end to end. The returned failure is nil on
// success; resolution failures are returned as values so the caller can
// accumulate them without aborting the run.
func (r *Resolver) Resolve(ctx context.Context, runID, source string, entry ledger.DueEntry) *EntryFailure {
	logging.Infof("Processing subscription %d for user %s (%s) due at %d",
		entry.SubscriptionID, entry.User, entry.ServiceName, entry.DueTs)

	record := &models.PayoutRecord{
		RunID:          runID,
		Source:         source,
		User:           entry.User.String(),
		SubscriptionID: entry.SubscriptionID,
		ServiceID:      entry.ServiceID,
		ServiceName:    entry.ServiceName,
		AmountMicros:   entry.MonthlyPrice,
		AmountUSD:      MicroToUSDString(entry.MonthlyPrice),
		RecipientType:  entry.RecipientType,
		Receiver:       entry.Receiver,
		DueTs:          entry.DueTs,
		Status:         models.PayoutStatusPending,
	}
	r.journalCreate(record)

	batchID, err := r.payout.CreatePayout(ctx, PayoutRequest{
		RecipientType:  entry.RecipientType,
		Receiver:       entry.Receiver,
		AmountMicros:   entry.MonthlyPrice,
		ServiceName:    entry.ServiceName,
		SubscriptionID: entry.SubscriptionID,
	})
	if err != nil {
		record.Status = models.PayoutStatusFailed
		record.FailureReason = err.Error()
		r.journalUpdate(record)
		logging.Errorf("Payout failed for subscription %d of %s: %v", entry.SubscriptionID, entry.User, err)
		return &EntryFailure{
			User:           entry.User.String(),
			SubscriptionID: entry.SubscriptionID,
			Stage:          StagePayout,
			Reason:         err.Error(),
		}
	}

	record.PayPalBatchID = batchID
	if r.payout.Enabled() {
		record.Status = models.PayoutStatusPaid
	} else {
		record.Status = models.PayoutStatusSkipped
	}
	r.journalUpdate(record)

	sig, event, err := r.settlement.Record(ctx, entry.User, entry.SubscriptionID, nil)
	if err != nil {
		record.Status = models.PayoutStatusFailed
		record.FailureReason = fmt.Sprintf("payout succeeded but settlement failed: %v", err)
		r.journalUpdate(record)
		// The period is still marked due on the ledger, so a later scan will
		// pay it out again. Surface this loudly for manual reconciliation.
		logging.Errorf("SETTLEMENT FAILED AFTER PAYOUT for subscription %d of %s (batch %s): %v",
			entry.SubscriptionID, entry.User, batchID, err)
		return &EntryFailure{
			User:           entry.User.String(),
			SubscriptionID: entry.SubscriptionID,
			Stage:          StageSettlement,
			Reason:         err.Error(),
		}
	}

	record.SettlementSignature = sig.String()
	if event != nil {
		record.SettlementStatus = event.Status
	}
	record.Status = models.PayoutStatusSettled
	r.journalUpdate(record)
	return nil
}

func (r *Resolver) journalCreate(record *models.PayoutRecord) {
	if r.journal == nil {
		return
	}
	if err := r.journal.CreatePayoutRecord(record); err != nil {
		logging.Errorf("Failed to write payout journal entry: %v", err)
	}
}

func (r *Resolver) journalUpdate(record *models.PayoutRecord) {
	if r.journal == nil {
		return
	}
	if err := r.journal.UpdatePayoutRecord(record); err != nil {
		logging.Errorf("Failed to update payout journal entry: %v", err)
	}
}
