package services

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"subly-reconciler/internal/ledger"
	"subly-reconciler/internal/models"
	"subly-reconciler/pkg/logging"
)

// DueScannerService is the periodic reconciliation path: it sweeps every known
// user-subscriptions account for billing periods due within the look-ahead
// window and resolves each reported entry.
type DueScannerService struct {
	ledger   LedgerClient
	resolver *Resolver
	journal  Journal

	lookAheadSeconds int64
	batchSize        int
}

// NewDueScannerService creates a new due scanner service
func NewDueScannerService(client LedgerClient, resolver *Resolver, journal Journal, lookAheadSeconds int64, batchSize int) *DueScannerService {
	return &DueScannerService{
		ledger:           client,
		resolver:         resolver,
		journal:          journal,
		lookAheadSeconds: lookAheadSeconds,
		batchSize:        batchSize,
	}
}

// Run executes one due scan. Chunks are processed strictly sequentially, and
// entries within a chunk are resolved in the order the ledger returned them.
// Entry failures are accumulated in the result instead of aborting the run.
func (s *DueScannerService) Run(ctx context.Context) (*RunResult, error) {
	if err := checkAuthority(ctx, s.ledger); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID: uuid.NewString(),
		Kind:  models.ScanKindDue,
	}
	run := s.startRun(result)

	accounts, err := s.ledger.ListUserSubscriptionAccounts(ctx)
	if err != nil {
		s.finishRun(run, result, err)
		return nil, err
	}
	result.AccountsScanned = len(accounts)

	if len(accounts) == 0 {
		logging.Infof("No user subscription accounts found. Nothing to do.")
		s.finishRun(run, result, nil)
		return result, nil
	}

	logging.Infof("Scanning %d user subscription accounts with look-ahead %d seconds...",
		len(accounts), s.lookAheadSeconds)

	for _, batch := range ledger.ChunkAccounts(accounts, s.batchSize) {
		sig, events, err := s.ledger.FindDueSubscriptions(ctx, s.lookAheadSeconds, batch)
		if err != nil {
			s.finishRun(run, result, err)
			return nil, fmt.Errorf("due scan failed for account batch: %w", err)
		}

		entries := dueEntries(events, sig)
		if len(entries) == 0 {
			// Nothing due in this batch; a normal no-op.
			continue
		}

		logging.Infof("Found %d subscriptions due in tx %s", len(entries), sig)
		result.EntriesFound += len(entries)

		for _, entry := range entries {
			if failure := s.resolver.Resolve(ctx, result.RunID, models.ScanKindDue, entry); failure != nil {
				result.Failures = append(result.Failures, *failure)
			} else {
				result.Settled++
			}
		}
	}

	logging.Infof("Batch processing completed. %s", result.Summary())
	s.finishRun(run, result, nil)
	return result, nil
}

// dueEntries collects the entries of all SubscriptionsDue events in a
// transaction, logging unrecognized payloads instead of dropping them.
func dueEntries(events []ledger.Event, sig solana.Signature) []ledger.DueEntry {
	var entries []ledger.DueEntry
	for _, event := range events {
		switch event.Kind {
		case ledger.EventSubscriptionsDue:
			entries = append(entries, event.Due.Entries...)
		case ledger.EventUnrecognized:
			logging.Warnf("unrecognized event in due-scan tx %s: %s", sig, event.Raw)
		}
	}
	return entries
}

func (s *DueScannerService) startRun(result *RunResult) *models.ScanRun {
	run := &models.ScanRun{
		RunID:     result.RunID,
		Kind:      result.Kind,
		StartedAt: time.Now().Unix(),
	}
	if s.journal != nil {
		if err := s.journal.CreateScanRun(run); err != nil {
			logging.Errorf("Failed to create scan run journal entry: %v", err)
		}
	}
	return run
}

func (s *DueScannerService) finishRun(run *models.ScanRun, result *RunResult, runErr error) {
	finishScanRun(s.journal, run, result, runErr)
}

// finishScanRun copies the result counters into the journal row.
func finishScanRun(journal Journal, run *models.ScanRun, result *RunResult, runErr error) {
	run.FinishedAt = time.Now().Unix()
	run.AccountsScanned = result.AccountsScanned
	run.TransactionsScanned = result.TransactionsScanned
	run.EntriesFound = result.EntriesFound
	run.Settled = result.Settled
	run.Skipped = result.Skipped
	run.Failed = len(result.Failures)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if journal != nil {
		if err := journal.UpdateScanRun(run); err != nil {
			logging.Errorf("Failed to update scan run journal entry: %v", err)
		}
	}
}

// checkAuthority enforces the startup precondition that the signing wallet is
// the configured program authority. Mismatch aborts before any mutation.
func checkAuthority(ctx context.Context, client LedgerClient) error {
	cfg, err := client.FetchConfig(ctx)
	if err != nil {
		return err
	}
	wallet := client.WalletAddress()
	if !cfg.Authority.Equals(wallet) {
		return &ledger.PreconditionError{
			Reason: fmt.Sprintf("wallet %s is not the configured authority (%s); use the config authority wallet to run the batch",
				wallet, cfg.Authority),
		}
	}
	return nil
}
