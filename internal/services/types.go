package services

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"subly-reconciler/internal/database"
	"subly-reconciler/internal/ledger"
	"subly-reconciler/internal/models"
)

// LedgerClient is the subset of the ledger client the reconciliation services
// depend on. Satisfied by *ledger.Client; tests substitute a fake.
type LedgerClient interface {
	WalletAddress() solana.PublicKey
	FetchConfig(ctx context.Context) (*ledger.Config, error)
	FetchRegistry(ctx context.Context) (*ledger.SubscriptionRegistry, error)
	FetchUserSubscriptions(ctx context.Context, user solana.PublicKey) (*ledger.UserSubscriptions, error)
	ListUserSubscriptionAccounts(ctx context.Context) ([]solana.PublicKey, error)
	FindDueSubscriptions(ctx context.Context, lookAheadSeconds int64, accounts []solana.PublicKey) (solana.Signature, []ledger.Event, error)
	RecordPayment(ctx context.Context, user solana.PublicKey, subscriptionID uint64, paymentTs *int64) (solana.Signature, *ledger.SubscriptionPaymentRecorded, error)
	ProgramSignatures(ctx context.Context, before solana.Signature, limit int) ([]ledger.SignatureInfo, error)
	TransactionEvents(ctx context.Context, sig solana.Signature) ([]ledger.Event, error)
}

// PayoutGateway is the provider-facing side of the resolution pipeline.
// Satisfied by *PayPalService.
type PayoutGateway interface {
	Enabled() bool
	CreatePayout(ctx context.Context, req PayoutRequest) (string, error)
}

// Journal persists scan runs and payout records for audit and the ops API.
// Journal failures never decide settlement; they are logged and tolerated.
type Journal interface {
	CreateScanRun(run *models.ScanRun) error
	UpdateScanRun(run *models.ScanRun) error
	CreatePayoutRecord(record *models.PayoutRecord) error
	UpdatePayoutRecord(record *models.PayoutRecord) error
}

// GormJournal is the production journal backed by the database package.
type GormJournal struct{}

func (GormJournal) CreateScanRun(run *models.ScanRun) error {
	return database.CreateScanRun(run)
}

func (GormJournal) UpdateScanRun(run *models.ScanRun) error {
	return database.UpdateScanRun(run)
}

func (GormJournal) CreatePayoutRecord(record *models.PayoutRecord) error {
	return database.CreatePayoutRecord(record)
}

func (GormJournal) UpdatePayoutRecord(record *models.PayoutRecord) error {
	return database.UpdatePayoutRecord(record)
}

// EntryFailure records one due entry that could not be resolved.
type EntryFailure struct {
	User           string `json:"user"`
	SubscriptionID uint64 `json:"subscription_id"`
	Stage          string `json:"stage"` // payout or settlement
	Reason         string `json:"reason"`
}

// RunResult is the structured outcome of one scanner run. The process entry
// point maps it to an exit code; nothing in here calls os.Exit.
type RunResult struct {
	RunID               string         `json:"run_id"`
	Kind                string         `json:"kind"`
	AccountsScanned     int            `json:"accounts_scanned"`
	TransactionsScanned int            `json:"transactions_scanned"`
	EntriesFound        int            `json:"entries_found"`
	Settled             int            `json:"settled"`
	Skipped             int            `json:"skipped"`
	Failures            []EntryFailure `json:"failures"`
}

// Failed reports whether any entry failed to resolve.
func (r *RunResult) Failed() bool {
	return len(r.Failures) > 0
}

// Summary renders a one-line run summary for logs and reports.
func (r *RunResult) Summary() string {
	return fmt.Sprintf("%s scan %s: %d entries, %d settled, %d skipped, %d failed",
		r.Kind, r.RunID, r.EntriesFound, r.Settled, r.Skipped, len(r.Failures))
}
