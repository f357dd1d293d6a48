package services

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"subly-reconciler/internal/config"
	"subly-reconciler/internal/ledger"
	"subly-reconciler/internal/models"
	"subly-reconciler/pkg/logging"
)

// ActivationScannerService is the safety-net path: it walks the program's
// transaction history backwards looking for subscription-activated events and
// resolves any first billing period the periodic scanner has not settled yet.
// The idempotency guard against the current ledger snapshot makes re-runs and
// overlap with the periodic path harmless.
type ActivationScannerService struct {
	ledger   LedgerClient
	resolver *Resolver
	journal  Journal
	cache    *ActivationCache

	startSlot       uint64
	fetchLimit      int
	maxTransactions int
	beforeSignature string
}

// NewActivationScannerService creates a new activation scanner service
func NewActivationScannerService(client LedgerClient, resolver *Resolver, journal Journal, cache *ActivationCache, cfg *config.Config) *ActivationScannerService {
	return &ActivationScannerService{
		ledger:          client,
		resolver:        resolver,
		journal:         journal,
		cache:           cache,
		startSlot:       cfg.NewSubsStartSlot,
		fetchLimit:      cfg.NewSubsFetchLimit,
		maxTransactions: cfg.NewSubsMaxTransactions,
		beforeSignature: cfg.NewSubsBeforeSignature,
	}
}

// Run executes one activation scan. History is paged backwards until the slot
// floor is reached, history is exhausted, or the transaction cap is hit.
func (s *ActivationScannerService) Run(ctx context.Context) (*RunResult, error) {
	if err := checkAuthority(ctx, s.ledger); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID: uuid.NewString(),
		Kind:  models.ScanKindActivation,
	}
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

	registry, err := s.ledger.FetchRegistry(ctx)
	if err != nil {
		finishScanRun(s.journal, run, result, err)
		return nil, err
	}
	serviceNames := registry.ServiceNameByID()

	var before solana.Signature
	if s.beforeSignature != "" {
		before, err = solana.SignatureFromBase58(s.beforeSignature)
		if err != nil {
			parseErr := fmt.Errorf("invalid NEW_SUBS_BEFORE_SIGNATURE: %w", err)
			finishScanRun(s.journal, run, result, parseErr)
			return nil, parseErr
		}
	}

	finished := false
	for !finished && result.TransactionsScanned < s.maxTransactions {
		infos, err := s.ledger.ProgramSignatures(ctx, before, s.fetchLimit)
		if err != nil {
			finishScanRun(s.journal, run, result, err)
			return nil, err
		}
		if len(infos) == 0 {
			break
		}

		for _, info := range infos {
			before = info.Signature
			if info.Failed {
				continue
			}
			if info.Slot < s.startSlot {
				finished = true
				break
			}

			events, err := s.ledger.TransactionEvents(ctx, info.Signature)
			if err != nil {
				finishScanRun(s.journal, run, result, err)
				return nil, err
			}
			result.TransactionsScanned++

			for _, activation := range activationEvents(events, info.Signature) {
				s.handleActivation(ctx, result, serviceNames, activation, info.Signature)
			}

			if result.TransactionsScanned >= s.maxTransactions {
				break
			}
		}
	}

	logging.Infof("Processed %d transactions for SubscriptionActivated events. %s",
		result.TransactionsScanned, result.Summary())
	finishScanRun(s.journal, run, result, nil)
	return result, nil
}

// handleActivation checks the idempotency guard against the current ledger
// snapshot and resolves the activation's first billing period if still unpaid.
func (s *ActivationScannerService) handleActivation(ctx context.Context, result *RunResult, serviceNames map[uint64]string, activation *ledger.SubscriptionActivated, sig solana.Signature) {
	logging.Infof("Payout for new subscription %d to user %s (tx %s)",
		activation.SubscriptionID, activation.User, sig)

	if s.cache.IsProcessed(ctx, activation.User.String(), activation.SubscriptionID) {
		logging.Infof("  -> Initial payout already recorded in cache. Skipping duplicate.")
		result.Skipped++
		return
	}

	snapshot, err := s.ledger.FetchUserSubscriptions(ctx, activation.User)
	if err != nil {
		logging.Errorf("  -> Failed to fetch user subscriptions for %s: %v", activation.User, err)
		result.Failures = append(result.Failures, EntryFailure{
			User:           activation.User.String(),
			SubscriptionID: activation.SubscriptionID,
			Stage:          StagePayout,
			Reason:         err.Error(),
		})
		return
	}
	if snapshot == nil {
		logging.Warnf("  -> User subscriptions account not found. Skipping payout.")
		result.Skipped++
		return
	}

	subscription := snapshot.FindSubscription(activation.SubscriptionID)
	if subscription == nil {
		logging.Warnf("  -> Subscription entry not found in account. Skipping payout.")
		result.Skipped++
		return
	}

	if AlreadyProcessed(subscription) {
		logging.Infof("  -> Initial payout already processed. Skipping duplicate.")
		s.cache.MarkProcessed(ctx, activation.User.String(), activation.SubscriptionID)
		result.Skipped++
		return
	}

	serviceName, ok := serviceNames[activation.ServiceID]
	if !ok {
		serviceName = fmt.Sprintf("service-%d", activation.ServiceID)
	}

	entry := ledger.DueEntry{
		User:           activation.User,
		SubscriptionID: activation.SubscriptionID,
		ServiceID:      activation.ServiceID,
		ServiceName:    serviceName,
		MonthlyPrice:   activation.MonthlyPrice,
		RecipientType:  activation.RecipientType,
		Receiver:       activation.Receiver,
		DueTs:          subscription.StartedAt,
	}

	result.EntriesFound++
	if failure := s.resolver.Resolve(ctx, result.RunID, models.ScanKindActivation, entry); failure != nil {
		result.Failures = append(result.Failures, *failure)
		return
	}
	result.Settled++
	s.cache.MarkProcessed(ctx, activation.User.String(), activation.SubscriptionID)
}

// AlreadyProcessed is the idempotency guard: it detects whether a settlement
// for the subscription's first period has been recorded, regardless of which
// scan path recorded it.
func AlreadyProcessed(subscription *ledger.UserSubscription) bool {
	return subscription.LastPaymentTs > subscription.StartedAt ||
		subscription.NextBillingTs > subscription.StartedAt+config.BillingPeriodSeconds
}

// activationEvents filters the activation events of one transaction, logging
// unrecognized payloads instead of dropping them.
func activationEvents(events []ledger.Event, sig solana.Signature) []*ledger.SubscriptionActivated {
	var activations []*ledger.SubscriptionActivated
	for _, event := range events {
		switch event.Kind {
		case ledger.EventSubscriptionActivated:
			activations = append(activations, event.Activated)
		case ledger.EventUnrecognized:
			logging.Warnf("unrecognized event in tx %s: %s", sig, event.Raw)
		}
	}
	return activations
}
