package services

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"subly-reconciler/internal/ledger"
	"subly-reconciler/pkg/logging"
)

// SettlementService writes payment-recorded instructions back to the ledger.
type SettlementService struct {
	ledger LedgerClient
}

// NewSettlementService creates a new settlement service
func NewSettlementService(client LedgerClient) *SettlementService {
	return &SettlementService{ledger: client}
}

// Record settles one billing period on the ledger. A nil paymentTs lets the
// program use its own clock. The ledger advances lastPaymentTs, recomputes
// nextBillingTs and may transition a PendingCancellation subscription to
// Cancelled; the decoded event carries the resulting status.
func (s *SettlementService) Record(ctx context.Context, user solana.PublicKey, subscriptionID uint64, paymentTs *int64) (solana.Signature, *ledger.SubscriptionPaymentRecorded, error) {
	sig, event, err := s.ledger.RecordPayment(ctx, user, subscriptionID, paymentTs)
	if err != nil {
		return sig, nil, fmt.Errorf("failed to record payment for subscription %d of %s: %w", subscriptionID, user, err)
	}

	if event != nil {
		logging.Infof("Payment recorded on-chain. Tx: %s (subscription %d, status %s)", sig, subscriptionID, event.Status)
	} else {
		logging.Infof("Payment recorded on-chain. Tx: %s (subscription %d)", sig, subscriptionID)
	}
	return sig, event, nil
}
