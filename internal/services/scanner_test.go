package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subly-reconciler/internal/config"
	"subly-reconciler/internal/ledger"
	"subly-reconciler/internal/models"
)

// recipientInfo is the payout destination the ledger reports per subscription.
type recipientInfo struct {
	recipientType string
	receiver      string
}

// fakeTx is one entry in the fake program history, newest first.
type fakeTx struct {
	sig    solana.Signature
	slot   uint64
	failed bool
	events []ledger.Event
}

// fakeLedger implements LedgerClient in memory with the program's settlement
// semantics: recording a payment stamps lastPaymentTs, advances nextBillingTs
// by one billing period, and finalizes a pending cancellation once past its
// deadline.
type fakeLedger struct {
	wallet     solana.PublicKey
	authority  solana.PublicKey
	now        int64
	registry   *ledger.SubscriptionRegistry
	users      map[solana.PublicKey]*ledger.UserSubscriptions
	recipients map[uint64]recipientInfo
	history    []fakeTx

	recordErr   map[uint64]error
	recordCalls []uint64
	nextSig     byte
}

func newFakeLedger(now int64) *fakeLedger {
	wallet := solana.NewWallet().PublicKey()
	return &fakeLedger{
		wallet:    wallet,
		authority: wallet,
		now:       now,
		registry: &ledger.SubscriptionRegistry{
			Services: []ledger.SubscriptionService{
				{ID: 1, Name: "netflix", MonthlyPrice: 15_490_000},
				{ID: 2, Name: "spotify", MonthlyPrice: 12_990_000},
			},
		},
		users:      make(map[solana.PublicKey]*ledger.UserSubscriptions),
		recipients: make(map[uint64]recipientInfo),
		recordErr:  make(map[uint64]error),
	}
}

func (f *fakeLedger) addSubscription(user solana.PublicKey, sub ledger.UserSubscription, recipient recipientInfo) {
	account, ok := f.users[user]
	if !ok {
		account = &ledger.UserSubscriptions{Owner: user}
		f.users[user] = account
	}
	account.Subscriptions = append(account.Subscriptions, sub)
	f.recipients[sub.ID] = recipient
}

func (f *fakeLedger) subscription(user solana.PublicKey, id uint64) *ledger.UserSubscription {
	account, ok := f.users[user]
	if !ok {
		return nil
	}
	return account.FindSubscription(id)
}

func (f *fakeLedger) newSignature() solana.Signature {
	f.nextSig++
	var sig solana.Signature
	sig[0] = f.nextSig
	return sig
}

func (f *fakeLedger) WalletAddress() solana.PublicKey { return f.wallet }

func (f *fakeLedger) FetchConfig(ctx context.Context) (*ledger.Config, error) {
	return &ledger.Config{Authority: f.authority}, nil
}

func (f *fakeLedger) FetchRegistry(ctx context.Context) (*ledger.SubscriptionRegistry, error) {
	return f.registry, nil
}

func (f *fakeLedger) FetchUserSubscriptions(ctx context.Context, user solana.PublicKey) (*ledger.UserSubscriptions, error) {
	account, ok := f.users[user]
	if !ok {
		return nil, nil
	}
	return account, nil
}

func (f *fakeLedger) ListUserSubscriptionAccounts(ctx context.Context) ([]solana.PublicKey, error) {
	var accounts []solana.PublicKey
	for user := range f.users {
		accounts = append(accounts, user)
	}
	return accounts, nil
}

func (f *fakeLedger) FindDueSubscriptions(ctx context.Context, lookAheadSeconds int64, accounts []solana.PublicKey) (solana.Signature, []ledger.Event, error) {
	cutoff := f.now + lookAheadSeconds
	due := &ledger.SubscriptionsDue{}
	for _, user := range accounts {
		account, ok := f.users[user]
		if !ok {
			continue
		}
		for _, sub := range account.Subscriptions {
			if sub.Status == ledger.StatusCancelled || sub.NextBillingTs > cutoff {
				continue
			}
			serviceNames := f.registry.ServiceNameByID()
			recipient := f.recipients[sub.ID]
			due.Entries = append(due.Entries, ledger.DueEntry{
				User:           user,
				SubscriptionID: sub.ID,
				ServiceID:      sub.ServiceID,
				ServiceName:    serviceNames[sub.ServiceID],
				MonthlyPrice:   sub.MonthlyPrice,
				RecipientType:  recipient.recipientType,
				Receiver:       recipient.receiver,
				DueTs:          sub.NextBillingTs,
			})
		}
	}
	return f.newSignature(), []ledger.Event{{Kind: ledger.EventSubscriptionsDue, Due: due}}, nil
}

func (f *fakeLedger) RecordPayment(ctx context.Context, user solana.PublicKey, subscriptionID uint64, paymentTs *int64) (solana.Signature, *ledger.SubscriptionPaymentRecorded, error) {
	if err := f.recordErr[subscriptionID]; err != nil {
		return solana.Signature{}, nil, err
	}

	sub := f.subscription(user, subscriptionID)
	if sub == nil {
		return solana.Signature{}, nil, &ledger.ProgramError{Detail: "subscription not found"}
	}

	f.recordCalls = append(f.recordCalls, subscriptionID)
	paidTs := f.now
	if paymentTs != nil {
		paidTs = *paymentTs
	}
	sub.LastPaymentTs = paidTs
	if sub.Status == ledger.StatusPendingCancellation && paidTs >= sub.PendingUntilTs {
		sub.Status = ledger.StatusCancelled
	} else {
		sub.NextBillingTs += config.BillingPeriodSeconds
	}

	sig := f.newSignature()
	return sig, &ledger.SubscriptionPaymentRecorded{
		Operator:       f.wallet,
		User:           user,
		SubscriptionID: subscriptionID,
		Status:         sub.Status.String(),
		PaidTs:         paidTs,
	}, nil
}

func (f *fakeLedger) ProgramSignatures(ctx context.Context, before solana.Signature, limit int) ([]ledger.SignatureInfo, error) {
	start := 0
	if !before.IsZero() {
		for i, tx := range f.history {
			if tx.sig == before {
				start = i + 1
				break
			}
		}
	}
	var infos []ledger.SignatureInfo
	for i := start; i < len(f.history) && len(infos) < limit; i++ {
		infos = append(infos, ledger.SignatureInfo{
			Signature: f.history[i].sig,
			Slot:      f.history[i].slot,
			Failed:    f.history[i].failed,
		})
	}
	return infos, nil
}

func (f *fakeLedger) TransactionEvents(ctx context.Context, sig solana.Signature) ([]ledger.Event, error) {
	for _, tx := range f.history {
		if tx.sig == sig {
			return tx.events, nil
		}
	}
	return nil, &ledger.TransportError{Op: "getTransaction", Err: errors.New("not found")}
}

// fakePayout implements PayoutGateway with per-subscription failure injection.
type fakePayout struct {
	enabled bool
	failFor map[uint64]error
	calls   []uint64
}

func newFakePayout() *fakePayout {
	return &fakePayout{enabled: true, failFor: make(map[uint64]error)}
}

func (p *fakePayout) Enabled() bool { return p.enabled }

func (p *fakePayout) CreatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	if err := p.failFor[req.SubscriptionID]; err != nil {
		return "", err
	}
	p.calls = append(p.calls, req.SubscriptionID)
	return fmt.Sprintf("batch-%d", req.SubscriptionID), nil
}

// memJournal records journal writes in memory.
type memJournal struct {
	runs    []*models.ScanRun
	records []*models.PayoutRecord
}

func (j *memJournal) CreateScanRun(run *models.ScanRun) error { j.runs = append(j.runs, run); return nil }
func (j *memJournal) UpdateScanRun(run *models.ScanRun) error { return nil }
func (j *memJournal) CreatePayoutRecord(record *models.PayoutRecord) error {
	j.records = append(j.records, record)
	return nil
}
func (j *memJournal) UpdatePayoutRecord(record *models.PayoutRecord) error { return nil }

const testNow = int64(1_750_000_000)

func newDueHarness(chain *fakeLedger) (*DueScannerService, *fakePayout, *memJournal) {
	payout := newFakePayout()
	journal := &memJournal{}
	resolver := NewResolver(payout, NewSettlementService(chain), journal)
	scanner := NewDueScannerService(chain, resolver, journal, config.DefaultLookAheadSeconds, config.DefaultBatchSize)
	return scanner, payout, journal
}

func TestDueScanWindowBoundary(t *testing.T) {
	chain := newFakeLedger(testNow)
	user := solana.NewWallet().PublicKey()
	lookAhead := int64(config.DefaultLookAheadSeconds)

	chain.addSubscription(user, ledger.UserSubscription{
		ID: 1, ServiceID: 1, MonthlyPrice: 15_490_000,
		StartedAt:     testNow - config.BillingPeriodSeconds,
		LastPaymentTs: testNow - config.BillingPeriodSeconds,
		NextBillingTs: testNow + lookAhead - 1,
		Status:        ledger.StatusActive,
	}, recipientInfo{"EMAIL", "a@example.com"})
	chain.addSubscription(user, ledger.UserSubscription{
		ID: 2, ServiceID: 2, MonthlyPrice: 12_990_000,
		StartedAt:     testNow - config.BillingPeriodSeconds,
		LastPaymentTs: testNow - config.BillingPeriodSeconds,
		NextBillingTs: testNow + lookAhead + 1,
		Status:        ledger.StatusActive,
	}, recipientInfo{"EMAIL", "b@example.com"})

	scanner, payout, _ := newDueHarness(chain)
	result, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.EntriesFound)
	assert.Equal(t, 1, result.Settled)
	assert.False(t, result.Failed())
	assert.Equal(t, []uint64{1}, payout.calls)

	inside := chain.subscription(user, 1)
	assert.Equal(t, testNow, inside.LastPaymentTs)
	assert.Equal(t, testNow+lookAhead-1+config.BillingPeriodSeconds, inside.NextBillingTs)

	outside := chain.subscription(user, 2)
	assert.Equal(t, testNow-config.BillingPeriodSeconds, outside.LastPaymentTs)
}

func TestDueScanSecondRunFindsNothing(t *testing.T) {
	chain := newFakeLedger(testNow)
	user := solana.NewWallet().PublicKey()
	chain.addSubscription(user, ledger.UserSubscription{
		ID: 1, ServiceID: 1, MonthlyPrice: 15_490_000,
		StartedAt:     testNow - config.BillingPeriodSeconds,
		NextBillingTs: testNow,
		Status:        ledger.StatusActive,
	}, recipientInfo{"EMAIL", "a@example.com"})

	scanner, payout, _ := newDueHarness(chain)
	first, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Settled)

	second, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.EntriesFound)
	assert.Len(t, payout.calls, 1)
}

func TestDueScanPayoutFailureSkipsSettlement(t *testing.T) {
	chain := newFakeLedger(testNow)
	userA := solana.NewWallet().PublicKey()
	userB := solana.NewWallet().PublicKey()
	chain.addSubscription(userA, ledger.UserSubscription{
		ID: 1, ServiceID: 1, MonthlyPrice: 15_490_000,
		NextBillingTs: testNow, Status: ledger.StatusActive,
	}, recipientInfo{"EMAIL", "a@example.com"})
	chain.addSubscription(userB, ledger.UserSubscription{
		ID: 2, ServiceID: 2, MonthlyPrice: 12_990_000,
		NextBillingTs: testNow, Status: ledger.StatusActive,
	}, recipientInfo{"EMAIL", "b@example.com"})

	scanner, payout, journal := newDueHarness(chain)
	payout.failFor[1] = &PayoutError{StatusCode: 422, Body: "RECEIVER_UNREGISTERED"}

	result, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.EntriesFound)
	assert.Equal(t, 1, result.Settled)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, StagePayout, result.Failures[0].Stage)
	assert.Equal(t, uint64(1), result.Failures[0].SubscriptionID)

	// The failed entry must not be settled so a later scan retries it.
	assert.Equal(t, []uint64{2}, chain.recordCalls)
	assert.Equal(t, int64(0), chain.subscription(userA, 1).LastPaymentTs)
	assert.Equal(t, testNow, chain.subscription(userB, 2).LastPaymentTs)

	var failedRecord *models.PayoutRecord
	for _, record := range journal.records {
		if record.SubscriptionID == 1 {
			failedRecord = record
		}
	}
	require.NotNil(t, failedRecord)
	assert.Equal(t, models.PayoutStatusFailed, failedRecord.Status)
}

func TestDueScanSettlementFailureReported(t *testing.T) {
	chain := newFakeLedger(testNow)
	user := solana.NewWallet().PublicKey()
	chain.addSubscription(user, ledger.UserSubscription{
		ID: 1, ServiceID: 1, MonthlyPrice: 15_490_000,
		NextBillingTs: testNow, Status: ledger.StatusActive,
	}, recipientInfo{"EMAIL", "a@example.com"})

	scanner, payout, _ := newDueHarness(chain)
	chain.recordErr[1] = &ledger.TransportError{Op: "sendTransaction", Err: errors.New("connection refused")}

	result, err := scanner.Run(context.Background())
	require.NoError(t, err)

	// Payout went out but the on-ledger settlement did not land.
	assert.Equal(t, []uint64{1}, payout.calls)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, StageSettlement, result.Failures[0].Stage)
	assert.Equal(t, 0, result.Settled)
}

func TestDueScanPendingCancellationFinalSettlement(t *testing.T) {
	chain := newFakeLedger(testNow)
	user := solana.NewWallet().PublicKey()
	chain.addSubscription(user, ledger.UserSubscription{
		ID: 1, ServiceID: 1, MonthlyPrice: 15_490_000,
		NextBillingTs:  testNow - 5,
		PendingUntilTs: testNow - 10,
		Status:         ledger.StatusPendingCancellation,
	}, recipientInfo{"EMAIL", "a@example.com"})

	scanner, _, _ := newDueHarness(chain)
	result, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Settled)
	assert.Equal(t, ledger.StatusCancelled, chain.subscription(user, 1).Status)

	// Cancelled subscriptions never come due again.
	second, err := scanner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.EntriesFound)
}

func TestDueScanAuthorityMismatch(t *testing.T) {
	chain := newFakeLedger(testNow)
	chain.authority = solana.NewWallet().PublicKey()

	scanner, payout, _ := newDueHarness(chain)
	_, err := scanner.Run(context.Background())

	var precondition *ledger.PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Empty(t, payout.calls)
}
