package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"subly-reconciler/internal/config"
	"subly-reconciler/pkg/logging"
	"subly-reconciler/pkg/retry"
)

const (
	confirmPollInterval = 500 * time.Millisecond
	confirmTimeout      = 90 * time.Second

	// txFetchAttempts matches the log-availability race after confirmation:
	// a confirmed transaction may not be queryable for a short moment.
	txFetchAttempts = 5
	txFetchPause    = 200 * time.Millisecond
)

// SignatureInfo is one entry of the program's transaction history.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	Failed    bool
}

// Client wraps the ledger RPC connection together with the signing wallet and
// the derived program addresses.
type Client struct {
	rpc         *rpc.Client
	programID   solana.PublicKey
	wallet      solana.PrivateKey
	commitment  rpc.CommitmentType
	configPDA   solana.PublicKey
	registryPDA solana.PublicKey
	retryPolicy retry.Policy
}

// NewClient builds a ledger client from process configuration: RPC endpoint,
// signing keypair file, program id and commitment level.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.ProgramID == "" {
		return nil, fmt.Errorf("PROGRAM_ID is not set")
	}
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}

	wallet, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.WalletKeypair)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet keypair %s: %w", cfg.WalletKeypair, err)
	}

	configPDA, err := ConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	registryPDA, err := RegistryAddress(programID)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpc:         rpc.New(cfg.RPCURL),
		programID:   programID,
		wallet:      wallet,
		commitment:  commitmentFromString(cfg.Commitment),
		configPDA:   configPDA,
		registryPDA: registryPDA,
		retryPolicy: retry.DefaultPolicy,
	}, nil
}

func commitmentFromString(value string) rpc.CommitmentType {
	switch value {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// WalletAddress returns the signing wallet's public key.
func (c *Client) WalletAddress() solana.PublicKey {
	return c.wallet.PublicKey()
}

// ProgramID returns the program address.
func (c *Client) ProgramID() solana.PublicKey {
	return c.programID
}

// FetchConfig reads the program config account. Returns ErrConfigNotFound when
// the account does not exist.
func (c *Client) FetchConfig(ctx context.Context) (*Config, error) {
	data, err := c.fetchAccountData(ctx, c.configPDA)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrConfigNotFound
	}
	var cfg Config
	if err := decodeAccount("SublyConfig", data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FetchRegistry reads the subscription registry account.
func (c *Client) FetchRegistry(ctx context.Context) (*SubscriptionRegistry, error) {
	data, err := c.fetchAccountData(ctx, c.registryPDA)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, &PreconditionError{Reason: "subscription registry account not found"}
	}
	var registry SubscriptionRegistry
	if err := decodeAccount("SubscriptionRegistry", data, &registry); err != nil {
		return nil, err
	}
	return &registry, nil
}

// FetchUserSubscriptions reads a user's aggregate subscriptions account.
// Returns (nil, nil) when the account does not exist.
func (c *Client) FetchUserSubscriptions(ctx context.Context, user solana.PublicKey) (*UserSubscriptions, error) {
	addr, err := UserSubscriptionsAddress(c.programID, user)
	if err != nil {
		return nil, err
	}
	data, err := c.fetchAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var subs UserSubscriptions
	if err := decodeAccount("UserSubscriptions", data, &subs); err != nil {
		return nil, err
	}
	return &subs, nil
}

// ListUserSubscriptionAccounts enumerates every user-subscriptions account of
// the program, filtered by account discriminator.
func (c *Client) ListUserSubscriptionAccounts(ctx context.Context) ([]solana.PublicKey, error) {
	var result rpc.GetProgramAccountsResult
	err := retry.Do(ctx, c.retryPolicy, "getProgramAccounts", IsTransient, func() error {
		var rpcErr error
		result, rpcErr = c.rpc.GetProgramAccountsWithOpts(ctx, c.programID, &rpc.GetProgramAccountsOpts{
			Commitment: c.commitment,
			Filters: []rpc.RPCFilter{
				{
					Memcmp: &rpc.RPCFilterMemcmp{
						Offset: 0,
						Bytes:  solana.Base58(accountDiscriminator("UserSubscriptions")),
					},
				},
			},
		})
		if rpcErr != nil {
			return &TransportError{Op: "getProgramAccounts", Err: rpcErr}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]solana.PublicKey, 0, len(result))
	for _, keyed := range result {
		accounts = append(accounts, keyed.Pubkey)
	}
	return accounts, nil
}

// FindDueSubscriptions submits the due-scan instruction for one account batch
// and returns the decoded events of the confirmed transaction.
func (c *Client) FindDueSubscriptions(ctx context.Context, lookAheadSeconds int64, accounts []solana.PublicKey) (solana.Signature, []Event, error) {
	data := new(bytes.Buffer)
	data.Write(instructionDiscriminator("find_due_subscriptions"))
	binary.Write(data, binary.LittleEndian, lookAheadSeconds)

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.configPDA, false, false),
		solana.NewAccountMeta(c.registryPDA, false, false),
	}
	for _, account := range accounts {
		metas = append(metas, solana.NewAccountMeta(account, false, false))
	}

	sig, err := c.sendAndConfirm(ctx, solana.NewInstruction(c.programID, metas, data.Bytes()))
	if err != nil {
		return sig, nil, err
	}

	events, err := c.TransactionEvents(ctx, sig)
	if err != nil {
		return sig, nil, err
	}
	return sig, events, nil
}

// RecordPayment submits record_subscription_payment for one subscription.
// A nil paymentTs instructs the program to use its own clock. Returns the
// decoded settlement event when present in the transaction logs.
func (c *Client) RecordPayment(ctx context.Context, user solana.PublicKey, subscriptionID uint64, paymentTs *int64) (solana.Signature, *SubscriptionPaymentRecorded, error) {
	userSubsPDA, err := UserSubscriptionsAddress(c.programID, user)
	if err != nil {
		return solana.Signature{}, nil, err
	}

	data := new(bytes.Buffer)
	data.Write(instructionDiscriminator("record_subscription_payment"))
	binary.Write(data, binary.LittleEndian, subscriptionID)
	// Borsh Option<i64>: presence byte followed by the value.
	if paymentTs != nil {
		data.WriteByte(1)
		binary.Write(data, binary.LittleEndian, *paymentTs)
	} else {
		data.WriteByte(0)
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(c.configPDA, false, false),
		solana.NewAccountMeta(c.wallet.PublicKey(), false, true),
		solana.NewAccountMeta(user, false, false),
		solana.NewAccountMeta(userSubsPDA, true, false),
	}

	sig, err := c.sendAndConfirm(ctx, solana.NewInstruction(c.programID, metas, data.Bytes()))
	if err != nil {
		return sig, nil, err
	}

	events, err := c.TransactionEvents(ctx, sig)
	if err != nil {
		return sig, nil, err
	}
	for _, event := range events {
		switch event.Kind {
		case EventSubscriptionPaymentRecorded:
			return sig, event.PaymentRecorded, nil
		case EventUnrecognized:
			logging.Warnf("unrecognized event in settlement tx %s: %s", sig, event.Raw)
		}
	}
	logging.Warnf("settlement tx %s confirmed but no SubscriptionPaymentRecorded event decoded", sig)
	return sig, nil, nil
}

// ProgramSignatures pages the program's transaction history backwards from the
// before cursor (zero value starts at the newest transaction).
func (c *Client) ProgramSignatures(ctx context.Context, before solana.Signature, limit int) ([]SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.commitment,
	}
	if !before.IsZero() {
		opts.Before = before
	}

	var raw []*rpc.TransactionSignature
	err := retry.Do(ctx, c.retryPolicy, "getSignaturesForAddress", IsTransient, func() error {
		var rpcErr error
		raw, rpcErr = c.rpc.GetSignaturesForAddressWithOpts(ctx, c.programID, opts)
		if rpcErr != nil {
			return &TransportError{Op: "getSignaturesForAddress", Err: rpcErr}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	infos := make([]SignatureInfo, 0, len(raw))
	for _, entry := range raw {
		infos = append(infos, SignatureInfo{
			Signature: entry.Signature,
			Slot:      entry.Slot,
			Failed:    entry.Err != nil,
		})
	}
	return infos, nil
}

// TransactionEvents fetches a confirmed transaction and decodes its emitted
// events. Retries briefly because a just-confirmed transaction may not be
// queryable yet.
func (c *Client) TransactionEvents(ctx context.Context, sig solana.Signature) ([]Event, error) {
	version := uint64(0)
	var tx *rpc.GetTransactionResult

	for attempt := 0; attempt < txFetchAttempts; attempt++ {
		var err error
		tx, err = c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &version,
		})
		if err == nil && tx != nil {
			break
		}
		tx = nil
		select {
		case <-time.After(txFetchPause):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if tx == nil {
		return nil, &TransportError{Op: "getTransaction", Err: fmt.Errorf("transaction %s not available after %d attempts", sig, txFetchAttempts)}
	}
	if tx.Meta == nil {
		return nil, nil
	}
	return DecodeEventLogs(tx.Meta.LogMessages), nil
}

func (c *Client) fetchAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	var data []byte
	err := retry.Do(ctx, c.retryPolicy, "getAccountInfo", IsTransient, func() error {
		result, rpcErr := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
		})
		if rpcErr != nil {
			if errors.Is(rpcErr, rpc.ErrNotFound) {
				data = nil
				return nil
			}
			return &TransportError{Op: "getAccountInfo", Err: rpcErr}
		}
		if result == nil || result.Value == nil {
			data = nil
			return nil
		}
		data = result.Value.Data.GetBinary()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// sendAndConfirm signs, submits and blocks until the transaction reaches the
// configured commitment level. Program rejections surface as *ProgramError,
// RPC failures as *TransportError.
func (c *Client) sendAndConfirm(ctx context.Context, instruction solana.Instruction) (solana.Signature, error) {
	blockhashResult, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, &TransportError{Op: "getLatestBlockhash", Err: err}
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhashResult.Value.Blockhash,
		solana.TransactionPayer(c.wallet.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.wallet.PublicKey()) {
			return &c.wallet
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, &TransportError{Op: "sendTransaction", Err: err}
	}

	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	deadline := time.Now().Add(confirmTimeout)

	for time.Now().Before(deadline) {
		result, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && result != nil && len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return &ProgramError{Signature: sig, Detail: fmt.Sprintf("%v", status.Err)}
			}
			if c.commitmentReached(status.ConfirmationStatus) {
				return nil
			}
		}

		select {
		case <-time.After(confirmPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &TransportError{Op: "confirmTransaction", Err: fmt.Errorf("transaction %s not confirmed within %s", sig, confirmTimeout)}
}

func (c *Client) commitmentReached(status rpc.ConfirmationStatusType) bool {
	switch c.commitment {
	case rpc.CommitmentFinalized:
		return status == rpc.ConfirmationStatusFinalized
	case rpc.CommitmentProcessed:
		return status != ""
	default:
		return status == rpc.ConfirmationStatusConfirmed || status == rpc.ConfirmationStatusFinalized
	}
}
