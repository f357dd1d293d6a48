package ledger

import (
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SubscriptionStatus mirrors the on-chain status enum (borsh u8 variant index).
type SubscriptionStatus uint8

const (
	StatusActive SubscriptionStatus = iota
	StatusPendingCancellation
	StatusCancelled
)

func (s SubscriptionStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusPendingCancellation:
		return "PENDING_CANCELLATION"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Config is the program's singleton configuration account. Only the authority
// and pause flag matter to the reconciler; the accrual fields are read-only
// bookkeeping owned by the program.
type Config struct {
	Authority      solana.PublicKey
	UsdcMint       solana.PublicKey
	Vault          solana.PublicKey
	TotalPrincipal uint64
	RewardPool     uint64
	AccIndex       bin.Uint128
	ApyBps         uint16
	LastUpdateTs   int64
	Paused         bool
	Bump           uint8
	VaultBump      uint8
}

// SubscriptionService is one registered service definition.
type SubscriptionService struct {
	ID           uint64
	Creator      solana.PublicKey
	Name         string
	MonthlyPrice uint64
	Details      string
	LogoURL      string
	Provider     string
	CreatedAt    int64
}

// SubscriptionRegistry holds all registered service definitions.
type SubscriptionRegistry struct {
	NextServiceID uint64
	Services      []SubscriptionService
	Bump          uint8
}

// ServiceNameByID builds a lookup map from the registry. Missing ids resolve
// to "service-<id>" at the call sites.
func (r *SubscriptionRegistry) ServiceNameByID() map[uint64]string {
	names := make(map[uint64]string, len(r.Services))
	for _, service := range r.Services {
		names[service.ID] = service.Name
	}
	return names
}

// UserSubscription is one subscription slot inside a user's aggregate account.
type UserSubscription struct {
	ID             uint64
	ServiceID      uint64
	MonthlyPrice   uint64
	StartedAt      int64
	LastPaymentTs  int64
	NextBillingTs  int64
	PendingUntilTs int64
	Status         SubscriptionStatus
}

// UserSubscriptions is the per-user aggregate account.
type UserSubscriptions struct {
	Owner                  solana.PublicKey
	NextSubscriptionID     uint64
	TotalActiveCommitment  uint64
	TotalPendingCommitment uint64
	Bump                   uint8
	Subscriptions          []UserSubscription
}

// FindSubscription locates a subscription by id, nil if absent.
func (u *UserSubscriptions) FindSubscription(id uint64) *UserSubscription {
	for i := range u.Subscriptions {
		if u.Subscriptions[i].ID == id {
			return &u.Subscriptions[i]
		}
	}
	return nil
}

const discriminatorLen = 8

// accountDiscriminator returns the anchor account discriminator for a type name.
func accountDiscriminator(name string) []byte {
	hash := sha256.Sum256([]byte("account:" + name))
	return hash[:discriminatorLen]
}

// instructionDiscriminator returns the anchor global instruction discriminator.
func instructionDiscriminator(name string) []byte {
	hash := sha256.Sum256([]byte("global:" + name))
	return hash[:discriminatorLen]
}

// eventDiscriminator returns the anchor event discriminator for an event name.
func eventDiscriminator(name string) [discriminatorLen]byte {
	hash := sha256.Sum256([]byte("event:" + name))
	var out [discriminatorLen]byte
	copy(out[:], hash[:discriminatorLen])
	return out
}

// decodeAccount checks the discriminator and borsh-decodes the account body.
func decodeAccount(name string, data []byte, out interface{}) error {
	if len(data) < discriminatorLen {
		return fmt.Errorf("%s account data too short: %d bytes", name, len(data))
	}
	want := accountDiscriminator(name)
	for i := 0; i < discriminatorLen; i++ {
		if data[i] != want[i] {
			return fmt.Errorf("%s account discriminator mismatch", name)
		}
	}
	if err := bin.NewBorshDecoder(data[discriminatorLen:]).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s account: %w", name, err)
	}
	return nil
}
