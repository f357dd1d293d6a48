package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed strings for the program's derived addresses.
const (
	SeedConfig            = "config"
	SeedVault             = "vault"
	SeedRegistry          = "subscription_registry"
	SeedUserSubscriptions = "user_subscriptions"
	SeedUserPosition      = "user_position"
)

// DeriveAddress derives the program address for the given seeds. Pure function,
// no network access.
func DeriveAddress(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return addr, nil
}

// ConfigAddress derives the singleton config account address.
func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	return DeriveAddress(programID, []byte(SeedConfig))
}

// RegistryAddress derives the subscription registry account address.
func RegistryAddress(programID solana.PublicKey) (solana.PublicKey, error) {
	return DeriveAddress(programID, []byte(SeedRegistry))
}

// UserSubscriptionsAddress derives a user's aggregate subscriptions account.
func UserSubscriptionsAddress(programID, user solana.PublicKey) (solana.PublicKey, error) {
	return DeriveAddress(programID, []byte(SeedUserSubscriptions), user.Bytes())
}
