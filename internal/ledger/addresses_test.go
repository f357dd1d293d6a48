package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedAddressesAreDeterministic(t *testing.T) {
	programID := solana.NewWallet().PublicKey()

	first, err := ConfigAddress(programID)
	require.NoError(t, err)
	second, err := ConfigAddress(programID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDerivedAddressesDifferPerSeed(t *testing.T) {
	programID := solana.NewWallet().PublicKey()

	configAddr, err := ConfigAddress(programID)
	require.NoError(t, err)
	registryAddr, err := RegistryAddress(programID)
	require.NoError(t, err)
	assert.NotEqual(t, configAddr, registryAddr)
}

func TestUserSubscriptionsAddressDiffersPerUser(t *testing.T) {
	programID := solana.NewWallet().PublicKey()

	userA, err := UserSubscriptionsAddress(programID, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	userB, err := UserSubscriptionsAddress(programID, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, userA, userB)
}
