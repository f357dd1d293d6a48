package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeAccounts(n int) []solana.PublicKey {
	accounts := make([]solana.PublicKey, n)
	for i := range accounts {
		wallet := solana.NewWallet()
		accounts[i] = wallet.PublicKey()
	}
	return accounts
}

func TestChunkAccountsShape(t *testing.T) {
	accounts := makeAccounts(37)
	chunks := ChunkAccounts(accounts, 16)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 16)
	assert.Len(t, chunks[1], 16)
	assert.Len(t, chunks[2], 5)
}

func TestChunkAccountsPreservesOrder(t *testing.T) {
	accounts := makeAccounts(10)
	chunks := ChunkAccounts(accounts, 3)

	var flattened []solana.PublicKey
	for _, chunk := range chunks {
		flattened = append(flattened, chunk...)
	}
	assert.Equal(t, accounts, flattened)
}

func TestChunkAccountsExactMultiple(t *testing.T) {
	chunks := ChunkAccounts(makeAccounts(32), 16)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 16)
	assert.Len(t, chunks[1], 16)
}

func TestChunkAccountsEmpty(t *testing.T) {
	assert.Nil(t, ChunkAccounts(nil, 16))
}

func TestChunkAccountsInvalidSize(t *testing.T) {
	assert.Panics(t, func() {
		ChunkAccounts(makeAccounts(3), 0)
	})
}
