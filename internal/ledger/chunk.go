package ledger

import "github.com/gagliardetto/solana-go"

// ChunkAccounts splits accounts into groups of at most chunkSize, preserving
// order. The due-scan instruction accepts only a bounded number of account
// references per call. chunkSize must be positive.
func ChunkAccounts(accounts []solana.PublicKey, chunkSize int) [][]solana.PublicKey {
	if chunkSize <= 0 {
		panic("ledger: chunk size must be positive")
	}
	var chunks [][]solana.PublicKey
	for i := 0; i < len(accounts); i += chunkSize {
		end := i + chunkSize
		if end > len(accounts) {
			end = len(accounts)
		}
		chunks = append(chunks, accounts[i:end])
	}
	return chunks
}
