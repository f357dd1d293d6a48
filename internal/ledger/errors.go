package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrConfigNotFound is returned when the program config account does not exist
// on the ledger (the program was never initialized on this cluster).
var ErrConfigNotFound = errors.New("program config account not found")

// TransportError wraps an RPC-level failure (timeout, connection reset, node
// unreachable). Transient by nature; safe to retry.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ledger transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProgramError wraps a transaction that was confirmed but rejected by the
// program's own logic (authority mismatch, paused, already settled). Never
// retried: resubmitting would fail the same way.
type ProgramError struct {
	Signature solana.Signature
	Detail    string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("transaction %s rejected by program: %s", e.Signature, e.Detail)
}

// PreconditionError marks a fatal startup check failure (e.g. the signing
// wallet is not the configured authority). Aborts before any mutation.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}
