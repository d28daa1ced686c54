package timelock

import "github.com/rotisserie/eris"

// Failure taxonomy for the commit/reveal path. Callers check these with
// eris.Is; none of them are retried automatically.
var (
	// ErrNotInitialized is returned when commit is called before the
	// module reaches Ready. Retryable once initialization completes.
	ErrNotInitialized = eris.New("commit module not initialized")

	// ErrCommitTransactionFailed covers a reverted commit transaction and
	// a confirmation wait that timed out. On timeout the transaction may
	// still have landed; reconciliation is the caller's concern.
	ErrCommitTransactionFailed = eris.New("commit transaction failed")

	// ErrCommitmentEventMissing means a confirmed receipt carried no
	// decodable commitment event: an ABI mismatch or an unexpected
	// contract. Needs operator attention, never silent retry.
	ErrCommitmentEventMissing = eris.New("commitment event missing from receipt")

	// ErrRevealDecodeFailed marks a revealed payload that does not parse
	// under the canonical verdict encoding.
	ErrRevealDecodeFailed = eris.New("reveal payload decode failed")
)
