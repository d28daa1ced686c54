// Package timelock publishes verdicts so they are cryptographically locked
// until a target chain height, with an auditable on-chain commitment.
package timelock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/chain"
	"github.com/arbiter-labs/verdict-cli/internal/correlation"
	"github.com/arbiter-labs/verdict-cli/internal/model"
)

// State is the commit module lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Encrypter locks a payload until roughly delayBlocks blocks from now.
type Encrypter interface {
	Encrypt(ctx context.Context, payload []byte, delayBlocks uint64) ([]byte, error)
}

// commitmentHistory bounds the in-memory record of past commits kept for
// the status surface.
const commitmentHistory = 32

// Committer owns the verdict encryption and on-chain commit path. It is
// constructed per instance and injected where needed; there is no
// process-wide singleton state.
type Committer struct {
	chain        chain.Client
	enc          Encrypter
	table        *correlation.Table
	sink         audit.Sink
	defaultDelay uint64

	mu      sync.Mutex
	state   State
	history []model.Commitment
}

// NewCommitter wires a Committer in the Uninitialized state.
func NewCommitter(client chain.Client, enc Encrypter, table *correlation.Table, sink audit.Sink, defaultDelay uint64) *Committer {
	return &Committer{
		chain:        client,
		enc:          enc,
		table:        table,
		sink:         sink,
		defaultDelay: defaultDelay,
	}
}

// State reports the current lifecycle state.
func (c *Committer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init runs the asynchronous connectivity checks (height read and contract
// code verification) and moves the module to Ready. Calling Init when
// already Ready is a no-op; a previous Failed init may be retried. A
// failed check leaves the module in Failed for operator retry.
func (c *Committer) Init(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		return nil
	case StateInitializing:
		c.mu.Unlock()
		return eris.New("timelock: initialization already in flight")
	}
	c.state = StateInitializing
	c.mu.Unlock()

	height, err := c.chain.Height(ctx)
	if err == nil {
		err = c.chain.VerifyContract(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		return eris.Wrap(err, "timelock: init")
	}
	c.state = StateReady
	zap.L().Info("commit module ready", zap.Uint64("chain_height", height))
	return nil
}

// Commit encrypts a verdict for decryption at currentHeight+delayBlocks,
// records it on chain, and registers the protocol request id for reveal
// routing when a request context is supplied. delayBlocks of zero falls
// back to the configured default.
func (c *Committer) Commit(ctx context.Context, verdict string, delayBlocks uint64, requestContext string) (*model.CommitResult, error) {
	if c.State() != StateReady {
		return nil, eris.Wrapf(ErrNotInitialized, "state %s", c.State())
	}
	if delayBlocks == 0 {
		delayBlocks = c.defaultDelay
	}

	height, err := c.chain.Height(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "timelock: read height")
	}
	revealHeight := height + delayBlocks

	ciphertext, err := c.enc.Encrypt(ctx, EncodeVerdict(verdict), delayBlocks)
	if err != nil {
		return nil, eris.Wrap(err, "timelock: encrypt verdict")
	}
	sum := sha256.Sum256(ciphertext)
	ciphertextHash := hex.EncodeToString(sum[:])

	receipt, txHash, err := c.chain.CommitVerdict(ctx, revealHeight, ciphertext)
	if err != nil {
		// A zero hash means the failure predates signing; there is no
		// transaction to point at.
		if txHash == (common.Hash{}) {
			return nil, eris.Wrapf(ErrCommitTransactionFailed, "%v", err)
		}
		return nil, eris.Wrapf(ErrCommitTransactionFailed, "tx %s: %v", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, eris.Wrapf(ErrCommitTransactionFailed, "tx %s reverted", txHash.Hex())
	}

	requestID, ok := c.chain.CommittedRequestID(receipt)
	if !ok {
		return nil, eris.Wrapf(ErrCommitmentEventMissing, "tx %s", txHash.Hex())
	}

	if requestContext != "" {
		c.table.Put(requestID.String(), requestContext)
	}

	c.recordCommitment(model.Commitment{
		Verdict:           verdict,
		RevealHeight:      revealHeight,
		Ciphertext:        ciphertext,
		ProtocolRequestID: requestID.String(),
		TxHash:            txHash.Hex(),
		CiphertextHash:    ciphertextHash,
		CreatedAt:         time.Now().UTC(),
	})

	zap.L().Info("verdict committed",
		zap.String("protocol_request_id", requestID.String()),
		zap.Uint64("reveal_height", revealHeight),
		zap.String("tx_hash", txHash.Hex()),
		zap.String("ciphertext_hash", ciphertextHash),
		zap.String("request_context", requestContext),
	)

	if c.sink != nil {
		details := map[string]any{
			"protocol_request_id": requestID.String(),
			"reveal_height":       revealHeight,
			"tx_hash":             txHash.Hex(),
			"ciphertext_hash":     ciphertextHash,
		}
		if err := c.sink.Append(ctx, model.EventVerdictCommitted, details, requestContext); err != nil {
			zap.L().Error("audit append failed", zap.Error(err))
		}
	}

	return &model.CommitResult{
		ProtocolRequestID: requestID.String(),
		TxHash:            txHash.Hex(),
		CiphertextHash:    ciphertextHash,
	}, nil
}

func (c *Committer) recordCommitment(rec model.Commitment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, rec)
	if len(c.history) > commitmentHistory {
		c.history = c.history[len(c.history)-commitmentHistory:]
	}
}

// Recent returns the retained commitment records, newest last. The plaintext
// verdict stays in process memory only; it is never persisted before reveal.
func (c *Committer) Recent() []model.Commitment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Commitment, len(c.history))
	copy(out, c.history)
	return out
}
