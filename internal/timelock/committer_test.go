package timelock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/correlation"
	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
)

func newTestCommitter(t *testing.T, client *mockChainClient, enc Encrypter) (*Committer, *correlation.Table) {
	t.Helper()
	table, err := correlation.New(10)
	require.NoError(t, err)
	sink := audit.NewStoreSink(jobstore.NewMemory())
	return NewCommitter(client, enc, table, sink, 10), table
}

func readyCommitter(t *testing.T, client *mockChainClient, enc Encrypter) (*Committer, *correlation.Table) {
	t.Helper()
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("VerifyContract", mock.Anything).Return(nil).Once()
	c, table := newTestCommitter(t, client, enc)
	require.NoError(t, c.Init(context.Background()))
	return c, table
}

func successReceipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}
}

func TestCommitter_InitIdempotent(t *testing.T) {
	client := &mockChainClient{}
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("VerifyContract", mock.Anything).Return(nil).Once()

	c, _ := newTestCommitter(t, client, &stubEncrypter{})
	assert.Equal(t, StateUninitialized, c.State())

	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, StateReady, c.State())

	// Re-entrant init while Ready is a no-op; the mock's Once() would fail
	// if the connectivity checks ran again.
	require.NoError(t, c.Init(context.Background()))
	client.AssertExpectations(t)
}

func TestCommitter_InitFailureThenRetry(t *testing.T) {
	client := &mockChainClient{}
	client.On("Height", mock.Anything).Return(uint64(0), eris.New("rpc down")).Once()
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("VerifyContract", mock.Anything).Return(nil).Once()

	c, _ := newTestCommitter(t, client, &stubEncrypter{})

	err := c.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())

	// Operator retry from Failed succeeds.
	require.NoError(t, c.Init(context.Background()))
	assert.Equal(t, StateReady, c.State())
}

func TestCommitter_CommitBeforeInit(t *testing.T) {
	c, _ := newTestCommitter(t, &mockChainClient{}, &stubEncrypter{})

	_, err := c.Commit(context.Background(), "Verified", 5, "req_42")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotInitialized))
}

func TestCommitter_CommitHappyPath(t *testing.T) {
	client := &mockChainClient{}
	enc := &stubEncrypter{}
	c, table := readyCommitter(t, client, enc)

	wantCiphertext := append([]byte("enc:"), EncodeVerdict("Verified")...)
	receipt := successReceipt()
	txHash := common.HexToHash("0xbeef")

	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("CommitVerdict", mock.Anything, uint64(105), wantCiphertext).
		Return(receipt, txHash, nil).Once()
	client.On("CommittedRequestID", receipt).Return(big.NewInt(7), true).Once()

	res, err := c.Commit(context.Background(), "Verified", 5, "req_42")
	require.NoError(t, err)

	assert.Equal(t, "7", res.ProtocolRequestID)
	assert.Equal(t, txHash.Hex(), res.TxHash)

	sum := sha256.Sum256(wantCiphertext)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.CiphertextHash)

	ctx, ok := table.Take("7")
	require.True(t, ok)
	assert.Equal(t, "req_42", ctx)

	recent := c.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "Verified", recent[0].Verdict)
	assert.Equal(t, uint64(105), recent[0].RevealHeight)
	assert.Equal(t, "7", recent[0].ProtocolRequestID)
	client.AssertExpectations(t)
}

func TestCommitter_CommitDefaultDelay(t *testing.T) {
	client := &mockChainClient{}
	c, _ := readyCommitter(t, client, &stubEncrypter{})

	receipt := successReceipt()
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	// defaultDelay is 10 in the test fixture.
	client.On("CommitVerdict", mock.Anything, uint64(110), mock.Anything).
		Return(receipt, common.HexToHash("0x1"), nil).Once()
	client.On("CommittedRequestID", receipt).Return(big.NewInt(1), true).Once()

	_, err := c.Commit(context.Background(), "v", 0, "")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestCommitter_WaitTimeoutIsCommitFailure(t *testing.T) {
	client := &mockChainClient{}
	c, table := readyCommitter(t, client, &stubEncrypter{})

	txHash := common.HexToHash("0xdead")
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("CommitVerdict", mock.Anything, uint64(105), mock.Anything).
		Return(nil, txHash, eris.New("confirmation timed out")).Once()

	_, err := c.Commit(context.Background(), "Verified", 5, "req_42")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCommitTransactionFailed))
	assert.Contains(t, err.Error(), txHash.Hex())

	// No correlation entry may exist after a failed commit.
	assert.Equal(t, 0, table.Len())
}

func TestCommitter_FailureBeforeSigningOmitsTxHash(t *testing.T) {
	client := &mockChainClient{}
	c, _ := readyCommitter(t, client, &stubEncrypter{})

	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("CommitVerdict", mock.Anything, uint64(105), mock.Anything).
		Return(nil, common.Hash{}, eris.New("nonce query failed")).Once()

	_, err := c.Commit(context.Background(), "Verified", 5, "req_42")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCommitTransactionFailed))
	assert.Contains(t, err.Error(), "nonce query failed")
	assert.NotContains(t, err.Error(), common.Hash{}.Hex())
}

func TestCommitter_RevertedReceipt(t *testing.T) {
	client := &mockChainClient{}
	c, table := readyCommitter(t, client, &stubEncrypter{})

	reverted := &types.Receipt{Status: types.ReceiptStatusFailed}
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("CommitVerdict", mock.Anything, uint64(105), mock.Anything).
		Return(reverted, common.HexToHash("0x2"), nil).Once()

	_, err := c.Commit(context.Background(), "Verified", 5, "req_42")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCommitTransactionFailed))
	assert.Equal(t, 0, table.Len())
}

func TestCommitter_CommitmentEventMissing(t *testing.T) {
	client := &mockChainClient{}
	c, table := readyCommitter(t, client, &stubEncrypter{})

	receipt := successReceipt()
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("CommitVerdict", mock.Anything, uint64(105), mock.Anything).
		Return(receipt, common.HexToHash("0x3"), nil).Once()
	client.On("CommittedRequestID", receipt).Return(nil, false).Once()

	_, err := c.Commit(context.Background(), "Verified", 5, "req_42")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrCommitmentEventMissing))
	assert.Equal(t, 0, table.Len())
}

func TestCommitter_NoRequestContextNoEntry(t *testing.T) {
	client := &mockChainClient{}
	c, table := readyCommitter(t, client, &stubEncrypter{})

	receipt := successReceipt()
	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()
	client.On("CommitVerdict", mock.Anything, uint64(105), mock.Anything).
		Return(receipt, common.HexToHash("0x4"), nil).Once()
	client.On("CommittedRequestID", receipt).Return(big.NewInt(9), true).Once()

	_, err := c.Commit(context.Background(), "Verified", 5, "")
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestCommitter_EncryptFailure(t *testing.T) {
	client := &mockChainClient{}
	c, table := readyCommitter(t, client, &stubEncrypter{err: eris.New("drand unreachable")})

	client.On("Height", mock.Anything).Return(uint64(100), nil).Once()

	_, err := c.Commit(context.Background(), "Verified", 5, "req_42")
	require.Error(t, err)
	assert.Equal(t, 0, table.Len())
}
