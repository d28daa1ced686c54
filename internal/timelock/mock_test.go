package timelock

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"github.com/arbiter-labs/verdict-cli/internal/chain"
)

// --- Chain Client Mock ---

type mockChainClient struct {
	mock.Mock
}

func (m *mockChainClient) Height(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockChainClient) CommitVerdict(ctx context.Context, revealHeight uint64, ciphertext []byte) (*types.Receipt, common.Hash, error) {
	args := m.Called(ctx, revealHeight, ciphertext)
	var receipt *types.Receipt
	if args.Get(0) != nil {
		receipt = args.Get(0).(*types.Receipt)
	}
	return receipt, args.Get(1).(common.Hash), args.Error(2)
}

func (m *mockChainClient) SubscribeReveals(ctx context.Context, sink chan<- chain.RevealEvent) (chain.Subscription, error) {
	args := m.Called(ctx, sink)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(chain.Subscription), args.Error(1)
}

func (m *mockChainClient) CommittedRequestID(receipt *types.Receipt) (*big.Int, bool) {
	args := m.Called(receipt)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*big.Int), args.Bool(1)
}

func (m *mockChainClient) VerifyContract(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockChainClient) Close() {
	m.Called()
}

// --- Encrypter Mock ---

// stubEncrypter prefixes the payload so tests can assert the ciphertext
// actually flowed through encryption.
type stubEncrypter struct {
	err error
}

func (s *stubEncrypter) Encrypt(ctx context.Context, payload []byte, delayBlocks uint64) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("enc:"), payload...), nil
}
