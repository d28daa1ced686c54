// Package chain wraps all commitment-contract RPC traffic. Every call
// carries its own timeout so one slow provider request cannot stall the
// poll loop or the reveal subscription.
package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arbiter-labs/verdict-cli/internal/config"
	"github.com/arbiter-labs/verdict-cli/internal/identity"
	"github.com/arbiter-labs/verdict-cli/internal/resilience"
)

// ErrChainConnectivity marks a failure to reach the chain or the
// commitment contract during initialization.
var ErrChainConnectivity = eris.New("chain connectivity failure")

// ErrTxWaitTimeout marks a confirmation wait that gave up. Callers must
// not assume the transaction did not land.
var ErrTxWaitTimeout = eris.New("transaction confirmation timed out")

// RevealEvent is one decoded on-chain reveal.
type RevealEvent struct {
	ProtocolRequestID *big.Int
	Payload           []byte
	TxHash            common.Hash
}

// Subscription is the handle returned at attach time and required at
// detach time.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Client is the chain access contract consumed by the commit module and
// the reveal listener.
type Client interface {
	// Height returns the current chain height.
	Height(ctx context.Context) (uint64, error)

	// CommitVerdict submits a commitVerdict transaction and waits for one
	// confirmation. The returned hash is valid even when the error is not
	// nil, provided submission itself succeeded.
	CommitVerdict(ctx context.Context, revealHeight uint64, ciphertext []byte) (*types.Receipt, common.Hash, error)

	// SubscribeReveals streams VerdictRevealed events into sink until the
	// subscription is torn down.
	SubscribeReveals(ctx context.Context, sink chan<- RevealEvent) (Subscription, error)

	// CommittedRequestID extracts the protocol-assigned request id from a
	// confirmed commit receipt. The second return is false when the
	// receipt carries no matching commitment event.
	CommittedRequestID(receipt *types.Receipt) (*big.Int, bool)

	// VerifyContract confirms the configured address actually holds code.
	VerifyContract(ctx context.Context) error

	Close()
}

// EthClient implements Client on go-ethereum. HTTP serves request/response
// RPC; a separate websocket connection serves the event subscription.
type EthClient struct {
	rpc        *ethclient.Client
	ws         *ethclient.Client
	id         *identity.Identity
	contract   common.Address
	chainID    *big.Int
	rpcTimeout time.Duration
	txTimeout  time.Duration
	limiter    *rate.Limiter
}

// Dial connects both endpoints and verifies the advertised chain id
// matches configuration.
func Dial(ctx context.Context, cfg config.ChainConfig, id *identity.Identity) (*EthClient, error) {
	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, eris.Wrapf(ErrChainConnectivity, "dial rpc %s: %v", cfg.RPCEndpoint, err)
	}
	wsClient, err := ethclient.DialContext(ctx, cfg.WSEndpoint)
	if err != nil {
		rpcClient.Close()
		return nil, eris.Wrapf(ErrChainConnectivity, "dial ws %s: %v", cfg.WSEndpoint, err)
	}

	c := &EthClient{
		rpc:        rpcClient,
		ws:         wsClient,
		id:         id,
		contract:   common.HexToAddress(cfg.ContractAddress),
		chainID:    big.NewInt(cfg.ChainID),
		rpcTimeout: time.Duration(cfg.RPCTimeoutSecs) * time.Second,
		txTimeout:  time.Duration(cfg.TxWaitTimeoutSecs) * time.Second,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPCRateLimit), cfg.RPCRateLimit),
	}

	callCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()
	gotID, err := rpcClient.ChainID(callCtx)
	if err != nil {
		c.Close()
		return nil, eris.Wrapf(ErrChainConnectivity, "chain id: %v", err)
	}
	if gotID.Cmp(c.chainID) != 0 {
		c.Close()
		return nil, eris.Wrapf(ErrChainConnectivity, "chain id mismatch: want %s, node reports %s", c.chainID, gotID)
	}
	return c, nil
}

func (c *EthClient) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		cancelled := func() {}
		return ctx, cancelled, eris.Wrap(err, "chain: rate limiter")
	}
	callCtx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	return callCtx, cancel, nil
}

func (c *EthClient) Height(ctx context.Context) (uint64, error) {
	return resilience.DoVal(ctx, heightRetryConfig(), func(ctx context.Context) (uint64, error) {
		callCtx, cancel, err := c.call(ctx)
		if err != nil {
			return 0, err
		}
		defer cancel()
		height, err := c.rpc.BlockNumber(callCtx)
		return height, eris.Wrap(err, "chain: block number")
	})
}

func heightRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("chain", "height")
	return cfg
}

func (c *EthClient) CommitVerdict(ctx context.Context, revealHeight uint64, ciphertext []byte) (*types.Receipt, common.Hash, error) {
	data, err := PackCommit(revealHeight, ciphertext)
	if err != nil {
		return nil, common.Hash{}, err
	}

	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, common.Hash{}, err
	}
	nonce, err := c.rpc.PendingNonceAt(callCtx, c.id.Address)
	cancel()
	if err != nil {
		return nil, common.Hash{}, eris.Wrap(err, "chain: pending nonce")
	}

	callCtx, cancel, err = c.call(ctx)
	if err != nil {
		return nil, common.Hash{}, err
	}
	gasPrice, err := c.rpc.SuggestGasPrice(callCtx)
	cancel()
	if err != nil {
		return nil, common.Hash{}, eris.Wrap(err, "chain: suggest gas price")
	}

	callCtx, cancel, err = c.call(ctx)
	if err != nil {
		return nil, common.Hash{}, err
	}
	gasLimit, err := c.rpc.EstimateGas(callCtx, ethereum.CallMsg{
		From: c.id.Address,
		To:   &c.contract,
		Data: data,
	})
	cancel()
	if err != nil {
		return nil, common.Hash{}, eris.Wrap(err, "chain: estimate gas")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.id.Key)
	if err != nil {
		return nil, common.Hash{}, eris.Wrap(err, "chain: sign tx")
	}

	callCtx, cancel, err = c.call(ctx)
	if err != nil {
		return nil, common.Hash{}, err
	}
	err = c.rpc.SendTransaction(callCtx, signed)
	cancel()
	if err != nil {
		return nil, common.Hash{}, eris.Wrap(err, "chain: send tx")
	}

	zap.L().Info("commit transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("reveal_height", revealHeight),
	)

	// Wait for exactly one confirmation, bounded by the tx-wait timeout.
	waitCtx, waitCancel := context.WithTimeout(ctx, c.txTimeout)
	defer waitCancel()
	receipt, err := bind.WaitMined(waitCtx, c.rpc, signed)
	if err != nil {
		if waitCtx.Err() != nil {
			return nil, signed.Hash(), eris.Wrapf(ErrTxWaitTimeout, "tx %s: %v", signed.Hash().Hex(), err)
		}
		return nil, signed.Hash(), eris.Wrapf(err, "chain: wait mined %s", signed.Hash().Hex())
	}
	return receipt, signed.Hash(), nil
}

func (c *EthClient) SubscribeReveals(ctx context.Context, sink chan<- RevealEvent) (Subscription, error) {
	logs := make(chan types.Log, 64)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{RevealedEventID}},
	}
	sub, err := c.ws.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, eris.Wrap(err, "chain: subscribe reveals")
	}

	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-quit:
				return
			case log := <-logs:
				if log.Removed {
					// Reorged-out log; the canonical delivery will follow.
					continue
				}
				evt, err := ParseRevealedLog(log)
				if err != nil {
					zap.L().Error("undecodable reveal log",
						zap.String("tx_hash", log.TxHash.Hex()),
						zap.Error(err),
					)
					continue
				}
				select {
				case sink <- evt:
				case <-quit:
					return
				}
			}
		}
	}()

	return &ethSubscription{sub: sub, quit: quit}, nil
}

type ethSubscription struct {
	sub  ethereum.Subscription
	quit chan struct{}
	once sync.Once
}

func (s *ethSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.sub.Unsubscribe()
		close(s.quit)
	})
}

func (s *ethSubscription) Err() <-chan error { return s.sub.Err() }

func (c *EthClient) CommittedRequestID(receipt *types.Receipt) (*big.Int, bool) {
	return ParseCommittedEvent(receipt, c.contract)
}

func (c *EthClient) VerifyContract(ctx context.Context) error {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	code, err := c.rpc.CodeAt(callCtx, c.contract, nil)
	if err != nil {
		return eris.Wrapf(ErrChainConnectivity, "code at %s: %v", c.contract.Hex(), err)
	}
	if len(code) == 0 {
		return eris.Wrapf(ErrChainConnectivity, "no contract code at %s", c.contract.Hex())
	}
	return nil
}

func (c *EthClient) Close() {
	c.rpc.Close()
	c.ws.Close()
}
