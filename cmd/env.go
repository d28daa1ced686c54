package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/chain"
	"github.com/arbiter-labs/verdict-cli/internal/correlation"
	"github.com/arbiter-labs/verdict-cli/internal/identity"
	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/internal/listener"
	"github.com/arbiter-labs/verdict-cli/internal/timelock"
	"github.com/arbiter-labs/verdict-cli/pkg/drandlock"
)

// chainEnv bundles everything a chain-facing command needs.
type chainEnv struct {
	identity  *identity.Identity
	store     jobstore.Store
	chain     *chain.EthClient
	table     *correlation.Table
	committer *timelock.Committer
	listener  *listener.Listener
}

// initChainEnv validates configuration and wires the commit/reveal stack.
// It does not call Init on the committer; that belongs to the command's
// own startup sequence.
func initChainEnv(ctx context.Context) (*chainEnv, error) {
	if err := cfg.ValidateChain(); err != nil {
		return nil, err
	}

	id, err := identity.FromHexKey(cfg.Chain.PrivateKey)
	if err != nil {
		return nil, eris.Wrap(err, "load agent identity")
	}

	store, err := jobstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open job store")
	}
	sink := audit.NewStoreSink(store)

	client, err := chain.Dial(ctx, cfg.Chain, id)
	if err != nil {
		store.Close()
		return nil, err
	}

	enc, err := drandlock.New(cfg.Drand)
	if err != nil {
		client.Close()
		store.Close()
		return nil, err
	}

	table, err := correlation.New(cfg.Correlation.MaxEntries)
	if err != nil {
		client.Close()
		store.Close()
		return nil, err
	}

	committer := timelock.NewCommitter(client, enc, table, sink, cfg.Chain.RevealDelayBlocks)
	lst := listener.New(client, committer, table, sink, id.String())

	zap.L().Info("chain environment ready",
		zap.String("agent", id.String()),
		zap.String("contract", cfg.Chain.ContractAddress),
		zap.Int64("chain_id", cfg.Chain.ChainID),
	)

	return &chainEnv{
		identity:  id,
		store:     store,
		chain:     client,
		table:     table,
		committer: committer,
		listener:  lst,
	}, nil
}

func (e *chainEnv) Close() {
	e.listener.Detach()
	e.chain.Close()
	if err := e.store.Close(); err != nil {
		zap.L().Warn("close job store", zap.Error(err))
	}
}
