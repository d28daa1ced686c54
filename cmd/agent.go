package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arbiter-labs/verdict-cli/internal/agent"
	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/identity"
	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/pkg/anthropic"
)

var agentPollInterval int

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run an answering agent against the shared job store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.ValidateAgent(); err != nil {
			return err
		}

		id, err := identity.FromHexKey(cfg.Chain.PrivateKey)
		if err != nil {
			return eris.Wrap(err, "load agent identity")
		}

		store, err := jobstore.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open job store")
		}
		defer store.Close()

		fetcher := agent.NewKnowledgeFetcher(store, time.Duration(cfg.Agent.FetchTimeoutSecs)*time.Second)
		gen := agent.NewAnthropicGenerator(
			anthropic.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model,
			cfg.Anthropic.MaxTokens,
		)
		coord := agent.NewCoordinator(store, fetcher, gen, audit.NewStoreSink(store), id.String())

		interval := agentPollInterval
		if interval == 0 {
			interval = cfg.Agent.PollIntervalSecs
		}

		zap.L().Info("answering agent started",
			zap.String("agent", id.String()),
			zap.Int("poll_interval_secs", interval),
		)
		return coord.Run(ctx, time.Duration(interval)*time.Second)
	},
}

func init() {
	agentCmd.Flags().IntVar(&agentPollInterval, "poll-interval", 0, "poll interval in seconds (default from config)")
	rootCmd.AddCommand(agentCmd)
}
