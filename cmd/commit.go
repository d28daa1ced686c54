package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	commitDelayBlocks    uint64
	commitRequestContext string
)

var commitCmd = &cobra.Command{
	Use:   "commit <verdict>",
	Short: "Timelock-encrypt a verdict and commit it on chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initChainEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.committer.Init(ctx); err != nil {
			return err
		}

		result, err := env.committer.Commit(ctx, args[0], commitDelayBlocks, commitRequestContext)
		if err != nil {
			return err
		}

		zap.L().Info("verdict committed",
			zap.String("protocol_request_id", result.ProtocolRequestID),
			zap.String("tx_hash", result.TxHash),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	commitCmd.Flags().Uint64Var(&commitDelayBlocks, "delay-blocks", 0, "reveal delay in blocks (default from config)")
	commitCmd.Flags().StringVar(&commitRequestContext, "context", "", "request context to correlate the eventual reveal")
	rootCmd.AddCommand(commitCmd)
}
