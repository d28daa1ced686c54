package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arbiter-labs/verdict-cli/internal/correlation"
	"github.com/arbiter-labs/verdict-cli/internal/lifecycle"
	"github.com/arbiter-labs/verdict-cli/internal/listener"
	"github.com/arbiter-labs/verdict-cli/internal/model"
	"github.com/arbiter-labs/verdict-cli/internal/timelock"
)

var relayPort int

// verdictCommitter is the commit surface the relay exposes over HTTP.
type verdictCommitter interface {
	State() timelock.State
	Commit(ctx context.Context, verdict string, delayBlocks uint64, requestContext string) (*model.CommitResult, error)
	Recent() []model.Commitment
}

// listenerStatus is the reveal-side state the status endpoint reports.
type listenerStatus interface {
	State() listener.State
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the commit/reveal coordination daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initChainEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		grace := time.Duration(cfg.Agent.ShutdownGraceSecs) * time.Second
		ctrl := lifecycle.New(env.committer, env.listener, grace)
		if err := ctrl.Start(ctx); err != nil {
			return err
		}

		port := relayPort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(ctrl, env.committer, env.listener, env.table, env.identity.String()),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("relay listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "relay listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down relay")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			ctrl.Stop()
			return nil
		})

		return g.Wait()
	},
}

// buildRouter assembles the relay HTTP surface. A nil controller runs
// commits untracked.
func buildRouter(ctrl *lifecycle.Controller, committer verdictCommitter, lst listenerStatus, table *correlation.Table, agentAddr string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		type pending struct {
			ProtocolRequestID string `json:"protocol_request_id"`
			RevealHeight      uint64 `json:"reveal_height"`
			TxHash            string `json:"tx_hash"`
		}
		recent := committer.Recent()
		commits := make([]pending, 0, len(recent))
		for _, rec := range recent {
			commits = append(commits, pending{
				ProtocolRequestID: rec.ProtocolRequestID,
				RevealHeight:      rec.RevealHeight,
				TxHash:            rec.TxHash,
			})
		}
		status := map[string]any{
			"agent":               agentAddr,
			"commit_state":        committer.State().String(),
			"listener_state":      lst.State().String(),
			"correlation_entries": table.Len(),
			"recent_commits":      commits,
		}
		if ctrl != nil {
			status["attached"] = ctrl.Attached()
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Post("/commit", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Verdict        string `json:"verdict"`
			DelayBlocks    uint64 `json:"delay_blocks"`
			RequestContext string `json:"request_context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Verdict == "" {
			http.Error(w, `{"error":"verdict is required"}`, http.StatusBadRequest)
			return
		}

		var result *model.CommitResult
		do := func() error {
			var err error
			result, err = committer.Commit(r.Context(), req.Verdict, req.DelayBlocks, req.RequestContext)
			return err
		}
		var err error
		if ctrl != nil {
			err = ctrl.Track(do)
		} else {
			err = do()
		}
		if err != nil {
			if eris.Is(err, lifecycle.ErrShuttingDown) {
				http.Error(w, `{"error":"shutting down"}`, http.StatusServiceUnavailable)
				return
			}
			if eris.Is(err, timelock.ErrNotInitialized) {
				http.Error(w, `{"error":"commit module not ready"}`, http.StatusConflict)
				return
			}
			zap.L().Error("commit request failed",
				zap.String("request_context", req.RequestContext),
				zap.Error(err),
			)
			http.Error(w, `{"error":"commit failed"}`, http.StatusBadGateway)
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func init() {
	relayCmd.Flags().IntVar(&relayPort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(relayCmd)
}
