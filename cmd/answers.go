package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/internal/model"
)

var answersShowAudit bool

var answersCmd = &cobra.Command{
	Use:   "answers <request-context>",
	Short: "List agent answers recorded for a request context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		requestContext := args[0]

		store, err := jobstore.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open job store")
		}
		defer store.Close()

		keys, err := store.List(ctx, jobstore.AnswerPrefix(requestContext))
		if err != nil {
			return eris.Wrap(err, "list answers")
		}

		records := make([]model.AnswerRecord, 0, len(keys))
		for _, key := range keys {
			data, err := store.Get(ctx, key)
			if err != nil {
				return eris.Wrapf(err, "read answer %s", key)
			}
			if data == nil {
				continue
			}
			var rec model.AnswerRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return eris.Wrapf(err, "decode answer %s", key)
			}
			records = append(records, rec)
		}

		out := map[string]any{
			"request_context": requestContext,
			"answers":         records,
		}
		if answersShowAudit {
			events, err := audit.List(ctx, store, requestContext)
			if err != nil {
				return eris.Wrap(err, "list audit events")
			}
			out["audit"] = events
		}

		if len(records) == 0 && !answersShowAudit {
			fmt.Fprintf(os.Stderr, "no answers recorded for %s\n", requestContext)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	answersCmd.Flags().BoolVar(&answersShowAudit, "audit", false, "include audit events for the request context")
	rootCmd.AddCommand(answersCmd)
}
