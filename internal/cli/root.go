// Package cli holds the dropfour command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/park285/dropfour-server/internal/app"
	"github.com/park285/dropfour-server/internal/config"
	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/record"
)

// storeOpener is swapped in tests.
var storeOpener = func(ctx context.Context, cfg *config.AppConfig) (record.Store, error) {
	return app.OpenStore(ctx, cfg)
}

// NewRootCmd builds the command tree. Running without a subcommand serves.
func NewRootCmd() *cobra.Command {
	var cfg *config.AppConfig

	root := &cobra.Command{
		Use:   "dropfour",
		Short: "Connect-Four room server",
		Long: `dropfour pairs players into two-seat rooms over WebSocket, runs the games,
and records results for the score table and match history.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := obslog.InitFromEnv(); err != nil {
				return err
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			obslog.Sync()
		},
		SilenceUsage: true,
	}
	cfgFn := func() *config.AppConfig { return cfg }

	serve := newServeCmd(cfgFn)
	root.RunE = serve.RunE
	root.AddCommand(serve)
	root.AddCommand(newMergeCmd(cfgFn))
	root.AddCommand(newScoresCmd(cfgFn))
	root.AddCommand(newHistoryCmd(cfgFn))
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
