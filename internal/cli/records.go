package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/config"
	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/record"
)

// ErrNoDatabase is returned by the admin commands when DATABASE_URL is unset.
// Without it they would only see an empty in-process store.
var ErrNoDatabase = errors.New("DATABASE_URL is not set: admin commands need the server's database")

func adminStore(ctx context.Context, cfg *config.AppConfig) (record.Store, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, ErrNoDatabase
	}
	return storeOpener(ctx, cfg)
}

func newMergeCmd(cfg func() *config.AppConfig) *cobra.Command {
	var surviving, absorbed int64
	cmd := &cobra.Command{
		Use:   "merge-identity",
		Short: "Fold one player's match history into another",
		Long: `merge-identity reassigns every match of --absorbed to --surviving and
retires the absorbed id. Scores are recomputed from the rewritten matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if surviving <= 0 || absorbed <= 0 {
				return errors.New("--surviving and --absorbed must be positive player ids")
			}
			store, err := adminStore(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.MergeIdentity(cmd.Context(), surviving, absorbed); err != nil {
				obslog.L().Warn("identity_merge_error",
					zap.Int64("surviving", surviving), zap.Int64("absorbed", absorbed), zap.Error(err))
				return err
			}
			obslog.L().Info("identity_merge", zap.Int64("surviving", surviving), zap.Int64("absorbed", absorbed))
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d into %d\n", absorbed, surviving)
			return nil
		},
	}
	cmd.Flags().Int64Var(&surviving, "surviving", 0, "player id that keeps the history")
	cmd.Flags().Int64Var(&absorbed, "absorbed", 0, "player id that is retired")
	_ = cmd.MarkFlagRequired("surviving")
	_ = cmd.MarkFlagRequired("absorbed")
	return cmd
}

func newScoresCmd(cfg func() *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "scores",
		Short: "Print the score table as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := adminStore(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer store.Close()
			scores, err := store.PlayerScores(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), scores)
		},
	}
}

func newHistoryCmd(cfg func() *config.AppConfig) *cobra.Command {
	var q record.HistoryQuery
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a page of match history as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if q.Limit < 0 || q.StartFrom < 0 {
				return errors.New("--limit and --start-from must not be negative")
			}
			store, err := adminStore(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer store.Close()
			page, err := store.History(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", record.DefaultHistoryLimit, "page size")
	cmd.Flags().IntVar(&q.StartFrom, "start-from", 0, "offset of the first match, newest first")
	return cmd
}
