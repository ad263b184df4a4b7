package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/park285/dropfour-server/internal/app"
	"github.com/park285/dropfour-server/internal/config"
)

func newServeCmd(cfg func() *config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket and HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg())
		},
	}
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	store, err := storeOpener(ctx, cfg)
	if err != nil {
		return err
	}
	rdb, err := app.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		_ = store.Close()
		return err
	}
	a, err := app.New(cfg, store, rdb)
	if err != nil {
		_ = store.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return err
	}
	return a.Run(ctx, nil)
}
