// Package app wires configuration into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/dropfour-server/internal/config"
	"github.com/park285/dropfour-server/internal/httpapi"
	"github.com/park285/dropfour-server/internal/lobbyidx"
	"github.com/park285/dropfour-server/internal/msgcat"
	"github.com/park285/dropfour-server/internal/obslog"
	"github.com/park285/dropfour-server/internal/record"
	"github.com/park285/dropfour-server/internal/registry"
	"github.com/park285/dropfour-server/internal/room"
	"github.com/park285/dropfour-server/internal/wsconn"
)

// App owns every long-lived component of the server.
type App struct {
	cfg      *config.AppConfig
	Rooms    *room.Manager
	Registry *registry.Registry
	Store    record.Store
	Recorder *record.AsyncRecorder

	rdb    *redis.Client
	mirror *lobbyidx.Mirror
	lobby  *lobbyidx.Store
	srv    *http.Server
}

// OpenStore returns a Postgres store when DATABASE_URL is set, otherwise an in-memory one.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (record.Store, error) {
	if cfg.DatabaseURL == "" {
		obslog.L().Warn("store_memory", zap.String("reason", "DATABASE_URL not set"))
		return record.NewMemoryStore(cfg.HistoryMaxLimit), nil
	}
	pg, err := record.NewPostgresStore(cfg.DatabaseURL, cfg.HistoryMaxLimit)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

// OpenRedis connects to REDIS_URL, or returns nil when it is unset.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// New builds the component graph. store and rdb may come from the caller so
// tests can inject them; rdb may be nil.
func New(cfg *config.AppConfig, store record.Store, rdb *redis.Client) (*App, error) {
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, Store: store, rdb: rdb}
	a.Recorder = record.NewAsyncRecorder(store, record.RecorderOptions{
		QueueSize:   cfg.RecorderQueueSize,
		MaxAttempts: cfg.RecorderMaxAttempts,
	})

	opts := room.Options{
		BoardWidth:  cfg.BoardWidth,
		BoardHeight: cfg.BoardHeight,
		GracePeriod: cfg.RoomGracePeriod,
		Recorder:    a.Recorder,
	}
	if rdb != nil {
		a.lobby = lobbyidx.NewStore(rdb)
		a.mirror = lobbyidx.NewMirror(a.lobby, 0)
		opts.Mirror = a.mirror
	}
	a.Rooms = room.NewManager(opts)
	a.Registry = registry.New(a.Rooms, registry.Options{OutboxSize: cfg.OutboxSize, Catalog: catalog})

	rc := httpapi.RouterConfig{
		Rooms:     a.Rooms,
		Store:     store,
		WebSocket: &wsconn.Handler{Registry: a.Registry},
		MaxLimit:  cfg.HistoryMaxLimit,
	}
	if a.lobby != nil {
		rc.Lobby = a.lobby
	}
	a.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(rc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Handler exposes the HTTP surface.
func (a *App) Handler() http.Handler { return a.srv.Handler }

// Run serves on ln (or the configured address when ln is nil) and sweeps idle
// rooms until ctx is done, then shuts down.
func (a *App) Run(ctx context.Context, ln net.Listener) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.Rooms.Run(sweepCtx, a.cfg.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if ln != nil {
			err = a.srv.Serve(ln)
		} else {
			err = a.srv.ListenAndServe()
		}
		errCh <- err
	}()
	obslog.L().Info("server_start", zap.String("addr", a.cfg.ListenAddr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections, disconnects peers and flushes the
// recorder and lobby mirror.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	a.Registry.Close()
	if err := a.Recorder.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}
	if a.mirror != nil {
		if err := a.mirror.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("lobby mirror: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	obslog.L().Info("server_stop")
	return errors.Join(errs...)
}
