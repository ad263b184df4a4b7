package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	DatabaseURL string
	RedisURL    string

	BoardWidth  int
	BoardHeight int

	RoomGracePeriod time.Duration
	SweepInterval   time.Duration

	RecorderQueueSize   int
	RecorderMaxAttempts int
	HistoryMaxLimit     int

	OutboxSize  int
	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:          ":8080",
		BoardWidth:          7,
		BoardHeight:         6,
		RoomGracePeriod:     30 * time.Second,
		SweepInterval:       10 * time.Second,
		RecorderQueueSize:   256,
		RecorderMaxAttempts: 5,
		HistoryMaxLimit:     100,
		OutboxSize:          32,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	var errs []error
	ints := []struct {
		env string
		dst *int
	}{
		{"BOARD_WIDTH", &cfg.BoardWidth},
		{"BOARD_HEIGHT", &cfg.BoardHeight},
		{"RECORDER_QUEUE_SIZE", &cfg.RecorderQueueSize},
		{"RECORDER_MAX_ATTEMPTS", &cfg.RecorderMaxAttempts},
		{"HISTORY_MAX_LIMIT", &cfg.HistoryMaxLimit},
		{"OUTBOX_SIZE", &cfg.OutboxSize},
	}
	for _, f := range ints {
		v := strings.TrimSpace(os.Getenv(f.env))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer, got %q", f.env, v))
			continue
		}
		*f.dst = n
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"ROOM_GRACE_PERIOD", &cfg.RoomGracePeriod},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
	}
	for _, f := range durations {
		v := strings.TrimSpace(os.Getenv(f.env))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration, got %q", f.env, v))
			continue
		}
		*f.dst = d
	}

	if cfg.BoardWidth < 4 && cfg.BoardHeight < 4 {
		errs = append(errs, errors.New("board must be at least 4 cells in one dimension"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}
