package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sharetube/syncstream/internal/controller"
	"github.com/sharetube/syncstream/internal/repository/connection/inmemory"
	"github.com/sharetube/syncstream/internal/repository/room/redis"
	"github.com/sharetube/syncstream/internal/service/room"
	"github.com/sharetube/syncstream/pkg/ctxlogger"
	"github.com/sharetube/syncstream/pkg/redisclient"
)

type AppConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	LogLevel        string        `json:"log_level"`
	MembersLimit    int           `json:"members_limit"`
	QueueLimit      int           `json:"queue_limit"`
	SuccessorPolicy string        `json:"successor_policy"`
	RoomTTL         time.Duration `json:"room_ttl"`
	RedisPort       int           `json:"redis_port"`
	RedisHost       string        `json:"redis_host"`
	RedisPassword   string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.QueueLimit < 1 {
		return fmt.Errorf("queue limit must be greater than 0")
	}
	if cfg.RoomTTL <= 0 {
		return fmt.Errorf("room ttl must be positive")
	}
	if _, err := room.ParseSuccessorPolicy(cfg.SuccessorPolicy); err != nil {
		return err
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}

	return level, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(&ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}),
	})
}

// newHandler wires the authority on top of rc and returns its HTTP handler.
func newHandler(rc *goredis.Client, clock clockwork.Clock, logger *slog.Logger, cfg *AppConfig) (http.Handler, error) {
	policy, err := room.ParseSuccessorPolicy(cfg.SuccessorPolicy)
	if err != nil {
		return nil, err
	}

	roomRepo := redis.NewRepo(rc, logger, cfg.RoomTTL)
	connectionRepo := inmemory.NewRepo(logger)
	roomService, err := room.NewService(roomRepo, connectionRepo, clock, logger, &room.Config{
		MembersLimit:    cfg.MembersLimit,
		QueueLimit:      cfg.QueueLimit,
		SuccessorPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room service: %w", err)
	}

	return controller.NewController(roomService, logger).GetMux(), nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel, _ := parseLogLevel(cfg.LogLevel)
	logger := newLogger(os.Stdout, logLevel)

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	handler, err := newHandler(rc, clockwork.NewRealClock(), logger, cfg)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: handler}

	// graceful shutdown
	serverCtx, serverStopCtx := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer serverStopCtx()

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-serverCtx.Done():
	}

	logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
