package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/skillexa/internal/db"
	"github.com/nkiryanov/skillexa/internal/events"
	"github.com/nkiryanov/skillexa/internal/handlers"
	"github.com/nkiryanov/skillexa/internal/logger"
	"github.com/nkiryanov/skillexa/internal/metrics"
	"github.com/nkiryanov/skillexa/internal/repository/postgres"
	"github.com/nkiryanov/skillexa/internal/service/auth"
	"github.com/nkiryanov/skillexa/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/skillexa/internal/service/order"
	"github.com/nkiryanov/skillexa/internal/service/report"
	"github.com/nkiryanov/skillexa/internal/service/settlement"
	"github.com/nkiryanov/skillexa/internal/service/user"
	"github.com/nkiryanov/skillexa/internal/service/wallet"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Scheduler  *settlement.Scheduler

	logger logger.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
}

func NewServerApp(ctx context.Context, c *Config, l logger.Logger) (*ServerApp, error) {
	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}

	err := app.init(ctx, c)
	if err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func (s *ServerApp) init(ctx context.Context, c *Config) error {
	var err error
	l := s.logger

	// Connect to the database and run migrations
	s.pool, err = db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Ledger events go to redis if configured
	var publisher events.Publisher = events.NoopPublisher{}
	if c.RedisURL != "" {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		s.redis = redis.NewClient(opts)
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		publisher = events.NewRedisPublisher(s.redis)
	}

	m := metrics.New()
	storage := postgres.NewStorage(s.pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		return fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	userService := user.NewService(auth.DefaultHasher, storage)
	authService, err := auth.NewService(auth.Config{}, tokenManager, userService)
	if err != nil {
		return fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	walletService := wallet.NewService(storage)
	orderService := order.NewService(storage, walletService,
		order.WithPublisher(publisher),
		order.WithLogger(l.With("component", "order")),
	)
	reportService := report.NewService(storage)

	s.Scheduler = settlement.New(settlement.Config{
		Interval:     c.SettlementInterval,
		BatchSize:    c.SettlementBatchSize,
		AbandonAfter: c.AbandonAfter,
	}, orderService, m, l.With("component", "settlement"))

	s.Handler = handlers.NewRouter(authService, orderService, walletService, reportService, m, l)

	return nil
}

// Run starts settlement scheduler and http server. Both stop gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	schedulerStopped := s.Scheduler.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-schedulerStopped

	return err
}

// Close releases connections to db and redis
func (s *ServerApp) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
