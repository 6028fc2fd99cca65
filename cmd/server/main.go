package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Seann-Moser/integrations"
	"github.com/Seann-Moser/integrations/config"
	"github.com/Seann-Moser/integrations/connection"
	"github.com/Seann-Moser/integrations/handler"
	"github.com/Seann-Moser/integrations/lock"
	"github.com/Seann-Moser/integrations/oauth/omanager"
	"github.com/Seann-Moser/integrations/oauth/ostate"
	"github.com/Seann-Moser/integrations/session"
	"github.com/Seann-Moser/integrations/syncstatus"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const sessionTTL = 24 * time.Hour

type backend struct {
	conns      connection.Store
	logs       syncstatus.LogStore
	requests   syncstatus.RequestStore
	locker     lock.Locker
	nonces     ostate.NonceStore
	dispatcher syncstatus.Dispatcher
	closers    []func(context.Context) error
}

func (b *backend) close(ctx context.Context) error {
	var errs error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, b.closers[i](ctx))
	}
	return errs
}

func main() {
	cfg, err := config.LoadApp(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.App) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("INTEGRATIONS_LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func run(ctx context.Context, cfg *config.App, log *zap.Logger) error {
	var (
		b   *backend
		err error
	)
	switch cfg.Store {
	case config.StoreMongo:
		b, err = mongoBackend(ctx, cfg, log)
	default:
		log.Warn("using in-memory stores, connections are lost on restart")
		b = memoryBackend(log)
	}
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := b.close(cctx); err != nil {
			log.Warn("closing backends failed", zap.Error(err))
		}
	}()

	managerOpts := []omanager.Option{
		omanager.WithLocker(b.locker),
		omanager.WithNonceStore(b.nonces),
		omanager.WithLogger(log),
	}
	if cfg.StateSecret != "" {
		managerOpts = append(managerOpts, omanager.WithStateSecret([]byte(cfg.StateSecret)))
	} else {
		log.Warn("INTEGRATIONS_STATE_SECRET unset, authorizations cannot complete on another instance")
	}
	registry, err := integrations.NewRegistry(b.conns, nil, nil, managerOpts...)
	if err != nil {
		return fmt.Errorf("provider configuration: %w", err)
	}
	for _, p := range registry.Providers() {
		log.Info("integration provider", zap.String("provider", string(p.Type)), zap.Bool("configured", p.Configured))
	}

	statusOpts := []syncstatus.Option{syncstatus.WithLocker(b.locker), syncstatus.WithLogger(log)}
	status := syncstatus.NewService(b.conns, b.logs, statusOpts...)
	trigger := syncstatus.NewTrigger(b.conns, b.requests, b.dispatcher, statusOpts...)
	sessions := session.NewClient([]byte(cfg.SessionSecret), sessionTTL, log)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.New(registry, status, trigger, sessions, log).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func memoryBackend(log *zap.Logger) *backend {
	return &backend{
		conns:      connection.NewMemoryStore(nil),
		logs:       syncstatus.NewMemoryLogStore(),
		requests:   syncstatus.NewMemoryRequestStore(),
		locker:     lock.NewMemoryLocker(),
		nonces:     ostate.NewMemoryNonceStore(nil),
		dispatcher: &syncstatus.LogDispatcher{Log: log},
	}
}

func mongoBackend(ctx context.Context, cfg *config.App, log *zap.Logger) (*backend, error) {
	b := &backend{}
	fail := func(err error) (*backend, error) {
		cctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return nil, multierr.Append(err, b.close(cctx))
	}

	sealer, err := connection.NewXChaChaSealerFromBase64(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("INTEGRATIONS_ENCRYPTION_KEY: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	b.closers = append(b.closers, client.Disconnect)
	if err := client.Ping(cctx, nil); err != nil {
		return fail(fmt.Errorf("ping mongo: %w", err))
	}
	db := client.Database(cfg.MongoDatabase)

	conns := connection.NewMongoStore(db, connection.WithSealer(sealer))
	logs := syncstatus.NewMongoLogStore(db)
	requests := syncstatus.NewMongoRequestStore(db)
	for name, ensure := range map[string]func(context.Context) error{
		connection.CollectionName:        conns.EnsureIndexes,
		syncstatus.LogCollectionName:     logs.EnsureIndexes,
		syncstatus.RequestCollectionName: requests.EnsureIndexes,
	} {
		if err := ensure(cctx); err != nil {
			return fail(fmt.Errorf("ensure %s indexes: %w", name, err))
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	b.closers = append(b.closers, func(context.Context) error { return rdb.Close() })
	if err := rdb.Ping(cctx).Err(); err != nil {
		return fail(fmt.Errorf("ping redis: %w", err))
	}

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	b.closers = append(b.closers, func(context.Context) error { return queue.Close() })

	b.conns = connection.NewCachedStore(conns, rdb, cfg.CacheTTL, sealer, log)
	b.logs = logs
	b.requests = requests
	b.locker = lock.NewRedisLocker(rdb)
	b.nonces = ostate.NewRedisNonceStore(rdb)
	b.dispatcher = syncstatus.NewAsynqDispatcher(queue, syncstatus.WithQueue(cfg.SyncQueue))
	log.Info("storage ready", zap.String("database", cfg.MongoDatabase))
	return b, nil
}
