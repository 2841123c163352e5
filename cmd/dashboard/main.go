// Command dashboard serves the credential-protected dashboard API.
//
// Configuration comes from the environment (optionally a .env file) with
// -a and -f flag overrides. See config.go for the variables.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/dashauth"
	"github.com/MrEthical07/dashauth/httphost"
	promexport "github.com/MrEthical07/dashauth/metrics/export/prometheus"
	"github.com/MrEthical07/dashauth/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, envFile, err := loadConfig(os.Args[1:])
	if err != nil {
		// Use log before zap is initialized
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if !envFile {
		logger.Info("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("dashboard stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config, logger *zap.Logger) error {
	// The cookie name lives in the credential file; the host needs it to
	// read the incoming cookie before the engine runs.
	initial, err := store.NewFileBackend(cfg.CredentialsFile).Load(ctx)
	if err != nil {
		if store.IsNotExist(err) {
			logger.Error("credential file missing; create it with credctl init",
				zap.String("path", cfg.CredentialsFile))
		}
		return err
	}
	policy := initial.CookiePolicy()

	engineCfg := dashauth.DefaultConfig()
	engineCfg.Account.AdminOnlyRegistration = cfg.AdminOnly
	engineCfg.Account.AdminUsername = cfg.AdminUsername
	engineCfg.Persistence.LockTimeout = cfg.LockTimeout
	engineCfg.Audit.Enabled = cfg.AuditLog
	engineCfg.Metrics.Enabled = true
	engineCfg.Metrics.EnableLatencyHistograms = true

	b := dashauth.New().
		WithConfig(engineCfg).
		WithFile(cfg.CredentialsFile).
		WithLogger(logger)
	if cfg.AuditLog {
		b.WithAuditSink(dashauth.NewJSONWriterSink(os.Stdout))
	}

	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		b.WithRedis(client)
		if cfg.RedisLock {
			b.WithLocker(store.NewRedisLocker(client, engineCfg.Security.RedisPrefix+":lock:"+cfg.CredentialsFile, 0))
		}
		logger.Info("redis enabled", zap.Bool("redis_lock", cfg.RedisLock))
	}

	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	metricsHandler, err := promexport.Handler(promexport.NewCollector(engine))
	if err != nil {
		return err
	}

	host := httphost.New(engine, httphost.Config{
		CookieName:    policy.Name,
		SecureCookies: cfg.CookieSecure,
		AdminUsername: cfg.AdminUsername,
		Metrics:       metricsHandler,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           host.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening",
			zap.String("addr", cfg.Addr),
			zap.String("credentials", cfg.CredentialsFile),
			zap.String("cookie", policy.Name))
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

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
