package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	Addr            string        `env:"DASH_ADDR" default:":8501"`
	CredentialsFile string        `env:"CREDENTIALS_FILE" default:"config.yaml"`
	RedisURL        string        `env:"REDIS_URL"`
	RedisLock       bool          `env:"REDIS_LOCK" default:"false"`
	LogLevel        string        `env:"LOG_LEVEL" default:"info"`
	LogFormat       string        `env:"LOG_FORMAT" default:"json"`
	CookieSecure    bool          `env:"COOKIE_SECURE" default:"false"`
	AdminUsername   string        `env:"ADMIN_USERNAME" default:"admin"`
	AdminOnly       bool          `env:"ADMIN_ONLY_REGISTRATION" default:"true"`
	AuditLog        bool          `env:"AUDIT_LOG" default:"true"`
	LockTimeout     time.Duration `env:"LOCK_TIMEOUT" default:"5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// loadConfig reads .env (if present), the environment, then flags. The
// boolean reports whether a .env file was found.
func loadConfig(args []string) (*config, bool, error) {
	envFile := godotenv.Load() == nil

	var cfg config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, envFile, fmt.Errorf("failed to load environment variables: %w", err)
	}

	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "listen address")
	fs.StringVar(&cfg.CredentialsFile, "f", cfg.CredentialsFile, "credential file")
	if err := fs.Parse(args); err != nil {
		return nil, envFile, err
	}

	if err := cfg.validate(); err != nil {
		return nil, envFile, err
	}
	return &cfg, envFile, nil
}

func (c *config) validate() error {
	if c.Addr == "" {
		return errors.New("DASH_ADDR is required")
	}
	if c.CredentialsFile == "" {
		return errors.New("CREDENTIALS_FILE is required")
	}
	if c.LockTimeout <= 0 {
		return errors.New("LOCK_TIMEOUT must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
