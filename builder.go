package dashauth

import (
	"errors"
	"fmt"

	internalaudit "github.com/MrEthical07/dashauth/internal/audit"
	"github.com/MrEthical07/dashauth/internal/rate"
	"github.com/MrEthical07/dashauth/password"
	"github.com/MrEthical07/dashauth/store"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine from explicit dependencies. A Builder can
// be used for a single Build.
type Builder struct {
	config    Config
	backend   store.Backend
	locker    store.Locker
	redis     redis.UniversalClient
	auditSink AuditSink
	logger    *zap.Logger
	clock     clockwork.Clock

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBackend sets where the credential store is loaded from and saved to.
// Required.
func (b *Builder) WithBackend(backend store.Backend) *Builder {
	b.backend = backend
	return b
}

// WithFile is shorthand for a FileBackend on path guarded by a sibling
// lock file.
func (b *Builder) WithFile(path string) *Builder {
	b.backend = store.NewFileBackend(path)
	if b.locker == nil {
		b.locker = store.NewFileLocker(store.LockPathFor(path))
	}
	return b
}

// WithLocker sets the write lock held for the duration of an invocation.
func (b *Builder) WithLocker(locker store.Locker) *Builder {
	b.locker = locker
	return b
}

// WithRedis enables the failed-login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the clock used for cookie issue and expiry.
func (b *Builder) WithClock(clock clockwork.Clock) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the invocation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.backend == nil {
		return nil, errors.New("credential store backend required")
	}

	engine := &Engine{
		config:  cfg,
		backend: b.backend,
		locker:  b.locker,
		logger:  b.logger,
		clock:   b.clock,
		policy: password.Policy{
			MinLength: cfg.Password.MinLength,
			MaxLength: cfg.Password.MaxLength,
		},
	}
	if engine.locker == nil {
		if fb, ok := b.backend.(*store.FileBackend); ok {
			engine.locker = store.NewFileLocker(store.LockPathFor(fb.Path()))
		} else {
			engine.locker = store.NopLocker{}
		}
	}
	if engine.logger == nil {
		engine.logger = zap.NewNop()
	}
	if engine.clock == nil {
		engine.clock = clockwork.NewRealClock()
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
			KeyPrefix:             cfg.Security.RedisPrefix,
		})
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	// Logins for absent usernames verify against this hash.
	engine.dummyHash, err = ph.Hash("dashauth-absent-user")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	if cfg.Audit.Enabled {
		overflow := internalaudit.Block
		if cfg.Audit.DropIfFull {
			overflow = internalaudit.Drop
		}
		engine.audit = internalaudit.Start(internalaudit.Options{
			Buffer:   cfg.Audit.BufferSize,
			Overflow: overflow,
		}, b.auditSink)
	}
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
