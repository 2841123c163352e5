package dashauth

import (
	"errors"
	"strings"
	"time"
)

// Config controls the engine. Obtain a populated value with DefaultConfig
// and adjust fields before passing it to Builder.WithConfig.
type Config struct {
	Password    PasswordConfig
	Account     AccountConfig
	Persistence PersistenceConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs for new hashes and the strength
// policy applied by Register and ResetPassword.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int // characters
	MaxLength int // bytes
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig governs who may register and against which allowlist.
type AccountConfig struct {
	// AdminOnlyRegistration restricts Register to an authenticated session
	// whose username equals AdminUsername.
	AdminOnlyRegistration bool
	AdminUsername         string

	// RequirePreauthorized checks new emails against the preauthorized list
	// stored in the credential file.
	RequirePreauthorized bool
	// ConsumePreauthorized removes an email from the stored list once it
	// has been used.
	ConsumePreauthorized bool
}

/*
====================================
PERSISTENCE CONFIG
====================================
*/

// PersistenceConfig controls when the store is written and how write
// failures are reported.
type PersistenceConfig struct {
	// Eager saves right after every successful mutation in addition to the
	// end-of-invocation save.
	Eager bool
	// SuppressAnonymousFailures swallows end-of-invocation save errors when
	// no session is authenticated. They are still logged.
	SuppressAnonymousFailures bool
	// LockTimeout bounds how long Begin waits for the write lock.
	LockTimeout time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the failed-login throttle (active only when a Redis
// client is supplied) and cookie verification bounds.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	RedisPrefix           string

	CookieMaxFutureIAT time.Duration
	// RequireStrongCookieKey makes Begin fail when the stored signing key
	// is shorter than 32 bytes instead of only logging a warning.
	RequireStrongCookieKey bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxLength:   1024,
		},
		Account: AccountConfig{
			AdminOnlyRegistration: false,
			AdminUsername:         "admin",
			RequirePreauthorized:  false,
			ConsumePreauthorized:  true,
		},
		Persistence: PersistenceConfig{
			Eager:                     true,
			SuppressAnonymousFailures: false,
			LockTimeout:               5 * time.Second,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
			RedisPrefix:           "dashauth",
			CookieMaxFutureIAT:    5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Account
	if c.Account.AdminOnlyRegistration && strings.TrimSpace(c.Account.AdminUsername) == "" {
		return errors.New("Account AdminUsername is required when AdminOnlyRegistration is enabled")
	}

	// Persistence
	if c.Persistence.LockTimeout <= 0 {
		return errors.New("Persistence LockTimeout must be > 0")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("LoginCooldownDuration must be > 0")
	}
	if strings.TrimSpace(c.Security.RedisPrefix) == "" {
		return errors.New("Security RedisPrefix must not be empty")
	}
	if c.Security.CookieMaxFutureIAT < 0 || c.Security.CookieMaxFutureIAT > 24*time.Hour {
		return errors.New("Security CookieMaxFutureIAT must be between 0 and 24h")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
