package cookie

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	day = 24 * time.Hour

	// MinKeyBytes is the HS256 key size below which Manager.WeakKey reports true.
	MinKeyBytes = 32

	// MaxExpiryDays is the largest lifetime a time.Duration can hold.
	MaxExpiryDays = int(math.MaxInt64 / int64(day))

	defaultMaxFutureIAT = 5 * time.Minute
)

var (
	// ErrInvalid covers every reason a presented cookie is not trusted.
	ErrInvalid = errors.New("cookie invalid")
	// ErrDisabled is returned by Issue when expiry days is not positive.
	ErrDisabled = errors.New("cookie issuing disabled")
	// ErrMissingKey is returned by NewManager for an empty signing key.
	ErrMissingKey = errors.New("cookie signing key is empty")
)

// Config describes one cookie policy.
type Config struct {
	Name       string
	Key        []byte
	ExpiryDays int
	// MaxFutureIAT bounds how far ahead of the local clock an issued-at
	// time may be. Zero selects five minutes.
	MaxFutureIAT time.Duration
}

// Claims are the signed contents of a session cookie. Subject carries the
// username; IssuedAt the login time.
type Claims struct {
	jwt.RegisteredClaims
}

// Username returns the subject claim.
func (c *Claims) Username() string {
	return c.Subject
}

// Token is an issued cookie value and its lifetime.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager issues and verifies HS256-signed session cookies.
type Manager struct {
	config Config
	clock  clockwork.Clock
}

// NewManager returns a manager for cfg. A nil clock uses the real clock.
func NewManager(cfg Config, clock clockwork.Clock) (*Manager, error) {
	if len(cfg.Key) == 0 {
		return nil, ErrMissingKey
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.ExpiryDays > MaxExpiryDays {
		return nil, fmt.Errorf("cookie expiry_days %d exceeds maximum %d", cfg.ExpiryDays, MaxExpiryDays)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	key := make([]byte, len(cfg.Key))
	copy(key, cfg.Key)
	cfg.Key = key
	return &Manager{config: cfg, clock: clock}, nil
}

// Enabled reports whether cookies are issued and accepted at all.
func (m *Manager) Enabled() bool {
	return m.config.ExpiryDays > 0
}

// WeakKey reports whether the signing key is shorter than MinKeyBytes.
func (m *Manager) WeakKey() bool {
	return len(m.config.Key) < MinKeyBytes
}

// Name returns the cookie name.
func (m *Manager) Name() string {
	return m.config.Name
}

// Lifetime returns the validity window of an issued cookie.
func (m *Manager) Lifetime() time.Duration {
	return time.Duration(m.config.ExpiryDays) * day
}

// Issue signs a cookie for username valid from now for ExpiryDays days.
func (m *Manager) Issue(username string) (Token, error) {
	if !m.Enabled() {
		return Token{}, ErrDisabled
	}
	if username == "" {
		return Token{}, errors.New("cookie subject is empty")
	}

	now := m.clock.Now().Truncate(time.Second)
	exp := now.Add(m.Lifetime())
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    m.config.Name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Key)
	if err != nil {
		return Token{}, fmt.Errorf("sign cookie: %w", err)
	}
	return Token{Value: value, IssuedAt: now, ExpiresAt: exp}, nil
}

// Parse verifies value and returns its claims. Any failure is reported as
// an error wrapping ErrInvalid.
func (m *Manager) Parse(value string) (*Claims, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, ErrDisabled)
	}
	if value == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalid)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(m.config.Name),
	)

	token, err := parser.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, jwt.ErrTokenInvalidClaims)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing subject or iat", ErrInvalid)
	}

	now := m.clock.Now()
	iat := claims.IssuedAt.Time
	if iat.After(now.Add(m.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalid)
	}
	// The window is judged against the current policy, so shortening
	// expiry_days also shortens cookies that are already out there.
	if !now.Before(iat.Add(m.Lifetime())) {
		return nil, fmt.Errorf("%w: expired", ErrInvalid)
	}

	return claims, nil
}
