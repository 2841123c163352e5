package dashauth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	internalaudit "github.com/MrEthical07/dashauth/internal/audit"
	"github.com/MrEthical07/dashauth/internal/rate"
	"github.com/MrEthical07/dashauth/password"
	"github.com/MrEthical07/dashauth/store"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Engine runs credential invocations against one credential store.
//
// An Engine holds no per-user state. Each request is served by an
// Invocation obtained from Begin (or implicitly by Handle), which owns the
// loaded store and session until Finish. Engine methods are safe for
// concurrent use; invocations are serialized by the store Locker.
type Engine struct {
	config       Config
	backend      store.Backend
	locker       store.Locker
	rateLimiter  *rate.Limiter
	passwordHash *password.Argon2
	policy       password.Policy
	dummyHash    string
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *zap.Logger
	clock        clockwork.Clock

	weakKeyWarned atomic.Bool
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Begin acquires the store write lock and loads the store. The returned
// Invocation must be completed with Finish, which saves the store and
// releases the lock.
func (e *Engine) Begin(ctx context.Context) (*Invocation, error) {
	if e == nil || e.backend == nil {
		return nil, ErrEngineNotReady
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.config.Persistence.LockTimeout)
	release, err := e.locker.Lock(lockCtx)
	cancel()
	if err != nil {
		e.metricInc(MetricStoreLoadFailure)
		e.logger.Error("credential store lock failed", zap.Error(err))
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	s, err := e.backend.Load(ctx)
	if err != nil {
		e.releaseLock(ctx, release)
		e.metricInc(MetricStoreLoadFailure)
		e.logger.Error("credential store load failed", zap.Error(err))
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	cookies, err := e.cookieManager(s.CookiePolicy())
	if err != nil {
		e.releaseLock(ctx, release)
		return nil, err
	}

	return &Invocation{
		engine:  e,
		store:   s,
		cookies: cookies,
		release: release,
	}, nil
}

func (e *Engine) releaseLock(ctx context.Context, release store.ReleaseFunc) {
	if release == nil {
		return
	}
	if err := release(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("credential store unlock failed", zap.Error(err))
	}
}

// Request is everything one round trip from the host carries: what the
// caller presented for login and at most one action.
type Request struct {
	Login LoginInput

	Logout        bool
	Register      *RegisterRequest
	UpdateProfile *ProfileUpdate
	ResetPassword *PasswordReset
}

func (r Request) actionCount() int {
	n := 0
	if r.Logout {
		n++
	}
	if r.Register != nil {
		n++
	}
	if r.UpdateProfile != nil {
		n++
	}
	if r.ResetPassword != nil {
		n++
	}
	return n
}

// Response is the outcome of Handle.
type Response struct {
	Session Session
	Cookie  CookieDirective
	// User is the authenticated user's current record, if any.
	User *UserRecord
	// Record is the record produced by Register or UpdateProfile.
	Record *UserRecord

	// LoginErr is ErrInvalidCredentials or ErrLoginRateLimited when the
	// submitted credentials were rejected.
	LoginErr error
	// ActionErr is the typed result of the requested action.
	ActionErr error
	// PersistErr wraps ErrStorePersistence when the final save failed and
	// the failure is reported under the persistence policy.
	PersistErr error
}

// Handle runs one complete invocation: lock and load the store, apply the
// login input, perform the requested action, save and unlock. The
// returned error is non-nil only when the store could not be opened; all
// expected outcomes are reported in the Response.
func (e *Engine) Handle(ctx context.Context, req Request) (*Response, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := e.clock.Now()
	defer func() {
		e.metricObserve(MetricInvocationLatency, e.clock.Since(start))
	}()

	inv, err := e.Begin(ctx)
	if err != nil {
		return nil, err
	}

	resp := &Response{}
	_, resp.LoginErr = inv.Login(ctx, req.Login)

	switch {
	case req.actionCount() > 1:
		resp.ActionErr = fmt.Errorf("%w: at most one action per request", ErrInvalidInput)
	case req.Logout:
		inv.Logout(ctx)
	case req.Register != nil:
		rec, err := inv.Register(ctx, *req.Register)
		resp.ActionErr = err
		if err == nil || errors.Is(err, ErrStorePersistence) {
			resp.Record = &rec
		}
	case req.UpdateProfile != nil:
		rec, err := inv.UpdateProfile(ctx, *req.UpdateProfile)
		resp.ActionErr = err
		if err == nil || errors.Is(err, ErrStorePersistence) {
			resp.Record = &rec
		}
	case req.ResetPassword != nil:
		resp.ActionErr = inv.ResetPassword(ctx, *req.ResetPassword)
	}

	resp.Session = inv.Session()
	resp.Cookie = inv.Cookie()
	if resp.Session.Authenticated() {
		if rec, ok := inv.User(resp.Session.Username); ok {
			resp.User = &rec
		}
	}
	resp.PersistErr = inv.Finish(ctx)

	return resp, nil
}
