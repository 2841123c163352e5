package dashauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/dashauth/cookie"
	internalaudit "github.com/MrEthical07/dashauth/internal/audit"
	"github.com/MrEthical07/dashauth/internal/rate"
	"github.com/MrEthical07/dashauth/password"
	"github.com/MrEthical07/dashauth/store"
	"go.uber.org/zap"
)

// Invocation is one load-to-save run against the credential store. It
// exclusively owns the loaded store and the session until Finish.
//
// An Invocation is not safe for concurrent use.
type Invocation struct {
	engine    *Engine
	store     *store.CredentialStore
	cookies   *cookie.Manager
	session   Session
	directive CookieDirective
	release   store.ReleaseFunc
	finished  bool
}

func (e *Engine) cookieManager(policy store.CookiePolicy) (*cookie.Manager, error) {
	m, err := cookie.NewManager(cookie.Config{
		Name:         policy.Name,
		Key:          []byte(policy.Key),
		ExpiryDays:   policy.ExpiryDays,
		MaxFutureIAT: e.config.Security.CookieMaxFutureIAT,
	}, e.clock)
	if errors.Is(err, cookie.ErrMissingKey) {
		e.logger.Warn("cookie signing key is empty; session cookies disabled")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if m.WeakKey() {
		if e.config.Security.RequireStrongCookieKey {
			return nil, errors.Join(ErrStoreUnavailable,
				fmt.Errorf("cookie signing key shorter than %d bytes", cookie.MinKeyBytes))
		}
		if e.weakKeyWarned.CompareAndSwap(false, true) {
			e.logger.Warn("cookie signing key is shorter than recommended",
				zap.Int("min_bytes", cookie.MinKeyBytes))
		}
	}
	return m, nil
}

/*
====================================
LOGIN / LOGOUT
====================================
*/

// Login moves an Unknown session to Authenticated or Failed.
//
// A valid cookie authenticates without a password. An invalid or expired
// cookie is ignored and the submitted credentials, if any, are checked.
// With neither, the session stays Unknown and the error is nil. Once the
// session has left Unknown further calls return it unchanged.
func (inv *Invocation) Login(ctx context.Context, in LoginInput) (Session, error) {
	if inv.finished {
		return inv.session, ErrInvocationFinished
	}
	if inv.session.Status != StatusUnknown {
		return inv.session, nil
	}
	e := inv.engine

	if in.Cookie != "" {
		if s, ok := inv.restoreFromCookie(ctx, in.Cookie); ok {
			return s, nil
		}
	}

	if !in.HasCredentials() {
		return inv.session, nil
	}

	ip := clientIPFromContext(ctx)
	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, in.Username, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				inv.session = Session{Status: StatusFailed}
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, internalaudit.LoginRateLimited, false, in.Username, "", ErrLoginRateLimited, nil)
				return inv.session, ErrLoginRateLimited
			}
			e.logger.Warn("login throttle unavailable", zap.Error(err))
		}
	}

	rec, found := inv.store.User(in.Username)
	hash := e.dummyHash
	if found {
		hash = rec.Password
	}
	ok, err := e.passwordHash.Verify(in.Password, hash)
	if err != nil {
		e.logger.Warn("stored password hash unreadable",
			zap.String("username", in.Username), zap.Error(err))
	}
	if !found || !ok || err != nil {
		inv.session = Session{Status: StatusFailed}
		inv.recordLoginFailure(ctx, in.Username, ip)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, internalaudit.LoginFailure, false, in.Username, "", ErrInvalidCredentials, nil)
		return inv.session, ErrInvalidCredentials
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, in.Username); err != nil {
			e.logger.Warn("login throttle reset failed", zap.Error(err))
		}
	}

	inv.session = Session{
		Username:    in.Username,
		DisplayName: rec.Name,
		Status:      StatusAuthenticated,
	}
	inv.issueCookie(in.Username)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, internalaudit.LoginSuccess, true, in.Username, "", nil, nil)

	return inv.session, nil
}

func (inv *Invocation) restoreFromCookie(ctx context.Context, value string) (Session, bool) {
	e := inv.engine
	if inv.cookies == nil || !inv.cookies.Enabled() {
		return Session{}, false
	}

	claims, err := inv.cookies.Parse(value)
	if err == nil {
		rec, found := inv.store.User(claims.Username())
		if found {
			inv.session = Session{
				Username:    claims.Username(),
				DisplayName: rec.Name,
				Status:      StatusAuthenticated,
			}
			e.metricInc(MetricLoginCookieRestored)
			e.emitAudit(ctx, internalaudit.LoginCookie, true, claims.Username(), "", nil, nil)
			return inv.session, true
		}
		err = fmt.Errorf("cookie subject %q has no record", claims.Username())
	}

	e.metricInc(MetricCookieRejected)
	e.logger.Debug("session cookie ignored", zap.Error(errors.Join(ErrCookieInvalid, err)))
	inv.directive = CookieDirective{Action: CookieClear, Name: inv.cookies.Name()}
	return Session{}, false
}

func (inv *Invocation) recordLoginFailure(ctx context.Context, username, ip string) {
	if inv.engine.rateLimiter == nil {
		return
	}
	err := inv.engine.rateLimiter.IncrementLogin(ctx, username, ip)
	if err != nil && !errors.Is(err, rate.ErrRateLimited) {
		inv.engine.logger.Warn("login throttle increment failed", zap.Error(err))
	}
}

func (inv *Invocation) issueCookie(username string) {
	if inv.cookies == nil || !inv.cookies.Enabled() {
		return
	}
	tok, err := inv.cookies.Issue(username)
	if err != nil {
		inv.engine.logger.Warn("session cookie not issued", zap.Error(err))
		return
	}
	inv.directive = CookieDirective{
		Action:  CookieSet,
		Name:    inv.cookies.Name(),
		Value:   tok.Value,
		Expires: tok.ExpiresAt,
	}
}

// Logout resets an authenticated session to Unknown and asks the host to
// clear the cookie. It is a no-op otherwise.
func (inv *Invocation) Logout(ctx context.Context) {
	if inv.finished || !inv.session.Authenticated() {
		return
	}
	username := inv.session.Username
	inv.session = Session{Status: StatusUnknown}

	name := ""
	if inv.cookies != nil {
		name = inv.cookies.Name()
	}
	inv.directive = CookieDirective{Action: CookieClear, Name: name}

	inv.engine.metricInc(MetricLogout)
	inv.engine.emitAudit(ctx, internalaudit.Logout, true, username, "", nil, nil)
}

/*
====================================
REGISTRATION
====================================
*/

// Register adds a new account. The existing record of a taken username is
// never modified.
//
// When eager persistence is enabled and the immediate save fails, the new
// record is returned together with an error wrapping ErrStorePersistence.
func (inv *Invocation) Register(ctx context.Context, req RegisterRequest) (UserRecord, error) {
	if inv.finished {
		return UserRecord{}, ErrInvocationFinished
	}
	e := inv.engine
	cfg := e.config.Account
	actor := inv.session.Username

	fail := func(err error) (UserRecord, error) {
		eventType := internalaudit.RegistrationFailure
		if errors.Is(err, ErrDuplicateUsername) {
			eventType = internalaudit.RegistrationDuplicate
			e.metricInc(MetricRegistrationDuplicate)
		} else {
			e.metricInc(MetricRegistrationRejected)
		}
		e.emitAudit(ctx, eventType, false, req.Username, actor, err, nil)
		return UserRecord{}, err
	}

	if strings.TrimSpace(req.Username) == "" ||
		strings.TrimSpace(req.DisplayName) == "" ||
		strings.TrimSpace(req.Email) == "" {
		return fail(fmt.Errorf("%w: username, name and email are required", ErrInvalidInput))
	}

	if cfg.AdminOnlyRegistration {
		if !inv.session.Authenticated() || inv.session.Username != cfg.AdminUsername {
			return fail(ErrUnauthorized)
		}
	}

	if _, exists := inv.store.User(req.Username); exists {
		return fail(ErrDuplicateUsername)
	}

	if req.Preauthorized != nil && !store.ContainsEmail(req.Preauthorized, req.Email) {
		return fail(ErrNotPreauthorized)
	}
	if cfg.RequirePreauthorized && !inv.store.IsPreauthorized(req.Email) {
		return fail(ErrNotPreauthorized)
	}

	if err := e.policy.Check(req.Password); err != nil {
		return fail(errors.Join(ErrWeakPassword, err))
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) || errors.Is(err, password.ErrEmptyPassword) {
			return fail(errors.Join(ErrWeakPassword, err))
		}
		return fail(fmt.Errorf("hash password: %w", err))
	}

	rec := UserRecord{
		Email:    req.Email,
		Name:     req.DisplayName,
		Password: hash,
	}
	if err := inv.store.Insert(req.Username, rec); err != nil {
		return fail(ErrDuplicateUsername)
	}
	if cfg.RequirePreauthorized && cfg.ConsumePreauthorized {
		inv.store.ConsumePreauthorized(req.Email)
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, internalaudit.RegistrationSuccess, true, req.Username, actor, nil, nil)

	if err := inv.persistEager(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}

/*
====================================
PROFILE
====================================
*/

// UpdateProfile changes the display name and/or email of the caller's own
// record. A display name change is reflected in the current session.
func (inv *Invocation) UpdateProfile(ctx context.Context, upd ProfileUpdate) (UserRecord, error) {
	if inv.finished {
		return UserRecord{}, ErrInvocationFinished
	}
	e := inv.engine
	actor := inv.session.Username

	deny := func(err error) (UserRecord, error) {
		e.metricInc(MetricProfileUpdateDenied)
		e.emitAudit(ctx, internalaudit.ProfileUpdateDenied, false, upd.Username, actor, err, nil)
		return UserRecord{}, err
	}

	if !inv.session.Authenticated() {
		return deny(ErrUnauthorized)
	}
	current, found := inv.store.User(upd.Username)
	if !found {
		return deny(ErrNotFound)
	}
	if actor != upd.Username {
		return deny(ErrUnauthorized)
	}
	if upd.DisplayName != nil && strings.TrimSpace(*upd.DisplayName) == "" {
		return deny(fmt.Errorf("%w: name must not be empty", ErrInvalidInput))
	}
	if upd.Email != nil && strings.TrimSpace(*upd.Email) == "" {
		return deny(fmt.Errorf("%w: email must not be empty", ErrInvalidInput))
	}
	if upd.DisplayName == nil && upd.Email == nil {
		return current, nil
	}

	changed := make([]string, 0, 2)
	rec, err := inv.store.Update(upd.Username, func(r *UserRecord) {
		if upd.DisplayName != nil {
			r.Name = *upd.DisplayName
			changed = append(changed, "name")
		}
		if upd.Email != nil {
			r.Email = *upd.Email
			changed = append(changed, "email")
		}
	})
	if err != nil {
		return deny(ErrNotFound)
	}
	inv.session.DisplayName = rec.Name

	e.metricInc(MetricProfileUpdateSuccess)
	e.emitAudit(ctx, internalaudit.ProfileUpdateSuccess, true, upd.Username, actor, nil, func() map[string]string {
		return map[string]string{"fields": strings.Join(changed, ",")}
	})

	if err := inv.persistEager(ctx); err != nil {
		return rec, err
	}
	return rec, nil
}

/*
====================================
PASSWORD RESET
====================================
*/

// ResetPassword replaces the caller's password after verifying the current
// one. The session must be authenticated as the target user.
func (inv *Invocation) ResetPassword(ctx context.Context, req PasswordReset) error {
	if inv.finished {
		return ErrInvocationFinished
	}
	e := inv.engine
	actor := inv.session.Username

	fail := func(err error, ids ...MetricID) error {
		for _, id := range ids {
			e.metricInc(id)
		}
		e.emitAudit(ctx, internalaudit.PasswordResetFailure, false, req.Username, actor, err, nil)
		return err
	}

	if !inv.session.Authenticated() || actor != req.Username {
		return fail(ErrUnauthorized)
	}

	rec, found := inv.store.User(req.Username)
	hash := e.dummyHash
	if found {
		hash = rec.Password
	}
	ok, err := e.passwordHash.Verify(req.OldPassword, hash)
	if !found || !ok || err != nil {
		return fail(ErrInvalidCredentials, MetricPasswordResetInvalidOld)
	}

	if err := e.policy.Check(req.NewPassword); err != nil {
		return fail(errors.Join(ErrWeakPassword, err), MetricPasswordResetPolicyRejected)
	}
	if subtle.ConstantTimeCompare([]byte(req.OldPassword), []byte(req.NewPassword)) == 1 {
		return fail(ErrSamePassword, MetricPasswordResetReuseRejected)
	}

	newHash, err := e.passwordHash.Hash(req.NewPassword)
	if err != nil {
		return fail(fmt.Errorf("hash password: %w", err))
	}
	if _, err := inv.store.Update(req.Username, func(r *UserRecord) {
		r.Password = newHash
	}); err != nil {
		return fail(ErrInvalidCredentials)
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, req.Username); err != nil {
			e.logger.Warn("login throttle reset failed", zap.Error(err))
		}
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, internalaudit.PasswordResetSuccess, true, req.Username, actor, nil, nil)

	return inv.persistEager(ctx)
}

/*
====================================
READS
====================================
*/

// Session returns the current session.
func (inv *Invocation) Session() Session {
	return inv.session
}

// Cookie returns what the host should do with the browser cookie.
func (inv *Invocation) Cookie() CookieDirective {
	return inv.directive
}

// User looks up a record for display.
func (inv *Invocation) User(username string) (UserRecord, bool) {
	return inv.store.User(username)
}

/*
====================================
PERSISTENCE
====================================
*/

func (inv *Invocation) persistEager(ctx context.Context) error {
	if !inv.engine.config.Persistence.Eager {
		return nil
	}
	return inv.save(ctx)
}

func (inv *Invocation) save(ctx context.Context) error {
	e := inv.engine
	if err := e.backend.Save(ctx, inv.store); err != nil {
		e.metricInc(MetricStoreSaveFailure)
		return errors.Join(ErrStorePersistence, err)
	}
	e.metricInc(MetricStoreSaveSuccess)
	return nil
}

// Finish saves the store unconditionally and releases the write lock.
// Calling it again is a no-op.
//
// A save failure is returned wrapping ErrStorePersistence when the session
// is authenticated or anonymous failures are not suppressed; otherwise it
// is only logged.
func (inv *Invocation) Finish(ctx context.Context) error {
	if inv.finished {
		return nil
	}
	inv.finished = true
	e := inv.engine
	ctx = context.WithoutCancel(ctx)
	defer e.releaseLock(ctx, inv.release)

	err := inv.save(ctx)
	if err == nil {
		return nil
	}

	e.emitAudit(ctx, internalaudit.StoreSaveFailure, false, inv.session.Username, "", err, nil)
	if inv.session.Authenticated() || !e.config.Persistence.SuppressAnonymousFailures {
		e.logger.Error("credential store save failed", zap.Error(err))
		return err
	}
	e.logger.Warn("credential store save failed for anonymous session", zap.Error(err))
	return nil
}
