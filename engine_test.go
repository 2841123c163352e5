package dashauth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/dashauth/password"
	"github.com/MrEthical07/dashauth/store"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

const testCookieKey = "dashboard-test-signing-key-0123456789"

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func testHasher(t *testing.T) *password.Argon2 {
	t.Helper()
	h, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

// memBackend keeps the serialized credential file in memory.
type memBackend struct {
	mu      sync.Mutex
	data    []byte
	loadErr error
	saveErr error
	saves   int
}

func (b *memBackend) Load(context.Context) (*store.CredentialStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return store.Unmarshal(b.data)
}

func (b *memBackend) Save(_ context.Context, s *store.CredentialStore) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if b.saveErr != nil {
		return b.saveErr
	}
	data, err := store.Marshal(s)
	if err != nil {
		return err
	}
	b.data = data
	s.MarkClean()
	return nil
}

func (b *memBackend) snapshot(t *testing.T) *store.CredentialStore {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := store.Unmarshal(b.data)
	if err != nil {
		t.Fatalf("unmarshal backend: %v", err)
	}
	return s
}

func (b *memBackend) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

func (b *memBackend) setSaveErr(err error) {
	b.mu.Lock()
	b.saveErr = err
	b.mu.Unlock()
}

// seedBackend holds admin/secret and bob/bobs-password.
func seedBackend(t *testing.T) *memBackend {
	t.Helper()
	h := testHasher(t)
	s := store.New(store.CookiePolicy{Name: "dashboard_cookie", Key: testCookieKey, ExpiryDays: 30})
	for _, u := range []struct{ username, name, email, pw string }{
		{"admin", "Admin", "a@x.com", "secret"},
		{"bob", "Bob", "bob@x.com", "bobs-password"},
	} {
		hash, err := h.Hash(u.pw)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if err := s.Insert(u.username, store.UserRecord{Email: u.email, Name: u.name, Password: hash}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	data, err := store.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &memBackend{data: data}
}

type testEngineOption func(*Builder)

func withConfig(mutate func(*Config)) testEngineOption {
	return func(b *Builder) {
		cfg := testConfig()
		mutate(&cfg)
		b.WithConfig(cfg)
	}
}

func newTestEngine(t *testing.T, backend store.Backend, opts ...testEngineOption) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	b := New().WithConfig(testConfig()).WithBackend(backend).WithClock(clock)
	for _, opt := range opts {
		opt(b)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(e.Close)
	return e, clock
}

func beginAs(t *testing.T, e *Engine, username, pw string) *Invocation {
	t.Helper()
	inv, err := e.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(func() { _ = inv.Finish(context.Background()) })
	if username == "" {
		return inv
	}
	s, err := inv.Login(context.Background(), LoginInput{Username: username, Password: pw})
	if err != nil || !s.Authenticated() {
		t.Fatalf("login %s: session=%+v err=%v", username, s, err)
	}
	return inv
}

func strPtr(s string) *string { return &s }

/*
====================================
LOGIN
====================================
*/

func TestLoginAdminScenario(t *testing.T) {
	backend := seedBackend(t)
	e, _ := newTestEngine(t, backend)
	ctx := context.Background()

	resp, err := e.Handle(ctx, Request{Login: LoginInput{Username: "admin", Password: "secret"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.LoginErr != nil {
		t.Fatalf("unexpected login error: %v", resp.LoginErr)
	}
	if resp.Session.Status != StatusAuthenticated || resp.Session.DisplayName != "Admin" {
		t.Fatalf("unexpected session: %+v", resp.Session)
	}
	if resp.Cookie.Action != CookieSet || resp.Cookie.Name != "dashboard_cookie" || resp.Cookie.Value == "" {
		t.Fatalf("expected cookie to be set, got %+v", resp.Cookie)
	}
	if !resp.Cookie.Expires.Equal(testEpoch.Add(30 * 24 * time.Hour)) {
		t.Fatalf("unexpected cookie expiry %v", resp.Cookie.Expires)
	}
	if resp.User == nil || resp.User.Email != "a@x.com" {
		t.Fatalf("expected current user record, got %+v", resp.User)
	}

	resp, err = e.Handle(ctx, Request{Login: LoginInput{Username: "admin", Password: "wrong"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !errors.Is(resp.LoginErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", resp.LoginErr)
	}
	if resp.Session.Status != StatusFailed || resp.Session.Username != "" {
		t.Fatalf("unexpected session: %+v", resp.Session)
	}
	if resp.Cookie.Action != CookieKeep {
		t.Fatalf("failed login must not touch the cookie, got %+v", resp.Cookie)
	}
	if resp.User != nil {
		t.Fatalf("failed login must not expose a record")
	}
}

func TestLoginWrongPasswordNeverMutatesStore(t *testing.T) {
	backend := seedBackend(t)
	e, _ := newTestEngine(t, backend)
	before := backend.bytes()

	for _, in := range []LoginInput{
		{Username: "admin", Password: "wrong"},
		{Username: "ghost", Password: "secret"},
		{Username: "bob", Password: ""},
	} {
		resp, err := e.Handle(context.Background(), Request{Login: in})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if !errors.Is(resp.LoginErr, ErrInvalidCredentials) {
			t.Fatalf("%+v: expected ErrInvalidCredentials, got %v", in, resp.LoginErr)
		}
	}

	if string(backend.bytes()) != string(before) {
		t.Fatalf("store changed after failed logins")
	}
}

func TestLoginWithoutInputStaysUnknown(t *testing.T) {
	e, _ := newTestEngine(t, seedBackend(t))

	resp, err := e.Handle(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Session.Status != StatusUnknown || resp.LoginErr != nil {
		t.Fatalf("unexpected result: session=%+v err=%v", resp.Session, resp.LoginErr)
	}
	if resp.Cookie.Action != CookieKeep {
		t.Fatalf("expected CookieKeep, got %v", resp.Cookie.Action)
	}
}

func TestLoginIsNoOpOnceDecided(t *testing.T) {
	e, _ := newTestEngine(t, seedBackend(t))
	ctx := context.Background()

	inv := beginAs(t, e, "", "")
	if _, err := inv.Login(ctx, LoginInput{Username: "admin", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	s, err := inv.Login(ctx, LoginInput{Username: "admin", Password: "secret"})
	if err != nil {
		t.Fatalf("second login should be a no-op, got %v", err)
	}
	if s.Status != StatusFailed {
		t.Fatalf("expected Failed to be terminal, got %v", s.Status)
	}

	inv = beginAs(t, e, "admin", "secret")
	s, err = inv.Login(ctx, LoginInput{Username: "bob", Password: "bobs-password"})
	if err != nil || s.Username != "admin" {
		t.Fatalf("expected admin session to stay, got %+v err=%v", s, err)
	}
}

func TestLoginAfterLogoutRunsAgain(t *testing.T) {
	e, _ := newTestEngine(t, seedBackend(t))
	ctx := context.Background()

	inv := beginAs(t, e, "admin", "secret")
	inv.Logout(ctx)
	if inv.Session().Status != StatusUnknown {
		t.Fatalf("expected Unknown after logout")
	}
	s, err := inv.Login(ctx, LoginInput{Username: "bob", Password: "bobs-password"})
	if err != nil || s.Username != "bob" {
		t.Fatalf("expected bob session, got %+v err=%v", s, err)
	}
}

func TestLoginLegacyBcryptHash(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	s := store.New(store.CookiePolicy{Name: "c", Key: testCookieKey, ExpiryDays: 1})
	if err := s.Insert("old", store.UserRecord{Name: "Old", Email: "o@x.com", Password: string(legacy)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	data, err := store.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	e, _ := newTestEngine(t, &memBackend{data: data})
	ctx := context.Background()

	resp, err := e.Handle(ctx, Request{Login: LoginInput{Username: "old", Password: "secret"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.Session.Authenticated() || resp.Session.DisplayName != "Old" {
		t.Fatalf("expected bcrypt login to succeed, got %+v err=%v", resp.Session, resp.LoginErr)
	}

	resp, err = e.Handle(ctx, Request{Login: LoginInput{Username: "old", Password: "wrong"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !errors.Is(resp.LoginErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", resp.LoginErr)
	}
}

func TestBeginLoadFailure(t *testing.T) {
	backend := &memBackend{loadErr: errors.New("disk gone")}
	e, _ := newTestEngine(t, backend, func(b *Builder) { b.WithMetricsEnabled(true) })

	_, err := e.Handle(context.Background(), Request{})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricStoreLoadFailure]; got != 1 {
		t.Fatalf("expected 1 load failure, got %d", got)
	}
}

func TestHandleRejectsSeveralActions(t *testing.T) {
	e, _ := newTestEngine(t, seedBackend(t))

	resp, err := e.Handle(context.Background(), Request{
		Login:         LoginInput{Username: "admin", Password: "secret"},
		Logout:        true,
		UpdateProfile: &ProfileUpdate{Username: "admin", DisplayName: strPtr("X")},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !errors.Is(resp.ActionErr, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", resp.ActionErr)
	}
	if !resp.Session.Authenticated() {
		t.Fatalf("login part should still apply")
	}
}

/*
====================================
COOKIE
====================================
*/

func TestCookieRestoresSessionWithinWindow(t *testing.T) {
	e, clock := newTestEngine(t, seedBackend(t))
	ctx := context.Background()

	resp, err := e.Handle(ctx, Request{Login: LoginInput{Username: "admin", Password: "secret"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	value := resp.Cookie.Value

	clock.Advance(29 * 24 * time.Hour)
	resp, err = e.Handle(ctx, Request{Login: LoginInput{Cookie: value}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Session.Status != StatusAuthenticated || resp.Session.DisplayName != "Admin" {
		t.Fatalf("expected cookie restore, got %+v", resp.Session)
	}
	if resp.Cookie.Action != CookieKeep {
		t.Fatalf("restored cookie must not be reissued, got %v", resp.Cookie.Action)
	}

	clock.Advance(2 * 24 * time.Hour)
	resp, err = e.Handle(ctx, Request{Login: LoginInput{Cookie: value}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Session.Status != StatusUnknown || resp.LoginErr != nil {
		t.Fatalf("expired cookie must degrade silently, got %+v err=%v", resp.Session, resp.LoginErr)
	}
	if resp.Cookie.Action != CookieClear {
		t.Fatalf("expected stale cookie to be cleared, got %v", resp.Cookie.Action)
	}
}

func TestInvalidCookieFallsThroughToCredentials(t *testing.T) {
	e, _ := newTestEngine(t, seedBackend(t))

	resp, err := e.Handle(context.Background(), Request{Login: LoginInput{
		Cookie:   "not-a-token",
		Username: "bob",
		Password: "bobs-password",
	}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Session.Username != "bob" || resp.LoginErr != nil {
		t.Fatalf("expected bob session, got %+v err=%v", resp.Session, resp.LoginErr)
	}
	if resp.Cookie.Action != CookieSet {
		t.Fatalf("expected a fresh cookie, got %v", resp.Cookie.Action)
	}
}

func TestCookieForRemovedUserIsIgnored(t *testing.T) {
	backend := seedBackend(t)
	e, _ := newTestEngine(t, backend)
	ctx := context.Background()

	resp, err := e.Handle(ctx, Request{Login: LoginInput{Username: "bob", Password: "bobs-password"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	value := resp.Cookie.Value

	s := store.New(backend.snapshot(t).CookiePolicy())
	data, err := store.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	backend.mu.Lock()
	backend.data = data
	backend.mu.Unlock()

	resp, err = e.Handle(ctx, Request{Login: LoginInput{Cookie: value}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Session.Authenticated() {
		t.Fatalf("cookie of a removed user must not authenticate")
	}
}

func TestCookiesDisabledWithZeroExpiry(t *testing.T) {
	h := testHasher(t)
	hash, err := h.Hash("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s := store.New(store.CookiePolicy{Name: "c", Key: testCookieKey, ExpiryDays: 0})
	if err := s.Insert("admin", store.UserRecord{Name: "Admin", Email: "a@x.com", Password: hash}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	data, err := store.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	e, _ := newTestEngine(t, &memBackend{data: data})

	resp, err := e.Handle(context.Background(), Request{Login: LoginInput{Username: "admin", Password: "secret"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !resp.Session.Authenticated() {
		t.Fatalf("credential login must work without cookies")
	}
	if resp.Cookie.Action != CookieKeep {
		t.Fatalf("expected no cookie, got %+v", resp.Cookie)
	}
}

func TestStrongCookieKeyRequired(t *testing.T) {
	s := store.New(store.CookiePolicy{Name: "c", Key: "short", ExpiryDays: 30})
	data, err := store.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	e, _ := newTestEngine(t, &memBackend{data: data}, withConfig(func(c *Config) {
		c.Security.RequireStrongCookieKey = true
	}))

	if _, err := e.Begin(context.Background()); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable for weak key, got %v", err)
	}
}

func TestOverflowingCookieExpiryRejected(t *testing.T) {
	s := store.New(store.CookiePolicy{Name: "c", Key: testCookieKey, ExpiryDays: 200000})
	data, err := store.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	e, _ := newTestEngine(t, &memBackend{data: data})

	_, err = e.Handle(context.Background(), Request{Login: LoginInput{Username: "admin", Password: "secret"}})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable for expiry_days beyond range, got %v", err)
	}
}

/*
====================================
LOGOUT
====================================
*/

func TestLogoutClearsCookie(t *testing.T) {
	e, _ := newTestEngine(t, seedBackend(t))
	ctx := context.Background()

	resp, err := e.Handle(ctx, Request{Login: LoginInput{Username: "admin", Password: "secret"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	resp, err = e.Handle(ctx, Request{Login: LoginInput{Cookie: resp.Cookie.Value}, Logout: true})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Session.Status != StatusUnknown {
		t.Fatalf("expected Unknown, got %v", resp.Session.Status)
	}
	if resp.Cookie.Action != CookieClear || resp.Cookie.Name != "dashboard_cookie" {
		t.Fatalf("expected cookie clear, got %+v", resp.Cookie)
	}
	if resp.User != nil {
		t.Fatalf("logged out response must not carry a user")
	}
}

func TestLogoutWhenAnonymousIsNoOp(t *testing.T) {
	e, _ := newTestEngine(t, seedBackend(t))

	resp, err := e.Handle(context.Background(), Request{Logout: true})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Cookie.Action != CookieKeep || resp.ActionErr != nil {
		t.Fatalf("expected no-op, got %+v err=%v", resp.Cookie, resp.ActionErr)
	}
}

func TestHandleWithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	seed := seedBackend(t).snapshot(t)
	if err := store.NewFileBackend(path).Save(context.Background(), seed); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	e, err := New().WithConfig(testConfig()).WithFile(path).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	resp, err := e.Handle(context.Background(), Request{Register: &RegisterRequest{
		Username: "hank", DisplayName: "Hank", Email: "h@x.com", Password: "hanks-password",
	}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.ActionErr != nil || resp.PersistErr != nil {
		t.Fatalf("unexpected errors: action=%v persist=%v", resp.ActionErr, resp.PersistErr)
	}

	loaded, err := store.NewFileBackend(path).Load(context.Background())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := loaded.User("hank"); !ok {
		t.Fatal("new user missing from file")
	}
	if _, err := os.Stat(store.LockPathFor(path)); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}
}
