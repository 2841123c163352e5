package store

import (
	"errors"
	"slices"
	"sort"
	"strings"
)

var (
	// ErrUserExists is returned by Insert when the username is already taken.
	ErrUserExists = errors.New("store: username already exists")
	// ErrUserNotFound is returned when a username has no record.
	ErrUserNotFound = errors.New("store: username not found")
)

// UserRecord is one account in the credential file. Field order matches
// the on-disk key order (email, name, password).
type UserRecord struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// CookiePolicy controls the signed session cookie.
type CookiePolicy struct {
	Name       string `yaml:"name"`
	Key        string `yaml:"key"`
	ExpiryDays int    `yaml:"expiry_days"`
}

// CredentialStore is the in-memory form of the credential file.
//
// A CredentialStore is owned by a single invocation and is not safe for
// concurrent use. Every mutation marks the store dirty; MarkClean is
// called by the persistence layer after a successful save.
type CredentialStore struct {
	users         map[string]UserRecord
	cookie        CookiePolicy
	preauthorized []string
	dirty         bool
}

// New returns an empty store with the given cookie policy.
func New(policy CookiePolicy) *CredentialStore {
	return &CredentialStore{
		users:  map[string]UserRecord{},
		cookie: policy,
	}
}

// CookiePolicy returns the cookie settings stored in the file.
func (s *CredentialStore) CookiePolicy() CookiePolicy {
	return s.cookie
}

// SetCookiePolicy replaces the cookie settings and marks the store dirty.
func (s *CredentialStore) SetCookiePolicy(policy CookiePolicy) {
	s.cookie = policy
	s.dirty = true
}

// User returns a copy of the record for username.
func (s *CredentialStore) User(username string) (UserRecord, bool) {
	rec, ok := s.users[username]
	return rec, ok
}

// Usernames returns all usernames in sorted order.
func (s *CredentialStore) Usernames() []string {
	out := make([]string, 0, len(s.users))
	for u := range s.users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of users.
func (s *CredentialStore) Len() int {
	return len(s.users)
}

// Insert adds a new user. Existing records are never overwritten.
func (s *CredentialStore) Insert(username string, rec UserRecord) error {
	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = rec
	s.dirty = true
	return nil
}

// Update applies fn to the stored record of username in place.
func (s *CredentialStore) Update(username string, fn func(*UserRecord)) (UserRecord, error) {
	rec, ok := s.users[username]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	fn(&rec)
	s.users[username] = rec
	s.dirty = true
	return rec, nil
}

// Preauthorized returns the stored registration allowlist.
func (s *CredentialStore) Preauthorized() []string {
	return slices.Clone(s.preauthorized)
}

// SetPreauthorized replaces the registration allowlist.
func (s *CredentialStore) SetPreauthorized(emails []string) {
	s.preauthorized = slices.Clone(emails)
	s.dirty = true
}

// IsPreauthorized reports whether email is on the stored allowlist.
// Comparison ignores case and surrounding whitespace.
func (s *CredentialStore) IsPreauthorized(email string) bool {
	return containsEmail(s.preauthorized, email)
}

// ConsumePreauthorized removes email from the stored allowlist once it has
// been used to register.
func (s *CredentialStore) ConsumePreauthorized(email string) {
	before := len(s.preauthorized)
	s.preauthorized = slices.DeleteFunc(s.preauthorized, func(e string) bool {
		return normalizeEmail(e) == normalizeEmail(email)
	})
	if len(s.preauthorized) != before {
		s.dirty = true
	}
}

// Dirty reports whether the store has unsaved mutations.
func (s *CredentialStore) Dirty() bool {
	return s.dirty
}

// MarkClean clears the dirty flag.
func (s *CredentialStore) MarkClean() {
	s.dirty = false
}

// ContainsEmail reports whether list contains email using the same
// comparison as the stored allowlist.
func ContainsEmail(list []string, email string) bool {
	return containsEmail(list, email)
}

func containsEmail(list []string, email string) bool {
	want := normalizeEmail(email)
	if want == "" {
		return false
	}
	for _, e := range list {
		if normalizeEmail(e) == want {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
