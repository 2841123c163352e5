package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() CookiePolicy {
	return CookiePolicy{Name: "dashboard_cookie", Key: "signing-key", ExpiryDays: 30}
}

func TestMarshalLayout(t *testing.T) {
	s := New(testPolicy())
	require.NoError(t, s.Insert("admin", UserRecord{Email: "a@x.com", Name: "Admin", Password: "hash-a"}))

	out, err := Marshal(s)
	require.NoError(t, err)

	want := "credentials:\n" +
		"  usernames:\n" +
		"    admin:\n" +
		"      email: a@x.com\n" +
		"      name: Admin\n" +
		"      password: hash-a\n" +
		"cookie:\n" +
		"  name: dashboard_cookie\n" +
		"  key: signing-key\n" +
		"  expiry_days: 30\n"
	assert.Equal(t, want, string(out))
}

func TestRoundTripIsByteIdentical(t *testing.T) {
	many := New(testPolicy())
	for i := 0; i < 40; i++ {
		u := fmt.Sprintf("user%02d", i)
		require.NoError(t, many.Insert(u, UserRecord{
			Email:    u + "@example.com",
			Name:     "User " + u,
			Password: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		}))
	}

	withAllowlist := New(testPolicy())
	require.NoError(t, withAllowlist.Insert("admin", UserRecord{Email: "a@x.com", Name: "Admin", Password: "h"}))
	withAllowlist.SetPreauthorized([]string{"new@x.com", "other@x.com"})

	one := New(testPolicy())
	require.NoError(t, one.Insert("admin", UserRecord{Email: "a@x.com", Name: "Admin", Password: "h"}))

	tests := []struct {
		name  string
		store *CredentialStore
	}{
		{name: "zero users", store: New(testPolicy())},
		{name: "one user", store: one},
		{name: "many users", store: many},
		{name: "allowlist", store: withAllowlist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, err := Marshal(tt.store)
			require.NoError(t, err)

			parsed, err := Unmarshal(first)
			require.NoError(t, err)
			assert.Equal(t, tt.store.Len(), parsed.Len())

			second, err := Marshal(parsed)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestUnmarshalToleratesMissingUsernames(t *testing.T) {
	inputs := map[string]string{
		"empty document":      "",
		"no credentials":      "cookie:\n  name: c\n  key: k\n  expiry_days: 1\n",
		"null usernames":      "credentials:\n  usernames:\ncookie:\n  name: c\n",
		"empty usernames map": "credentials:\n  usernames: {}\n",
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			s, err := Unmarshal([]byte(in))
			require.NoError(t, err)
			assert.Equal(t, 0, s.Len())

			// A store read this way must still accept inserts.
			require.NoError(t, s.Insert("x", UserRecord{Name: "X"}))
		})
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, err := Unmarshal([]byte("credentials: [unclosed"))
	require.Error(t, err)
}

func TestInsertDuplicateKeepsExistingRecord(t *testing.T) {
	s := New(testPolicy())
	orig := UserRecord{Email: "a@x.com", Name: "Admin", Password: "h1"}
	require.NoError(t, s.Insert("admin", orig))
	s.MarkClean()

	err := s.Insert("admin", UserRecord{Email: "evil@x.com", Name: "Evil", Password: "h2"})
	require.ErrorIs(t, err, ErrUserExists)

	got, ok := s.User("admin")
	require.True(t, ok)
	assert.Equal(t, orig, got)
	assert.False(t, s.Dirty())
}

func TestUpdate(t *testing.T) {
	s := New(testPolicy())
	require.NoError(t, s.Insert("admin", UserRecord{Email: "a@x.com", Name: "Admin"}))
	s.MarkClean()

	rec, err := s.Update("admin", func(r *UserRecord) { r.Email = "b@x.com" })
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", rec.Email)
	assert.True(t, s.Dirty())

	_, err = s.Update("ghost", func(*UserRecord) {})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestPreauthorizedAllowlist(t *testing.T) {
	s := New(testPolicy())
	s.SetPreauthorized([]string{"New@X.com", "other@x.com"})
	s.MarkClean()

	assert.True(t, s.IsPreauthorized(" new@x.com "))
	assert.False(t, s.IsPreauthorized("stranger@x.com"))
	assert.False(t, s.IsPreauthorized(""))

	s.ConsumePreauthorized("new@x.com")
	assert.True(t, s.Dirty())
	assert.Equal(t, []string{"other@x.com"}, s.Preauthorized())

	s.MarkClean()
	s.ConsumePreauthorized("stranger@x.com")
	assert.False(t, s.Dirty())
}

func TestSetCookiePolicyMarksDirty(t *testing.T) {
	s := New(testPolicy())
	assert.False(t, s.Dirty())

	rotated := testPolicy()
	rotated.Key = "another-signing-key-0123456789abcdef"
	s.SetCookiePolicy(rotated)
	assert.True(t, s.Dirty())
	assert.Equal(t, rotated, s.CookiePolicy())
}

func TestUsernamesSorted(t *testing.T) {
	s := New(testPolicy())
	for _, u := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.Insert(u, UserRecord{}))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, s.Usernames())
}
