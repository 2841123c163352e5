package dashauth

import (
	"fmt"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/dashauth/internal/audit"
	"github.com/MrEthical07/dashauth/store"
)

// Status is the authentication state of a Session.
type Status uint8

const (
	// StatusUnknown means no login has been attempted or the user logged out.
	StatusUnknown Status = iota
	// StatusAuthenticated means credentials or a valid cookie were accepted.
	StatusAuthenticated
	// StatusFailed means the last credential attempt was rejected.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "authenticated":
		*s = StatusAuthenticated
	case "failed":
		*s = StatusFailed
	case "unknown":
		*s = StatusUnknown
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, text)
	}
	return nil
}

// Session is the per-invocation authentication result.
type Session struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"name,omitempty"`
	Status      Status `json:"status"`
}

// Authenticated reports whether the session carries a verified identity.
func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Username != ""
}

// UserRecord is the stored account data for one username.
type UserRecord = store.UserRecord

// CookiePolicy is the cookie section of the credential file.
type CookiePolicy = store.CookiePolicy

// LoginInput carries whatever the caller presented. Either part may be empty.
type LoginInput struct {
	Cookie   string
	Username string
	Password string
}

// HasCredentials reports whether a username/password pair was submitted.
func (in LoginInput) HasCredentials() bool {
	return in.Username != "" || in.Password != ""
}

// RegisterRequest creates a new account.
//
// Preauthorized, when non-nil, is an allowlist the email must appear in.
// It is checked in addition to the stored allowlist when
// Account.RequirePreauthorized is enabled.
type RegisterRequest struct {
	Username      string
	DisplayName   string
	Email         string
	Password      string
	Preauthorized []string
}

// ProfileUpdate changes display name and/or email. Nil fields are left as is.
type ProfileUpdate struct {
	Username    string
	DisplayName *string
	Email       *string
}

// PasswordReset replaces a password after verifying the current one.
type PasswordReset struct {
	Username    string
	OldPassword string
	NewPassword string
}

// CookieAction says what the host should do with the browser cookie.
type CookieAction uint8

const (
	// CookieKeep leaves the browser cookie untouched.
	CookieKeep CookieAction = iota
	// CookieSet stores Value until Expires.
	CookieSet
	// CookieClear deletes the cookie.
	CookieClear
)

// CookieDirective is the only externally visible effect of login and logout.
type CookieDirective struct {
	Action  CookieAction
	Name    string
	Value   string
	Expires time.Time
}

// AuditEvent is one audit record.
type AuditEvent = internalaudit.Event

// AuditKind names the operation an AuditEvent records.
type AuditKind = internalaudit.Kind

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.Discard

// ChannelSink buffers audit events in a channel, mostly for tests.
type ChannelSink = internalaudit.Queue

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.LineWriter

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewQueue(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewLineWriter(w)
}
