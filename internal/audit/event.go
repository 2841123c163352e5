package audit

import (
	"maps"
	"time"
)

// Kind names what happened. The set is closed: the engine only emits the
// kinds declared here.
type Kind string

const (
	LoginSuccess          Kind = "login_success"
	LoginFailure          Kind = "login_failure"
	LoginCookie           Kind = "login_cookie"
	LoginRateLimited      Kind = "login_rate_limited"
	Logout                Kind = "logout"
	RegistrationSuccess   Kind = "registration_success"
	RegistrationFailure   Kind = "registration_failure"
	RegistrationDuplicate Kind = "registration_duplicate"
	ProfileUpdateSuccess  Kind = "profile_update_success"
	ProfileUpdateDenied   Kind = "profile_update_denied"
	PasswordResetSuccess  Kind = "password_reset_success"
	PasswordResetFailure  Kind = "password_reset_failure"
	StoreSaveFailure      Kind = "store_save_failure"
)

var knownKinds = map[Kind]struct{}{
	LoginSuccess: {}, LoginFailure: {}, LoginCookie: {}, LoginRateLimited: {},
	Logout: {}, RegistrationSuccess: {}, RegistrationFailure: {},
	RegistrationDuplicate: {}, ProfileUpdateSuccess: {}, ProfileUpdateDenied: {},
	PasswordResetSuccess: {}, PasswordResetFailure: {}, StoreSaveFailure: {},
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// Event is one audit record.
//
// Subject is the account the operation touched. Actor is the logged-in
// user who asked for it and is only set when that is someone else, such
// as an admin resetting another user's password.
type Event struct {
	Time     time.Time         `json:"time"`
	Kind     Kind              `json:"kind"`
	Subject  string            `json:"subject,omitempty"`
	Actor    string            `json:"actor,omitempty"`
	RemoteIP string            `json:"remote_ip,omitempty"`
	OK       bool              `json:"ok"`
	Reason   string            `json:"reason,omitempty"`
	Detail   map[string]string `json:"detail,omitempty"`
}

// NewEvent builds an event for subject acting through actor. An actor
// equal to the subject is dropped.
func NewEvent(at time.Time, kind Kind, subject, actor string, ok bool) Event {
	ev := Event{Time: at.UTC(), Kind: kind, Subject: subject, OK: ok}
	if actor != subject {
		ev.Actor = actor
	}
	return ev
}

// WithDetail returns a copy of ev carrying detail. The map is copied so
// later changes by the caller are not seen by sinks.
func (ev Event) WithDetail(detail map[string]string) Event {
	if len(detail) == 0 {
		return ev
	}
	ev.Detail = maps.Clone(detail)
	return ev
}
