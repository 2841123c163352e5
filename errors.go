package dashauth

import "errors"

var (
	// ErrInvalidCredentials is returned when a username is unknown or the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateUsername is returned by Register when the username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrNotPreauthorized is returned by Register when the email is not on the allowlist.
	ErrNotPreauthorized = errors.New("email not preauthorized")
	// ErrNotFound is returned when an operation targets a username with no record.
	ErrNotFound = errors.New("user not found")
	// ErrUnauthorized is returned when the caller is not allowed to perform the operation.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSamePassword is returned by ResetPassword when the new password equals the old one.
	ErrSamePassword = errors.New("new password must be different from current password")
	// ErrWeakPassword is returned when a new password violates the password policy.
	ErrWeakPassword = errors.New("password policy violation")
	// ErrStorePersistence wraps any failure to write the credential file.
	ErrStorePersistence = errors.New("credential store persistence failed")
	// ErrCookieInvalid marks a presented cookie that was not trusted. Login
	// never returns it; it only appears in logs and audit metadata.
	ErrCookieInvalid = errors.New("session cookie invalid")
	// ErrInvalidInput is returned for empty or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLoginRateLimited is returned when too many failed logins were recorded.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrStoreUnavailable is returned when the credential file cannot be locked or loaded.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrInvocationFinished is returned by operations on an invocation after Finish.
	ErrInvocationFinished = errors.New("invocation already finished")
	// ErrEngineNotReady is returned when a nil or unbuilt engine is used.
	ErrEngineNotReady = errors.New("engine not initialized")
)
