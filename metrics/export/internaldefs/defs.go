package internaldefs

import (
	"github.com/MrEthical07/dashauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   dashauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   dashauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: dashauth.MetricLoginSuccess, Name: "dashauth_login_success_total", Help: "Successful credential logins."},
	{ID: dashauth.MetricLoginFailure, Name: "dashauth_login_failure_total", Help: "Rejected credential logins."},
	{ID: dashauth.MetricLoginCookieRestored, Name: "dashauth_login_cookie_restored_total", Help: "Sessions restored from a valid cookie."},
	{ID: dashauth.MetricLoginRateLimited, Name: "dashauth_login_rate_limited_total", Help: "Logins refused by the failed-login throttle."},
	{ID: dashauth.MetricCookieRejected, Name: "dashauth_cookie_rejected_total", Help: "Presented cookies that were invalid or expired."},
	{ID: dashauth.MetricLogout, Name: "dashauth_logout_total", Help: "Logouts."},
	{ID: dashauth.MetricRegistrationSuccess, Name: "dashauth_registration_success_total", Help: "Registered accounts."},
	{ID: dashauth.MetricRegistrationDuplicate, Name: "dashauth_registration_duplicate_total", Help: "Registrations rejected for a taken username."},
	{ID: dashauth.MetricRegistrationRejected, Name: "dashauth_registration_rejected_total", Help: "Registrations rejected for any other reason."},
	{ID: dashauth.MetricProfileUpdateSuccess, Name: "dashauth_profile_update_success_total", Help: "Profile updates applied."},
	{ID: dashauth.MetricProfileUpdateDenied, Name: "dashauth_profile_update_denied_total", Help: "Profile updates refused."},
	{ID: dashauth.MetricPasswordResetSuccess, Name: "dashauth_password_reset_success_total", Help: "Passwords replaced."},
	{ID: dashauth.MetricPasswordResetInvalidOld, Name: "dashauth_password_reset_invalid_old_total", Help: "Password resets with a wrong current password."},
	{ID: dashauth.MetricPasswordResetReuseRejected, Name: "dashauth_password_reset_reuse_rejected_total", Help: "Password resets reusing the current password."},
	{ID: dashauth.MetricPasswordResetPolicyRejected, Name: "dashauth_password_reset_policy_rejected_total", Help: "Password resets failing the strength policy."},
	{ID: dashauth.MetricStoreLoadFailure, Name: "dashauth_store_load_failure_total", Help: "Credential store lock or load failures."},
	{ID: dashauth.MetricStoreSaveSuccess, Name: "dashauth_store_save_success_total", Help: "Credential store writes."},
	{ID: dashauth.MetricStoreSaveFailure, Name: "dashauth_store_save_failure_total", Help: "Failed credential store writes."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: dashauth.MetricInvocationLatency, Name: "dashauth_invocation_latency_seconds", Help: "Latency of a full load-to-save invocation."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "dashauth_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets pads or truncates raw to the engine bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
