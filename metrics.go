package dashauth

import (
	"time"

	internalmetrics "github.com/MrEthical07/dashauth/internal/metrics"
)

// MetricID identifies an engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess                = internalmetrics.MetricLoginSuccess
	MetricLoginFailure                = internalmetrics.MetricLoginFailure
	MetricLoginCookieRestored         = internalmetrics.MetricLoginCookieRestored
	MetricLoginRateLimited            = internalmetrics.MetricLoginRateLimited
	MetricCookieRejected              = internalmetrics.MetricCookieRejected
	MetricLogout                      = internalmetrics.MetricLogout
	MetricRegistrationSuccess         = internalmetrics.MetricRegistrationSuccess
	MetricRegistrationDuplicate       = internalmetrics.MetricRegistrationDuplicate
	MetricRegistrationRejected        = internalmetrics.MetricRegistrationRejected
	MetricProfileUpdateSuccess        = internalmetrics.MetricProfileUpdateSuccess
	MetricProfileUpdateDenied         = internalmetrics.MetricProfileUpdateDenied
	MetricPasswordResetSuccess        = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetInvalidOld     = internalmetrics.MetricPasswordResetInvalidOld
	MetricPasswordResetReuseRejected  = internalmetrics.MetricPasswordResetReuseRejected
	MetricPasswordResetPolicyRejected = internalmetrics.MetricPasswordResetPolicyRejected
	MetricStoreLoadFailure            = internalmetrics.MetricStoreLoadFailure
	MetricStoreSaveSuccess            = internalmetrics.MetricStoreSaveSuccess
	MetricStoreSaveFailure            = internalmetrics.MetricStoreSaveFailure
	// MetricInvocationLatency is histogram-only; it has no counter.
	MetricInvocationLatency = internalmetrics.MetricInvocationLatency
)

// Metrics holds the engine's counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics returns a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}
