package internaldefs

import (
	finAuth "github.com/MrEthical07/finAuth"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   finAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram.
type HistogramDef struct {
	ID   finAuth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "finauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: finAuth.MetricLoginSuccess, Name: "finauth_login_success_total", Help: "Logins that stored a session."},
	{ID: finAuth.MetricLoginFailure, Name: "finauth_login_failure_total", Help: "Failed logins."},
	{ID: finAuth.MetricRegisterSuccess, Name: "finauth_register_success_total", Help: "Created accounts."},
	{ID: finAuth.MetricRegisterFailure, Name: "finauth_register_failure_total", Help: "Failed registrations."},
	{ID: finAuth.MetricRefreshSuccess, Name: "finauth_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: finAuth.MetricRefreshFailure, Name: "finauth_refresh_failure_total", Help: "Failed refresh exchanges."},
	{ID: finAuth.MetricRefreshCoalesced, Name: "finauth_refresh_coalesced_total", Help: "Callers that joined an in-flight refresh."},
	{ID: finAuth.MetricRequestDispatched, Name: "finauth_requests_total", Help: "Responses received by the gateway."},
	{ID: finAuth.MetricUnauthorizedReceived, Name: "finauth_unauthorized_total", Help: "401 responses received by the gateway."},
	{ID: finAuth.MetricRetry, Name: "finauth_retry_total", Help: "Calls retried after a refresh."},
	{ID: finAuth.MetricRetryRejected, Name: "finauth_retry_rejected_total", Help: "Retried calls still answered 401."},
	{ID: finAuth.MetricSessionExpired, Name: "finauth_session_expired_total", Help: "Sessions ended by a failed refresh."},
	{ID: finAuth.MetricNetworkError, Name: "finauth_network_error_total", Help: "Transport failures."},
	{ID: finAuth.MetricLogout, Name: "finauth_logout_total", Help: "Logouts."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: finAuth.MetricRequestLatency, Name: "finauth_request_latency_seconds", Help: "Gateway dispatch latency."},
	{ID: finAuth.MetricRefreshLatency, Name: "finauth_refresh_latency_seconds", Help: "Shared refresh latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
