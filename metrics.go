package finAuth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one client counter or latency histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that stored a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins that did not.
	MetricLoginFailure
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess
	// MetricRegisterFailure counts rejected or failed registrations.
	MetricRegisterFailure
	// MetricRefreshSuccess counts refresh exchanges that stored a new access token.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh exchanges that failed.
	MetricRefreshFailure
	// MetricRefreshCoalesced counts callers that waited on another caller's refresh.
	MetricRefreshCoalesced
	// MetricRequestDispatched counts responses received by the gateway.
	MetricRequestDispatched
	// MetricUnauthorizedReceived counts 401 responses.
	MetricUnauthorizedReceived
	// MetricRetry counts calls re-sent after a refresh.
	MetricRetry
	// MetricRetryRejected counts retried calls that still got 401.
	MetricRetryRejected
	// MetricSessionExpired counts sessions ended by a failed refresh.
	MetricSessionExpired
	// MetricNetworkError counts transport failures.
	MetricNetworkError
	// MetricLogout counts logouts.
	MetricLogout
	// MetricRequestLatency is the gateway dispatch latency histogram.
	MetricRequestLatency
	// MetricRefreshLatency is the shared refresh latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// accepts every call and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and, when latency
// histograms are on, the bucket counts per latency metric.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only latency metrics accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isLatencyMetric(id) {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricRequestLatency, MetricRefreshLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricRequestLatency || id == MetricRefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
