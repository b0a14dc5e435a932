package chamaWeb

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricHandshakeStarted counts initiations accepted by the remote system.
	MetricHandshakeStarted MetricID = iota
	// MetricInitiateFailure counts initiations refused or unreachable.
	MetricInitiateFailure
	// MetricInitiateRejected counts initiations rejected locally for bad input.
	MetricInitiateRejected
	// MetricInitiateRateLimited counts initiations blocked by the rate limiter.
	MetricInitiateRateLimited
	// MetricPollSent counts status requests issued.
	MetricPollSent
	// MetricPollPending counts pending answers.
	MetricPollPending
	// MetricPollTransportError counts polls that never reached the remote system.
	MetricPollTransportError
	// MetricHandshakeSucceeded counts handshakes that obtained a token.
	MetricHandshakeSucceeded
	// MetricHandshakeFailed counts handshakes that ended failed.
	MetricHandshakeFailed
	// MetricHandshakeExpired counts handshakes the remote system expired.
	MetricHandshakeExpired
	// MetricHandshakeTimeout counts handshakes stopped by the client-side ceiling.
	MetricHandshakeTimeout
	// MetricHandshakeCancelled counts handshakes released through Cancel.
	MetricHandshakeCancelled
	// MetricStaleResponseDiscarded counts responses that arrived after cancel or re-initiation.
	MetricStaleResponseDiscarded
	// MetricBootstrapNoToken counts bootstraps without a stored token.
	MetricBootstrapNoToken
	// MetricBootstrapValid counts bootstraps whose stored token verified.
	MetricBootstrapValid
	// MetricBootstrapCleared counts bootstraps that cleared a stored token.
	MetricBootstrapCleared
	// MetricPasswordLoginSuccess counts successful password logins.
	MetricPasswordLoginSuccess
	// MetricPasswordLoginFailure counts failed password logins.
	MetricPasswordLoginFailure
	// MetricSignupSuccess counts created accounts.
	MetricSignupSuccess
	// MetricSignupFailure counts failed signups.
	MetricSignupFailure
	// MetricHandshakeLatency is the initiation-to-token latency histogram.
	MetricHandshakeLatency
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

// Metrics is a fixed set of lock-free counters plus the handshake latency
// histogram. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics honoring cfg.
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

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only [MetricHandshakeLatency] has buckets.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricHandshakeLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histogram when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricHandshakeLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricHandshakeLatency].buckets[i])
		}
		s.Histograms[MetricHandshakeLatency] = buckets
	}

	return s
}

// Handshakes resolve in whole poll intervals, so buckets start at one interval.
func bucketIndex(d time.Duration) int {
	switch {
	case d <= 2*time.Second:
		return 0
	case d <= 5*time.Second:
		return 1
	case d <= 10*time.Second:
		return 2
	case d <= 20*time.Second:
		return 3
	case d <= 30*time.Second:
		return 4
	case d <= time.Minute:
		return 5
	case d <= 2*time.Minute:
		return 6
	default:
		return 7
	}
}
