package authgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricSignUpSuccess counts password signups that created an identity.
	MetricSignUpSuccess MetricID = iota
	// MetricSignUpDuplicate counts signups rejected for an existing email.
	MetricSignUpDuplicate
	// MetricSignInSuccess counts password signins that minted a session.
	MetricSignInSuccess
	// MetricSignInFailure counts password signins rejected for credentials.
	MetricSignInFailure
	// MetricCodeCreated counts code challenges created.
	MetricCodeCreated
	// MetricCodeResent counts challenge resends.
	MetricCodeResent
	// MetricCodeConsumed counts successful code consumptions.
	MetricCodeConsumed
	// MetricCodeIncorrect counts wrong-code submissions.
	MetricCodeIncorrect
	// MetricCodeExpired counts expired-challenge submissions.
	MetricCodeExpired
	// MetricCodeRestart counts submissions that require a flow restart.
	MetricCodeRestart
	// MetricCodeRateLimited counts throttled creation and resend requests.
	MetricCodeRateLimited
	// MetricThirdPartySuccess counts completed federated signins.
	MetricThirdPartySuccess
	// MetricThirdPartyFailure counts failed federated exchanges.
	MetricThirdPartyFailure
	// MetricSessionCreated counts sessions minted.
	MetricSessionCreated
	// MetricSessionRevoked counts single-session revocations.
	MetricSessionRevoked
	// MetricSessionRevokedAll counts revoke-all sweeps.
	MetricSessionRevokedAll
	// MetricRefreshSuccess counts successful refresh rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes rejected for an invalid token.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts rotated-token replays.
	MetricRefreshReuseDetected
	// MetricValidateSuccess counts validations that passed.
	MetricValidateSuccess
	// MetricValidateFailure counts validations that failed.
	MetricValidateFailure
	// MetricValidateLatency is the histogram id for validation latency.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// Counters are padded to a cache line each so hot-path increments on
// different ids do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's in-process counters. All methods are safe for
// concurrent use and are no-ops on a nil or disabled receiver.
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

// NewMetrics builds a counter set from the configuration.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one validation latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram bucket.
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
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
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
