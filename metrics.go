package authcore

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	// MetricRegisterSuccess counts created accounts.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts registrations rejected for a taken address.
	MetricRegisterDuplicate
	// MetricRegisterRejected counts registrations rejected by validation.
	MetricRegisterRejected
	// MetricEmailVerifySuccess counts activated accounts.
	MetricEmailVerifySuccess
	// MetricEmailVerifyFailure counts rejected verification tokens.
	MetricEmailVerifyFailure
	// MetricLoginSuccess counts fully authenticated password logins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected credentials.
	MetricLoginFailure
	// MetricLoginInactive counts logins blocked on unverified accounts.
	MetricLoginInactive
	// MetricChallengeIssued counts 2FA challenges created at login.
	MetricChallengeIssued
	// MetricChallengeSuccess counts challenges satisfied by a second factor.
	MetricChallengeSuccess
	// MetricChallengeFailure counts wrong second-factor codes.
	MetricChallengeFailure
	// MetricChallengeExpired counts submissions against dead challenges.
	MetricChallengeExpired
	// MetricChallengeReplay counts replayed TOTP codes.
	MetricChallengeReplay
	// MetricBackupCodeUsed counts consumed recovery codes.
	MetricBackupCodeUsed
	// MetricBackupCodesRegenerated counts regenerated recovery batches.
	MetricBackupCodesRegenerated
	// MetricBackupCodesPurged counts rows removed by the purge task.
	MetricBackupCodesPurged
	// MetricTwoFactorEnabled counts completed 2FA setups.
	MetricTwoFactorEnabled
	// MetricTwoFactorDisabled counts 2FA teardowns.
	MetricTwoFactorDisabled
	// MetricPasswordChanged counts in-session password changes.
	MetricPasswordChanged
	// MetricPasswordResetRequested counts reset mails enqueued.
	MetricPasswordResetRequested
	// MetricPasswordResetRedeemed counts completed token resets.
	MetricPasswordResetRedeemed
	// MetricPasswordResetFailure counts rejected reset tokens.
	MetricPasswordResetFailure
	// MetricSessionRejected counts session identities that failed validation.
	MetricSessionRejected
	// MetricEmailEnqueued counts mail jobs handed to the queue.
	MetricEmailEnqueued
	// MetricEmailEnqueueFailure counts mail jobs the queue refused.
	MetricEmailEnqueueFailure
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. All methods are safe on a
// nil receiver so disabled metrics cost a single branch.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics constructs the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
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

// Add adds n to the counter.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Returns empty maps when disabled so
// exporters need no nil checks.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
