package watchqueue

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/watchqueue/pkg/logger"
	"github.com/dmitrymomot/watchqueue/pkg/reclaim"
)

// Manager owns the engine-wide state: configuration, the reclamation domain
// shared by every queue and watch list it creates, and the slot storage budget.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	domain  *reclaim.Domain

	allocCheck AllocationCheck
	postCheck  PostCheck

	budgetUsed atomic.Int64
	closed     atomic.Bool

	attempts    atomic.Uint64
	drops       atomic.Uint64
	lastWarning atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the collectors the manager updates.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithAllocationCheck installs the hook consulted before a queue reserves storage.
func WithAllocationCheck(fn AllocationCheck) Option {
	return func(m *Manager) { m.allocCheck = fn }
}

// WithPostCheck installs the per-watch hook consulted while posting.
func WithPostCheck(fn PostCheck) Option {
	return func(m *Manager) { m.postCheck = fn }
}

// New creates a Manager. Zero limits in cfg fall back to the defaults; note
// that the zero Config is disabled, so start from DefaultConfig or LoadConfig.
func New(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg.normalized(),
		logger: slog.Default(),
		domain: reclaim.NewDomain(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("watchqueue"))
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// BufferInUse returns the slot storage reserved by queues not yet reclaimed.
func (m *Manager) BufferInUse() int64 {
	return m.budgetUsed.Load()
}

// Flush waits until every deferred reclamation queued so far, and any it
// queues in turn, has run.
func (m *Manager) Flush() {
	m.domain.Flush()
}

// Close rejects further control operations with ErrManagerClosed and flushes
// pending reclamation. Existing queues can still be read, closed and
// released; existing lists can still be posted to and destroyed.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.domain.Flush()
	m.domain.Close()
	m.logger.Debug("manager closed", slog.Uint64("reclaimed", m.domain.Reclaimed()))
	return nil
}

// gate is the single check every control entry point goes through.
func (m *Manager) gate() error {
	if !m.cfg.Enabled {
		return ErrFeatureDisabled
	}
	if m.closed.Load() {
		return ErrManagerClosed
	}
	return nil
}

func (m *Manager) reserve(size int64) bool {
	limit := m.cfg.BufferBudget
	for {
		used := m.budgetUsed.Load()
		if limit > 0 && used+size > limit {
			return false
		}
		if m.budgetUsed.CompareAndSwap(used, used+size) {
			return true
		}
	}
}

func (m *Manager) unreserve(size int64) {
	m.budgetUsed.Add(-size)
}

// deferReclaim runs fn after a grace period and counts it as reclaimed.
func (m *Manager) deferReclaim(fn func()) {
	m.domain.Defer(func() {
		fn()
		m.metrics.reclaimed()
	})
}

func (m *Manager) noteDrop(q *Queue) {
	m.drops.Add(1)
	m.metrics.dropped()
	m.maybeWarnDropRate(q)
}

// maybeWarnDropRate logs at most once per DropWarnInterval while the share of
// deliveries lost to full queues is at or above DropWarnThreshold.
func (m *Manager) maybeWarnDropRate(q *Queue) {
	threshold := m.cfg.DropWarnThreshold
	if threshold <= 0 {
		return
	}
	attempts := m.attempts.Load()
	if attempts == 0 {
		return
	}
	dropped := m.drops.Load()
	rate := float64(dropped) / float64(attempts)
	if rate < threshold {
		return
	}

	now := time.Now()
	last := m.lastWarning.Load()
	if last > 0 && now.Sub(time.Unix(0, last)) < m.cfg.DropWarnInterval {
		return
	}
	if !m.lastWarning.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	m.logger.Warn("notifications dropped",
		logger.QueueID(q.ID()),
		slog.Float64("drop_rate", rate),
		slog.Uint64("dropped", dropped),
		slog.Uint64("attempted", attempts),
	)
}
