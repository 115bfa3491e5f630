package watchqueue

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/watchqueue/pkg/logger"
	"github.com/dmitrymomot/watchqueue/pkg/notification"
)

// WatchList is the resource side: the set of watches subscribed to one
// resource. Posting reads a copy-on-write snapshot and never takes the list
// lock, so it does not serialize against add or remove.
type WatchList struct {
	m       *Manager
	release func(*Watch)
	check   AccessCheck

	mu        sync.Mutex
	nextID    uint64
	destroyed bool

	watches atomic.Pointer[[]*Watch]
}

// ListOption configures NewWatchList.
type ListOption func(*WatchList)

// WithAccessCheck sets the check applied to the credential passed to AddWatch.
func WithAccessCheck(fn AccessCheck) ListOption {
	return func(l *WatchList) { l.check = fn }
}

// NewWatchList creates an empty list. release, if not nil, is called once for
// every watch detached from the list, outside any engine lock.
func (m *Manager) NewWatchList(release func(*Watch), opts ...ListOption) (*WatchList, error) {
	if err := m.gate(); err != nil {
		return nil, err
	}
	l := &WatchList{m: m, release: release}
	for _, opt := range opts {
		opt(l)
	}
	l.watches.Store(&[]*Watch{})
	return l, nil
}

// Len returns the number of attached watches.
func (l *WatchList) Len() int {
	return len(l.snapshot())
}

func (l *WatchList) snapshot() []*Watch {
	return *l.watches.Load()
}

// watchesQueue reports whether q already has a watch on l. Caller holds l.mu.
func (l *WatchList) watchesQueue(q *Queue) bool {
	for _, w := range l.snapshot() {
		if w.queue == q {
			return true
		}
	}
	return false
}

// link and unlink publish a new snapshot. Caller holds l.mu.
func (l *WatchList) link(w *Watch) {
	cur := l.snapshot()
	next := make([]*Watch, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, w)
	l.watches.Store(&next)
}

func (l *WatchList) unlink(w *Watch) {
	cur := l.snapshot()
	next := make([]*Watch, 0, len(cur))
	for _, x := range cur {
		if x != w {
			next = append(next, x)
		}
	}
	l.watches.Store(&next)
}

// detach unlinks w from l and its queue. With notify set, a removal record is
// delivered to the queue first, bypassing its filter. It returns false if w
// was no longer attached to l.
func (l *WatchList) detach(w *Watch, notify bool) bool {
	q := w.queue

	q.mu.Lock()
	l.mu.Lock()
	if w.list.Load() != l {
		l.mu.Unlock()
		q.mu.Unlock()
		return false
	}

	if notify {
		if tag, live := w.tag.Load(); live {
			q.deliver(notification.NewRemoval(w.id).WithTag(tag))
		}
	}

	w.list.Store(nil)
	q.watches.Remove(w)
	l.unlink(w)
	w.tag.Retire(l.m.domain.Ticket())

	l.mu.Unlock()
	q.mu.Unlock()

	if l.release != nil {
		l.release(w)
	}
	l.m.logger.Debug("watch removed",
		logger.QueueID(q.ID()),
		logger.WatchID(w.id),
	)
	// Drop the list's reference; the last in-flight post may still hold one.
	w.ref.Put()
	return true
}

// RemoveWatch detaches the watch with identifier id. A non-nil q restricts the
// match to watches targeting q. When RemoveWatch returns, no post can deliver
// through the removed watch any more.
func (l *WatchList) RemoveWatch(q *Queue, id uint64, notifyRemoval bool) error {
	if !l.m.cfg.Enabled {
		return ErrFeatureDisabled
	}
	for _, w := range l.snapshot() {
		if w.id != id || (q != nil && w.queue != q) {
			continue
		}
		if !l.detach(w, notifyRemoval) {
			break
		}
		l.m.domain.Synchronize()
		return nil
	}
	return ErrNotFound
}

// Destroy detaches every watch, posting a removal record to each queue, and
// rejects further AddWatch calls. Destroy is idempotent.
func (l *WatchList) Destroy() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	l.destroyed = true
	ws := l.snapshot()
	l.mu.Unlock()

	for _, w := range ws {
		l.detach(w, true)
	}
	l.m.domain.Synchronize()
	l.m.logger.Debug("watch list destroyed", slog.Int("detached", len(ws)))
}

// Post delivers r to every watch on l whose queue filter accepts it, or only
// to the watch with identifier id when id is non-zero. cred is handed to the
// post check. Post never blocks on consumers and never fails: records that
// find no free slot are counted as lost on their queue. A nil list is a no-op.
func (l *WatchList) Post(r notification.Record, cred Credential, id uint64) {
	if l == nil || !l.m.cfg.Enabled || !r.IsValid() {
		return
	}
	m := l.m
	m.metrics.posted()

	g := m.domain.Enter()
	defer g.Exit()

	for _, w := range l.snapshot() {
		if id != 0 && w.id != id {
			continue
		}
		if !w.ref.TryGet() {
			continue
		}
		m.postOne(w, r, cred)
		w.ref.Put()
	}
}

func (m *Manager) postOne(w *Watch, r notification.Record, cred Credential) {
	tag, live := w.tag.Load()
	if !live {
		return
	}
	q := w.queue
	if !q.ref.TryGet() {
		return
	}
	defer q.ref.Put()

	if q.State() >= StateClosing {
		return
	}
	if m.postCheck != nil && !m.postCheck(w.cred, cred, r) {
		return
	}
	if !q.filter.Load().Accepts(r) {
		m.metrics.filtered()
		return
	}
	q.deliver(r.WithTag(tag))
}
