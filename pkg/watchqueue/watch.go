package watchqueue

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dmitrymomot/watchqueue/pkg/logger"
	"github.com/dmitrymomot/watchqueue/pkg/reclaim"
)

// Watch is one subscription edge from a WatchList to a Queue.
//
// The list owns the watch; the queue keeps a non-owning backlink. The watch
// holds a reference on its queue until it is reclaimed.
type Watch struct {
	id      uint64
	queue   *Queue
	list    atomic.Pointer[WatchList]
	cred    Credential
	private any

	// tag is stamped into delivered records while the watch is live and
	// retired when it is unlinked.
	tag *reclaim.Cell[uint8]
	ref *reclaim.Ref
}

// ID returns the identifier, unique within the watch list for its lifetime.
func (w *Watch) ID() uint64 { return w.id }

// Queue returns the target queue.
func (w *Watch) Queue() *Queue { return w.queue }

// Credential returns the credential captured when the watch was added.
func (w *Watch) Credential() Credential { return w.cred }

// Private returns the value the resource attached to the watch.
func (w *Watch) Private() any { return w.private }

// Tag returns the tag stamped into the ID bits of delivered records.
func (w *Watch) Tag() uint8 {
	t, _ := w.tag.Load()
	return t
}

// Live reports whether the watch is still linked.
func (w *Watch) Live() bool {
	_, live := w.tag.Load()
	return live
}

// AddWatch subscribes q to l. The watch gets the next identifier of l, and tag
// is merged into every record it delivers. cred is checked against the
// list's access check and kept for the post check; private is opaque
// resource data returned by Watch.Private.
func (m *Manager) AddWatch(q *Queue, l *WatchList, tag uint8, cred Credential, private any) (*Watch, error) {
	if err := m.gate(); err != nil {
		return nil, err
	}
	if q == nil || l == nil {
		return nil, fmt.Errorf("%w: nil queue or watch list", ErrInvalidArgument)
	}
	if q.m != m || l.m != m {
		return nil, fmt.Errorf("%w: queue and list belong to another manager", ErrInvalidArgument)
	}
	if l.check != nil {
		if err := l.check(cred); err != nil {
			return nil, errors.Join(ErrPermissionDenied, err)
		}
	}
	if !q.ref.TryGet() {
		return nil, ErrQueueClosed
	}

	w := &Watch{
		queue:   q,
		cred:    cred,
		private: private,
		tag:     reclaim.NewCell(tag),
	}
	w.ref = reclaim.NewRef(w.reclaim)

	// Lock order: queue, then list.
	q.mu.Lock()
	l.mu.Lock()

	var err error
	switch {
	case q.State() >= StateClosing:
		err = ErrQueueClosed
	case l.destroyed:
		err = ErrListDestroyed
	case l.watchesQueue(q):
		err = ErrAlreadyWatching
	}
	if err != nil {
		l.mu.Unlock()
		q.mu.Unlock()
		q.ref.Put()
		return nil, err
	}

	l.nextID++
	w.id = l.nextID
	w.list.Store(l)
	q.watches.Add(w)
	l.link(w)

	l.mu.Unlock()
	q.mu.Unlock()

	q.activate()
	m.metrics.watches(1)
	m.logger.Debug("watch added", logger.QueueID(q.ID()), logger.WatchID(w.id))
	return w, nil
}

// reclaim runs when the last reference to the watch is dropped.
func (w *Watch) reclaim() {
	m := w.queue.m
	release := func() {
		w.queue.ref.Put()
		m.metrics.watches(-1)
	}
	// Retired before the last completed grace period: no post can still
	// reach the watch, so the queue reference goes now.
	if t, retired := w.tag.Ticket(); retired && m.domain.Elapsed(t) {
		release()
		m.metrics.reclaimed()
		return
	}
	m.deferReclaim(release)
}
