package watchqueue

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/dmitrymomot/watchqueue/pkg/filter"
	"github.com/dmitrymomot/watchqueue/pkg/logger"
	"github.com/dmitrymomot/watchqueue/pkg/notification"
	"github.com/dmitrymomot/watchqueue/pkg/reclaim"
)

// State is the lifecycle stage of a queue. It only moves forward.
type State int32

const (
	// StateOpen: created, no watch or filter yet.
	StateOpen State = iota
	// StateActive: a filter was installed or a watch attached.
	StateActive
	// StateClosing: Close is detaching watches.
	StateClosing
	// StateClosed: detached; storage goes once the last reference is released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Queue is the subscriber side: a fixed number of fixed-size slots, an
// optional filter, and backlinks to every watch that targets it.
type Queue struct {
	id       uuid.UUID
	m        *Manager
	owner    Credential
	capacity int

	// filterCheck, if set, must admit the credential passed to SetFilter.
	filterCheck AccessCheck

	notes  []byte
	bitmap []atomic.Uint64

	ref   *reclaim.Ref
	state atomic.Int32

	filter atomic.Pointer[filter.Filter]

	mu      sync.Mutex
	watches mapset.Set[*Watch]

	sink Sink
	pipe *pipe

	lost    atomic.Bool
	dropped atomic.Uint64
}

// QueueOption configures NewQueue.
type QueueOption func(*queueOptions)

type queueOptions struct {
	sink        Sink
	owner       Credential
	filterCheck AccessCheck
}

// WithSink replaces the built-in pipe. Queues with an external sink cannot be Read.
func WithSink(s Sink) QueueOption {
	return func(o *queueOptions) { o.sink = s }
}

// WithOwner records the credential allowed to install filters. It is also
// passed to the allocation check.
func WithOwner(cred Credential) QueueOption {
	return func(o *queueOptions) { o.owner = cred }
}

// WithFilterCheck sets a check the credential passed to SetFilter must pass,
// in addition to the owner comparison.
func WithFilterCheck(fn AccessCheck) QueueOption {
	return func(o *queueOptions) { o.filterCheck = fn }
}

// NewQueue creates a queue with capacity rounded up to a power of two.
// The queue starts with one reference, owned by the caller and dropped by Close,
// and with no filter: nothing posted through a watch list is delivered until
// SetFilter is called.
func (m *Manager) NewQueue(capacity int, opts ...QueueOption) (*Queue, error) {
	if err := m.gate(); err != nil {
		return nil, err
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrInvalidArgument, capacity)
	}
	// The limit applies to the request; rounding may go past it. MaxNotes
	// never exceeds maxSlots, so the shift below cannot overflow.
	if capacity > m.cfg.MaxNotes {
		return nil, fmt.Errorf("%w: %d slots, max %d", ErrResourceLimit, capacity, m.cfg.MaxNotes)
	}
	n := 1 << bits.Len(uint(capacity-1))

	var o queueOptions
	for _, opt := range opts {
		opt(&o)
	}

	size := int64(n) * SlotSize
	if m.allocCheck != nil {
		if err := m.allocCheck(o.owner, size); err != nil {
			return nil, errors.Join(ErrResourceLimit, err)
		}
	}
	if !m.reserve(size) {
		return nil, fmt.Errorf("%w: buffer budget of %d bytes exhausted", ErrResourceLimit, m.cfg.BufferBudget)
	}

	q := &Queue{
		id:          uuid.New(),
		m:           m,
		owner:       o.owner,
		filterCheck: o.filterCheck,
		capacity:    n,
		notes:       make([]byte, size),
		bitmap:      make([]atomic.Uint64, (n+63)/64),
		watches:     mapset.NewThreadUnsafeSet[*Watch](),
		sink:        o.sink,
	}
	if q.sink == nil {
		q.pipe = newPipe(n)
		q.sink = q.pipe
	}
	q.ref = reclaim.NewRef(q.destroy)

	m.metrics.queues(1)
	m.logger.Debug("queue created", logger.QueueID(q.ID()), logger.Slots(n))
	return q, nil
}

// ID returns the queue's unique identifier.
func (q *Queue) ID() string { return q.id.String() }

// Capacity returns the slot count, a power of two.
func (q *Queue) Capacity() int { return q.capacity }

// State returns the current lifecycle stage.
func (q *Queue) State() State { return State(q.state.Load()) }

// Lost reports whether records were dropped since the consumer was last told.
func (q *Queue) Lost() bool { return q.lost.Load() }

// Dropped returns the total number of records dropped for lack of a free slot.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// FreeSlots returns the number of unallocated slots.
func (q *Queue) FreeSlots() int {
	used := 0
	for i := range q.bitmap {
		used += bits.OnesCount64(q.bitmap[i].Load())
	}
	return q.capacity - used
}

// WatchCount returns the number of watches currently targeting the queue.
func (q *Queue) WatchCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.watches.Cardinality()
}

// Retain takes an extra reference. It fails once the queue has been reclaimed.
func (q *Queue) Retain() bool { return q.ref.TryGet() }

// Release drops a reference taken with Retain.
func (q *Queue) Release() { q.ref.Put() }

// SetFilter compiles spec and swaps it in. A nil spec removes the filter,
// returning the queue to accepting nothing. If the queue was created with an
// owner, cred must equal it; with a filter check, cred must also pass it.
func (q *Queue) SetFilter(cred Credential, spec *filter.Spec) error {
	if err := q.m.gate(); err != nil {
		return err
	}
	if q.State() >= StateClosing {
		return ErrQueueClosed
	}
	if q.owner != nil && q.owner != cred {
		return ErrPermissionDenied
	}
	if q.filterCheck != nil {
		if err := q.filterCheck(cred); err != nil {
			return errors.Join(ErrPermissionDenied, err)
		}
	}

	if spec == nil {
		q.filter.Store(nil)
		q.m.logger.Debug("queue filter cleared", logger.QueueID(q.ID()))
		return nil
	}

	f, err := filter.Compile(*spec, filter.WithMaxFilters(q.m.cfg.MaxFilters))
	if err != nil {
		return errors.Join(ErrInvalidArgument, err)
	}
	// Readers hold the old *Filter until they finish; it is never mutated.
	q.filter.Store(f)
	q.activate()

	q.m.logger.Debug("queue filter installed",
		logger.QueueID(q.ID()),
		slog.Int("entries", len(spec.PerType)),
	)
	return nil
}

// AllocateSlot claims the lowest free slot.
func (q *Queue) AllocateSlot() (int, error) {
	if q.State() >= StateClosing {
		return -1, ErrQueueClosed
	}
	for w := range q.bitmap {
		word := &q.bitmap[w]
		limit := q.wordLimit(w)
		for {
			cur := word.Load()
			free := ^cur & limit
			if free == 0 {
				break
			}
			bit := bits.TrailingZeros64(free)
			if word.CompareAndSwap(cur, cur|1<<bit) {
				return w*64 + bit, nil
			}
		}
	}
	return -1, ErrNoCapacity
}

func (q *Queue) wordLimit(w int) uint64 {
	if rest := q.capacity - w*64; rest < 64 {
		return 1<<rest - 1
	}
	return ^uint64(0)
}

// ReleaseSlot frees a slot. Releasing a free slot is a bug and panics.
func (q *Queue) ReleaseSlot(slot int) {
	if slot < 0 || slot >= q.capacity {
		panic(fmt.Sprintf("watchqueue: slot %d out of range [0,%d)", slot, q.capacity))
	}
	bit := uint64(1) << (slot % 64)
	if old := q.bitmap[slot/64].And(^bit); old&bit == 0 {
		panic(fmt.Sprintf("watchqueue: slot %d released twice", slot))
	}
}

// WriteAndPublish encodes r into an allocated slot and hands it to the sink.
// The slot belongs to the sink on success and is released on failure.
func (q *Queue) WriteAndPublish(slot int, r notification.Record) error {
	if !r.IsValid() {
		q.ReleaseSlot(slot)
		return fmt.Errorf("%w: invalid record", ErrInvalidArgument)
	}
	if q.State() >= StateClosing {
		q.ReleaseSlot(slot)
		return ErrQueueClosed
	}

	off := slot * SlotSize
	size := r.MarshalTo(q.notes[off : off+SlotSize])

	n := Note{q: q, slot: slot, size: size, loss: q.lost.CompareAndSwap(true, false)}
	if err := q.sink.Publish(n); err != nil {
		if n.loss {
			q.lost.Store(true)
		}
		q.ReleaseSlot(slot)
		if !errors.Is(err, ErrQueueClosed) {
			q.markLost()
		}
		return err
	}
	q.m.metrics.delivered()
	return nil
}

// deliver is the posting path: allocate, write, publish. Failure to find a
// slot is recorded, never returned.
func (q *Queue) deliver(r notification.Record) {
	q.m.attempts.Add(1)
	slot, err := q.AllocateSlot()
	if err != nil {
		if errors.Is(err, ErrNoCapacity) {
			q.markLost()
		}
		return
	}
	_ = q.WriteAndPublish(slot, r)
}

func (q *Queue) markLost() {
	q.lost.Store(true)
	q.dropped.Add(1)
	q.m.noteDrop(q)
	if q.pipe != nil {
		q.pipe.notify()
	}
}

func (q *Queue) activate() {
	q.state.CompareAndSwap(int32(StateOpen), int32(StateActive))
}

// Close detaches every watch still targeting the queue, without removal
// records, closes the sink and drops the caller's reference. Records already
// published stay readable. Close is idempotent.
func (q *Queue) Close() error {
	for {
		s := q.state.Load()
		if State(s) >= StateClosing {
			return nil
		}
		if q.state.CompareAndSwap(s, int32(StateClosing)) {
			break
		}
	}

	q.mu.Lock()
	ws := q.watches.ToSlice()
	q.mu.Unlock()

	for _, w := range ws {
		if l := w.list.Load(); l != nil {
			l.detach(w, false)
		}
	}

	q.state.Store(int32(StateClosed))

	var err error
	if c, ok := q.sink.(io.Closer); ok {
		err = c.Close()
	}

	q.m.domain.Synchronize()
	q.m.logger.Debug("queue closed",
		logger.QueueID(q.ID()),
		slog.Int("detached", len(ws)),
		slog.Uint64("dropped", q.Dropped()),
		logger.Error(err),
	)
	q.ref.Put()
	return err
}

// destroy runs on the last reference. Storage accounting is returned after a
// grace period so in-flight posts never race the budget.
func (q *Queue) destroy() {
	q.state.Store(int32(StateClosed))
	q.m.deferReclaim(func() {
		q.m.unreserve(int64(len(q.notes)))
		q.m.metrics.queues(-1)
	})
}
