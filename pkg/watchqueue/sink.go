package watchqueue

import (
	"context"
	"sync"

	"github.com/dmitrymomot/watchqueue/pkg/notification"
)

// Sink moves published notes out of a queue.
//
// Publish takes ownership of n on success and must eventually call n.Release.
// On error the queue releases the slot and records a loss, except for
// ErrQueueClosed. Publish is called on the posting goroutine, sometimes with
// queue locks held: it must not block and must not call back into watch or
// list operations.
//
// If the sink also implements io.Closer it is closed when the queue closes.
type Sink interface {
	Publish(n Note) error
}

// Note is a published record still occupying its slot.
type Note struct {
	q    *Queue
	slot int
	size int
	loss bool
}

// Slot returns the slot index.
func (n Note) Slot() int { return n.slot }

// Bytes returns the encoded record. The slice aliases slot storage and is
// only valid until Release.
func (n Note) Bytes() []byte {
	off := n.slot * SlotSize
	return n.q.notes[off : off+n.size]
}

// Record decodes the note.
func (n Note) Record() (notification.Record, error) {
	return notification.Unmarshal(n.Bytes())
}

// QueueID returns the identifier of the queue the note belongs to.
func (n Note) QueueID() string { return n.q.ID() }

// Loss reports whether records were dropped on this queue before this note
// was published. Sinks forward it so consumers can detect the gap.
func (n Note) Loss() bool { return n.loss }

// Release frees the slot.
func (n Note) Release() { n.q.ReleaseSlot(n.slot) }

// pipe is the in-process sink behind Queue.Read.
type pipe struct {
	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	notes chan Note
	wake  chan struct{}

	// read serializes consumers; held is the record parked behind a loss marker.
	read chan struct{}
	held *notification.Record
}

func newPipe(slots int) *pipe {
	return &pipe{
		done:  make(chan struct{}),
		notes: make(chan Note, slots),
		wake:  make(chan struct{}, 1),
		read:  make(chan struct{}, 1),
	}
}

// Publish never blocks: there are as many buffered entries as slots.
func (p *pipe) Publish(n Note) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.notes <- n:
		return nil
	default:
		return ErrNoCapacity
	}
}

func (p *pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

func (p *pipe) notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Read returns the next record, blocking until one is available, ctx is done
// or the queue is closed and drained.
//
// When records were lost, a loss meta record is returned in front of the next
// record published after the gap, or on its own once the queue is otherwise
// empty. Read returns ErrNotReadable for queues created with WithSink.
func (q *Queue) Read(ctx context.Context) (notification.Record, error) {
	p := q.pipe
	if p == nil {
		return notification.Record{}, ErrNotReadable
	}

	select {
	case p.read <- struct{}{}:
	case <-ctx.Done():
		return notification.Record{}, ctx.Err()
	}
	defer func() { <-p.read }()

	for {
		if p.held != nil {
			r := *p.held
			p.held = nil
			return r, nil
		}

		select {
		case n := <-p.notes:
			return p.consume(n)
		default:
		}

		if q.lost.CompareAndSwap(true, false) {
			return notification.NewLoss(), nil
		}

		select {
		case n := <-p.notes:
			return p.consume(n)
		case <-p.wake:
		case <-p.done:
			if len(p.notes) == 0 && !q.lost.Load() {
				return notification.Record{}, ErrQueueClosed
			}
		case <-ctx.Done():
			return notification.Record{}, ctx.Err()
		}
	}
}

func (p *pipe) consume(n Note) (notification.Record, error) {
	r, err := n.Record()
	n.Release()
	if err != nil {
		return notification.Record{}, err
	}
	if n.loss {
		p.held = &r
		return notification.NewLoss(), nil
	}
	return r, nil
}
