package reclaim

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Ticket identifies the epoch at which something was retired.
type Ticket uint64

// Domain tracks readers in two epoch parities. Synchronize flips the epoch and
// waits for the readers of the previous parity to drain.
type Domain struct {
	epoch     atomic.Uint64
	completed atomic.Uint64
	readers   [2]atomic.Int64

	syncMu sync.Mutex

	mu      sync.Mutex
	pending []task
	closed  bool

	outstanding atomic.Int64
	reclaimed   atomic.Uint64

	kick chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewDomain creates a domain and starts its reclaimer goroutine.
// Call Close to stop it.
func NewDomain() *Domain {
	d := &Domain{
		kick: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Guard marks an open read-side critical section.
type Guard struct {
	slot *atomic.Int64
}

// Enter opens a read-side critical section. Objects reachable from shared
// pointers loaded after Enter stay valid until Exit.
func (d *Domain) Enter() Guard {
	for {
		e := d.epoch.Load()
		slot := &d.readers[e&1]
		slot.Add(1)
		// A flip between the load and the increment means the writer may
		// already have finished waiting on this parity.
		if d.epoch.Load() == e {
			return Guard{slot: slot}
		}
		slot.Add(-1)
	}
}

// Exit closes the critical section opened by Enter.
func (g Guard) Exit() {
	if g.slot != nil {
		g.slot.Add(-1)
	}
}

// Synchronize blocks until every critical section that was open when it was
// called has exited.
func (d *Domain) Synchronize() {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	old := d.epoch.Add(1) - 1
	slot := &d.readers[old&1]
	for spins := 0; slot.Load() != 0; spins++ {
		if spins < 64 {
			runtime.Gosched()
			continue
		}
		time.Sleep(10 * time.Microsecond)
	}
	d.completed.Store(old + 1)
}

// Ticket returns the current epoch.
func (d *Domain) Ticket() Ticket {
	return Ticket(d.epoch.Load())
}

// Elapsed reports whether a full grace period has completed since t was taken.
func (d *Domain) Elapsed(t Ticket) bool {
	return d.completed.Load() > uint64(t)
}

// task is a deferred callback. Markers queued by Barrier and Flush are not
// counted in Pending or Reclaimed.
type task struct {
	fn     func()
	marker bool
}

// Defer schedules fn to run after a grace period, on the reclaimer goroutine.
// Callbacks run in the order they were deferred. fn may call Defer itself.
func (d *Domain) Defer(fn func()) {
	if fn == nil {
		return
	}
	d.outstanding.Add(1)
	d.enqueue(task{fn: fn})
}

func (d *Domain) enqueue(t task) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		go func() {
			d.Synchronize()
			d.invoke(t)
		}()
		return
	}
	d.pending = append(d.pending, t)
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Barrier blocks until every callback deferred before the call has run.
func (d *Domain) Barrier() {
	done := make(chan struct{})
	d.enqueue(task{fn: func() { close(done) }, marker: true})
	<-done
}

// Flush blocks until no deferred callbacks remain, including callbacks
// deferred by other callbacks while flushing.
func (d *Domain) Flush() {
	for {
		var more bool
		done := make(chan struct{})
		d.enqueue(task{marker: true, fn: func() {
			// Everything deferred earlier has completed; anything still
			// counted was queued after this marker.
			more = d.outstanding.Load() > 0
			close(done)
		}})
		<-done
		if !more {
			return
		}
	}
}

// Pending returns the number of deferred callbacks that have not completed.
func (d *Domain) Pending() int {
	return int(d.outstanding.Load())
}

// Reclaimed returns the number of deferred callbacks that have completed.
func (d *Domain) Reclaimed() uint64 {
	return d.reclaimed.Load()
}

// Close runs the remaining callbacks and stops the reclaimer goroutine.
// Callbacks deferred after Close still run, each on its own goroutine.
func (d *Domain) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	d.wg.Wait()
}

func (d *Domain) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.kick:
			d.drain()
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Domain) drain() {
	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}

		d.Synchronize()
		for _, t := range batch {
			d.invoke(t)
		}
	}
}

func (d *Domain) invoke(t task) {
	t.fn()
	if !t.marker {
		d.reclaimed.Add(1)
		d.outstanding.Add(-1)
	}
}
