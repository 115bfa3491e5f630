package reclaim

import "sync/atomic"

// Ref is an atomic reference count. It starts at one; release runs when the
// count drops to zero. A Ref never comes back from zero.
type Ref struct {
	n       atomic.Int64
	release func()
}

// NewRef returns a Ref holding one reference.
func NewRef(release func()) *Ref {
	r := &Ref{release: release}
	r.n.Store(1)
	return r
}

// TryGet takes a reference unless the count has already reached zero.
func (r *Ref) TryGet() bool {
	for {
		n := r.n.Load()
		if n <= 0 {
			return false
		}
		if r.n.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Get takes a reference the caller knows to be live. It panics on a released Ref.
func (r *Ref) Get() {
	if r.n.Add(1) <= 1 {
		panic("reclaim: Get on released reference")
	}
}

// Put drops a reference and runs release on the last one.
func (r *Ref) Put() {
	switch n := r.n.Add(-1); {
	case n == 0:
		if r.release != nil {
			r.release()
		}
	case n < 0:
		panic("reclaim: Put without matching Get")
	}
}

// Count returns the current number of references.
func (r *Ref) Count() int64 {
	return r.n.Load()
}
