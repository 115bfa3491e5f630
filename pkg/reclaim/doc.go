// Package reclaim provides the deferred-reclamation primitives the delivery
// engine is built on.
//
// Three pieces work together:
//
//   - Domain is an epoch-based read-side critical section. Readers call Enter
//     and Exit around lock-free traversals; writers unlink objects under their
//     own locks, then call Synchronize (blocking) or Defer (asynchronous) to
//     wait until every reader that might still see the old object has left.
//   - Ref is an atomic reference count with get-unless-zero semantics, so a
//     reader holding a stale pointer can fail to pin an object that is already
//     on its way out.
//   - Cell holds a value that is either Live or Retired. Retirement is one-way
//     and records the epoch ticket at which it happened.
//
// # Usage
//
//	d := reclaim.NewDomain()
//	defer d.Close()
//
//	g := d.Enter()
//	for _, w := range list.snapshot() {
//	    if !w.ref.TryGet() {
//	        continue
//	    }
//	    visit(w)
//	    w.ref.Put()
//	}
//	g.Exit()
//
//	// writer side
//	list.unlink(w)
//	d.Synchronize()
//	free(w)
//
// Synchronize must not be called while the calling goroutine holds a Guard:
// it would wait for itself.
package reclaim
