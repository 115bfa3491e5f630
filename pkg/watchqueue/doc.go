// Package watchqueue is an in-process notification queue: resources post
// typed records to a WatchList, and every Queue watching that list receives
// the records its filter accepts into a bounded set of fixed-size slots.
//
// # Objects
//
//   - Manager holds configuration, the storage budget and the reclamation
//     domain shared by everything it creates.
//   - Queue is owned by a subscriber. It has a power-of-two number of
//     128-byte slots, an optional filter and a sink. The default sink is an
//     in-process pipe drained with Queue.Read.
//   - WatchList is owned by a resource. Post fans a record out to its watches.
//   - Watch links one queue to one list and carries a tag that is stamped
//     into the ID bits of every record it delivers.
//
// # Delivery
//
// Post never blocks and never fails. For each watch it checks the watch is
// still live, the queue is open, the post check passes and the queue filter
// accepts the record. A queue with no filter accepts nothing. When the queue
// has no free slot the record is dropped, the queue's loss flag is set, and
// the consumer later reads a loss meta record in place of the gap.
//
// Removing a watch with notification, or destroying its list, delivers a
// removal meta record carrying the watch identifier. Meta records produced
// this way bypass the filter.
//
// # Concurrency
//
// Posting walks a copy-on-write snapshot inside a read-side critical section
// of a reclaim.Domain; add and remove take the queue lock then the list lock.
// RemoveWatch, WatchList.Destroy and Queue.Close wait for a grace period
// before returning, so once they return no post can still deliver through a
// removed watch.
//
// # Usage
//
//	cfg, err := watchqueue.LoadConfig()
//	if err != nil {
//	    return err
//	}
//	m := watchqueue.New(cfg, watchqueue.WithLogger(log))
//	defer m.Close()
//
//	q, _ := m.NewQueue(64)
//	spec := filter.Accept(notification.TypeKey)
//	_ = q.SetFilter(nil, &spec)
//
//	list, _ := m.NewWatchList(nil)
//	w, _ := m.AddWatch(q, list, 1, nil, nil)
//
//	list.Post(rec, nil, 0)
//	got, err := q.Read(ctx)
//
//	_ = list.RemoveWatch(q, w.ID(), true)
//	_ = q.Close()
package watchqueue
