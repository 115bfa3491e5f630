package watchqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/watchqueue/pkg/filter"
	"github.com/dmitrymomot/watchqueue/pkg/notification"
	"github.com/dmitrymomot/watchqueue/pkg/watchqueue"
)

func TestPost_Scenario(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	q := newFilteredQueue(t, m, 4, filter.Accept(typeA).With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{1, 2}}))
	l, err := m.NewWatchList(nil)
	require.NoError(t, err)
	w, err := m.AddWatch(q, l, 0, nil, nil)
	require.NoError(t, err)

	l.Post(record(t, typeA, 1, ""), nil, 0)
	assert.Equal(t, 3, q.FreeSlots())

	l.Post(record(t, typeA, 3, ""), nil, 0)
	assert.Equal(t, 3, q.FreeSlots())

	l.Post(record(t, typeB, 1, ""), nil, 0)
	assert.Equal(t, 3, q.FreeSlots())

	got := mustRead(t, q)
	assert.Equal(t, typeA, got.Type())
	assert.Equal(t, uint8(1), got.Subtype())
	assert.Equal(t, 4, q.FreeSlots())

	require.NoError(t, l.RemoveWatch(q, w.ID(), false))
	l.Post(record(t, typeA, 1, ""), nil, 0)
	assert.Equal(t, 4, q.FreeSlots())

	require.ErrorIs(t, l.RemoveWatch(q, w.ID(), false), watchqueue.ErrNotFound)
}

func TestPost_FilterCorrectness(t *testing.T) {
	t.Parallel()

	flagged := filter.Accept(typeA).With(filter.TypeFilter{
		Type:       typeA,
		InfoFilter: notification.InfoFlag0,
		InfoMask:   notification.InfoFlag0 | notification.InfoFlag1,
	})
	orEntries := filter.Accept(typeA).
		With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{1}}).
		With(filter.TypeFilter{Type: typeA, Subtypes: []uint8{9}})

	tests := []struct {
		name     string
		spec     filter.Spec
		typ      notification.Type
		subtype  uint8
		typeInfo uint16
		want     bool
	}{
		{"accept all", filter.AcceptAll(), typeB, 200, 0xffff, true},
		{"type accepted", filter.Accept(typeA), typeA, 0, 0, true},
		{"type rejected", filter.Accept(typeA), typeB, 0, 0, false},
		{"info flag set", flagged, typeA, 0, 0x0001, true},
		{"info flag and masked flag", flagged, typeA, 0, 0x0003, false},
		{"info flag missing", flagged, typeA, 0, 0x0000, false},
		{"info unmasked bits ignored", flagged, typeA, 0, 0xff01 &^ 0x0002, true},
		{"or first", orEntries, typeA, 1, 0, true},
		{"or second", orEntries, typeA, 9, 0, true},
		{"or none", orEntries, typeA, 2, 0, false},
		{"meta type is filtered too", filter.Accept(typeA), notification.TypeMeta, notification.SubtypeLoss, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newManager(t)
			q := newFilteredQueue(t, m, 2, tt.spec)
			l, err := m.NewWatchList(nil)
			require.NoError(t, err)
			_, err = m.AddWatch(q, l, 0x5a, nil, nil)
			require.NoError(t, err)

			rec, err := notification.New(tt.typ, tt.subtype, tt.typeInfo, []byte("p"))
			require.NoError(t, err)
			l.Post(rec, nil, 0)

			if !tt.want {
				assert.Equal(t, 2, q.FreeSlots())
				requireEmpty(t, q)
				return
			}
			got := mustRead(t, q)
			assert.Equal(t, rec.WithTag(0x5a), got)
		})
	}
}

func TestPost_NoFilterAcceptsNothing(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	q, err := m.NewQueue(4)
	require.NoError(t, err)
	l, err := m.NewWatchList(nil)
	require.NoError(t, err)
	w, err := m.AddWatch(q, l, 3, nil, nil)
	require.NoError(t, err)

	for typ := range notification.Type(notification.NumTypes) {
		l.Post(notification.MustNew(typ, 0, 0, nil), nil, 0)
	}
	assert.Equal(t, 4, q.FreeSlots())
	requireEmpty(t, q)

	t.Run("cleared filter accepts nothing again", func(t *testing.T) {
		spec := filter.AcceptAll()
		require.NoError(t, q.SetFilter(nil, &spec))
		l.Post(record(t, typeA, 0, ""), nil, 0)
		mustRead(t, q)

		require.NoError(t, q.SetFilter(nil, nil))
		l.Post(record(t, typeA, 0, ""), nil, 0)
		requireEmpty(t, q)
	})

	t.Run("removal records still arrive", func(t *testing.T) {
		require.NoError(t, l.RemoveWatch(q, w.ID(), true))

		got := mustRead(t, q)
		require.True(t, got.IsRemoval())
		id, ok := got.RemovalID()
		require.True(t, ok)
		assert.Equal(t, w.ID(), id)
		assert.Equal(t, uint8(3), got.Tag())
	})
}

func TestPost_Targeting(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	l, err := m.NewWatchList(nil)
	require.NoError(t, err)

	q1 := newFilteredQueue(t, m, 4, filter.AcceptAll())
	q2 := newFilteredQueue(t, m, 4, filter.AcceptAll())
	_, err = m.AddWatch(q1, l, 1, nil, nil)
	require.NoError(t, err)
	w2, err := m.AddWatch(q2, l, 2, nil, nil)
	require.NoError(t, err)

	l.Post(record(t, typeA, 0, "only q2"), nil, w2.ID())
	assert.Equal(t, 4, q1.FreeSlots())
	got := mustRead(t, q2)
	assert.Equal(t, []byte("only q2"), got.Payload())
	assert.Equal(t, uint8(2), got.Tag())

	l.Post(record(t, typeA, 0, "nobody"), nil, 999)
	assert.Equal(t, 4, q1.FreeSlots())
	assert.Equal(t, 4, q2.FreeSlots())

	l.Post(record(t, typeA, 0, "all"), nil, 0)
	assert.Equal(t, uint8(1), mustRead(t, q1).Tag())
	assert.Equal(t, uint8(2), mustRead(t, q2).Tag())
}

func TestPost_PostCheck(t *testing.T) {
	t.Parallel()

	m := newManager(t, watchqueue.WithPostCheck(func(watcher, poster watchqueue.Credential, _ notification.Record) bool {
		return watcher == poster
	}))
	l, err := m.NewWatchList(nil)
	require.NoError(t, err)

	qa := newFilteredQueue(t, m, 2, filter.AcceptAll())
	qb := newFilteredQueue(t, m, 2, filter.AcceptAll())
	wa, err := m.AddWatch(qa, l, 0, "a", nil)
	require.NoError(t, err)
	_, err = m.AddWatch(qb, l, 0, "b", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", wa.Credential())

	l.Post(record(t, typeA, 0, ""), "a", 0)
	assert.Equal(t, 1, qa.FreeSlots())
	assert.Equal(t, 2, qb.FreeSlots())
}

func TestPost_NilListAndInvalidRecord(t *testing.T) {
	t.Parallel()

	var l *watchqueue.WatchList
	assert.NotPanics(t, func() { l.Post(record(t, typeA, 0, ""), nil, 0) })
	assert.NotPanics(t, func() { l.Destroy() })

	m := newManager(t)
	q := newFilteredQueue(t, m, 2, filter.AcceptAll())
	list, err := m.NewWatchList(nil)
	require.NoError(t, err)
	_, err = m.AddWatch(q, list, 0, nil, nil)
	require.NoError(t, err)

	list.Post(notification.Record{}, nil, 0)
	assert.Equal(t, 2, q.FreeSlots())
}

func TestPost_Overflow(t *testing.T) {
	t.Parallel()

	t.Run("loss record after the last delivered record", func(t *testing.T) {
		t.Parallel()

		m := newManager(t)
		q := newFilteredQueue(t, m, 1, filter.AcceptAll())
		l, err := m.NewWatchList(nil)
		require.NoError(t, err)
		_, err = m.AddWatch(q, l, 0, nil, nil)
		require.NoError(t, err)

		for i := range 3 {
			l.Post(record(t, typeA, uint8(i), ""), nil, 0)
		}
		assert.Equal(t, uint64(2), q.Dropped())
		assert.True(t, q.Lost())

		assert.Equal(t, uint8(0), mustRead(t, q).Subtype())
		assert.True(t, mustRead(t, q).IsLoss())
		assert.False(t, q.Lost())
		requireEmpty(t, q)
	})

	t.Run("loss record in front of the next record", func(t *testing.T) {
		t.Parallel()

		m := newManager(t)
		q := newFilteredQueue(t, m, 2, filter.AcceptAll())
		l, err := m.NewWatchList(nil)
		require.NoError(t, err)
		_, err = m.AddWatch(q, l, 0, nil, nil)
		require.NoError(t, err)

		l.Post(record(t, typeA, 1, ""), nil, 0)
		l.Post(record(t, typeA, 2, ""), nil, 0)
		l.Post(record(t, typeA, 3, ""), nil, 0)
		assert.Equal(t, uint64(1), q.Dropped())

		assert.Equal(t, uint8(1), mustRead(t, q).Subtype())
		l.Post(record(t, typeA, 4, ""), nil, 0)
		assert.False(t, q.Lost(), "loss moved onto the published note")

		assert.Equal(t, uint8(2), mustRead(t, q).Subtype())
		assert.True(t, mustRead(t, q).IsLoss())
		assert.Equal(t, uint8(4), mustRead(t, q).Subtype())
		requireEmpty(t, q)
	})

	t.Run("producers never block", func(t *testing.T) {
		t.Parallel()

		m := newManager(t)
		q := newFilteredQueue(t, m, 1, filter.AcceptAll())
		l, err := m.NewWatchList(nil)
		require.NoError(t, err)
		_, err = m.AddWatch(q, l, 0, nil, nil)
		require.NoError(t, err)

		rec := record(t, typeA, 0, "")
		done := make(chan struct{})
		go func() {
			for range 10000 {
				l.Post(rec, nil, 0)
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("posting blocked on a full queue")
		}
		assert.Equal(t, uint64(9999), q.Dropped())
	})
}

func TestPost_ConcurrentSlotAccounting(t *testing.T) {
	t.Parallel()

	const (
		capacity = 8
		posts    = 64
	)

	m := newManager(t)
	q := newFilteredQueue(t, m, capacity, filter.AcceptAll())

	lists := make([]*watchqueue.WatchList, 4)
	for i := range lists {
		l, err := m.NewWatchList(nil)
		require.NoError(t, err)
		_, err = m.AddWatch(q, l, uint8(i), nil, nil)
		require.NoError(t, err)
		lists[i] = l
	}

	rec := record(t, typeA, 0, "payload")
	var wg sync.WaitGroup
	for i := range posts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lists[i%len(lists)].Post(rec, nil, 0)
		}()
	}
	wg.Wait()

	assert.Zero(t, q.FreeSlots())
	assert.Equal(t, uint64(posts-capacity), q.Dropped())

	var data, losses int
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		r, err := q.Read(ctx)
		cancel()
		if err != nil {
			require.ErrorIs(t, err, context.DeadlineExceeded)
			break
		}
		if r.IsLoss() {
			losses++
			continue
		}
		assert.Equal(t, rec.Payload(), r.Payload())
		data++
	}
	assert.Equal(t, capacity, data)
	assert.GreaterOrEqual(t, losses, 1)
	assert.Equal(t, capacity, q.FreeSlots())
}
