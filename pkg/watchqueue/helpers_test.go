package watchqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/watchqueue/pkg/filter"
	"github.com/dmitrymomot/watchqueue/pkg/logger"
	"github.com/dmitrymomot/watchqueue/pkg/notification"
	"github.com/dmitrymomot/watchqueue/pkg/watchqueue"
)

const (
	typeA = notification.TypeKey
	typeB = notification.Type(2)
)

func newManager(t *testing.T, opts ...watchqueue.Option) *watchqueue.Manager {
	t.Helper()
	return newManagerWithConfig(t, watchqueue.DefaultConfig(), opts...)
}

func newManagerWithConfig(t *testing.T, cfg watchqueue.Config, opts ...watchqueue.Option) *watchqueue.Manager {
	t.Helper()
	opts = append([]watchqueue.Option{watchqueue.WithLogger(logger.Discard())}, opts...)
	m := watchqueue.New(cfg, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// newFilteredQueue creates a queue with spec installed.
func newFilteredQueue(t *testing.T, m *watchqueue.Manager, capacity int, spec filter.Spec) *watchqueue.Queue {
	t.Helper()
	q, err := m.NewQueue(capacity)
	require.NoError(t, err)
	require.NoError(t, q.SetFilter(nil, &spec))
	return q
}

func record(t *testing.T, typ notification.Type, subtype uint8, payload string) notification.Record {
	t.Helper()
	r, err := notification.New(typ, subtype, 0, []byte(payload))
	require.NoError(t, err)
	return r
}

func readWithin(t *testing.T, q *watchqueue.Queue, d time.Duration) (notification.Record, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return q.Read(ctx)
}

func mustRead(t *testing.T, q *watchqueue.Queue) notification.Record {
	t.Helper()
	r, err := readWithin(t, q, time.Second)
	require.NoError(t, err)
	return r
}

func requireEmpty(t *testing.T, q *watchqueue.Queue) {
	t.Helper()
	_, err := readWithin(t, q, 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// sinkFunc adapts a function to watchqueue.Sink.
type sinkFunc func(n watchqueue.Note) error

func (f sinkFunc) Publish(n watchqueue.Note) error { return f(n) }
