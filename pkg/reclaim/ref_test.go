package reclaim_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/watchqueue/pkg/reclaim"
)

func TestRef(t *testing.T) {
	t.Parallel()

	t.Run("release on last put", func(t *testing.T) {
		t.Parallel()

		var released int
		r := reclaim.NewRef(func() { released++ })
		assert.Equal(t, int64(1), r.Count())

		require.True(t, r.TryGet())
		r.Get()
		assert.Equal(t, int64(3), r.Count())

		r.Put()
		r.Put()
		assert.Zero(t, released)
		r.Put()
		assert.Equal(t, 1, released)
	})

	t.Run("no resurrection", func(t *testing.T) {
		t.Parallel()

		r := reclaim.NewRef(nil)
		r.Put()
		assert.False(t, r.TryGet())
		assert.Panics(t, func() { r.Get() })
	})

	t.Run("put underflow panics", func(t *testing.T) {
		t.Parallel()

		r := reclaim.NewRef(nil)
		r.Put()
		assert.Panics(t, func() { r.Put() })
	})

	t.Run("concurrent get put", func(t *testing.T) {
		t.Parallel()

		var released atomic.Int32
		r := reclaim.NewRef(func() { released.Add(1) })

		var eg errgroup.Group
		for range 8 {
			eg.Go(func() error {
				for range 1000 {
					if r.TryGet() {
						r.Put()
					}
				}
				return nil
			})
		}
		require.NoError(t, eg.Wait())
		assert.Zero(t, released.Load())

		r.Put()
		assert.Equal(t, int32(1), released.Load())
	})
}

func TestCell(t *testing.T) {
	t.Parallel()

	c := reclaim.NewCell[uint8](7)
	v, live := c.Load()
	assert.True(t, live)
	assert.Equal(t, uint8(7), v)

	_, retired := c.Ticket()
	assert.False(t, retired)

	v, ok := c.Retire(3)
	require.True(t, ok)
	assert.Equal(t, uint8(7), v)

	_, ok = c.Retire(4)
	assert.False(t, ok, "second retire must lose")

	tk, retired := c.Ticket()
	assert.True(t, retired)
	assert.Equal(t, reclaim.Ticket(3), tk)

	v, live = c.Load()
	assert.False(t, live)
	assert.Equal(t, uint8(7), v)
}

func TestCell_RetireRace(t *testing.T) {
	t.Parallel()

	c := reclaim.NewCell("watch")
	var wins atomic.Int32

	var eg errgroup.Group
	for i := range 16 {
		eg.Go(func() error {
			if _, ok := c.Retire(reclaim.Ticket(i)); ok {
				wins.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, int32(1), wins.Load())
}
