package reclaim

import "sync/atomic"

// Cell holds a value that is Live until retired. Readers that observe a
// retired cell must treat its owner as gone even if they can still reach it.
type Cell[T any] struct {
	p atomic.Pointer[cellState[T]]
}

type cellState[T any] struct {
	v       T
	retired bool
	ticket  Ticket
}

// NewCell returns a live cell holding v.
func NewCell[T any](v T) *Cell[T] {
	c := &Cell[T]{}
	c.p.Store(&cellState[T]{v: v})
	return c
}

// Load returns the value and whether the cell is still live.
func (c *Cell[T]) Load() (T, bool) {
	s := c.p.Load()
	return s.v, !s.retired
}

// Retire marks the cell retired at ticket t. Only the first call succeeds;
// it returns the value and true.
func (c *Cell[T]) Retire(t Ticket) (T, bool) {
	for {
		s := c.p.Load()
		if s.retired {
			return s.v, false
		}
		if c.p.CompareAndSwap(s, &cellState[T]{v: s.v, retired: true, ticket: t}) {
			return s.v, true
		}
	}
}

// Ticket returns the retirement ticket, or false if the cell is live.
func (c *Cell[T]) Ticket() (Ticket, bool) {
	s := c.p.Load()
	return s.ticket, s.retired
}
