// Package browse holds the navigation state for result lists: a bounded
// cursor that wraps at both ends, and sessions pairing the initial batch
// with accumulated supplementary batches.
package browse

// Cursor is a position in a sequence that wraps modulo its length.
// The zero value is an empty, inactive cursor.
type Cursor[T any] struct {
	items []T
	index int
}

// NewCursor starts at index 0 over a copy of seq.
func NewCursor[T any](seq []T) *Cursor[T] {
	return &Cursor[T]{items: append([]T(nil), seq...)}
}

// Len returns the sequence length.
func (c *Cursor[T]) Len() int { return len(c.items) }

// Index returns the current position, or -1 when the sequence is empty.
func (c *Cursor[T]) Index() int {
	if len(c.items) == 0 {
		return -1
	}
	return c.index
}

// Current returns the item under the cursor.
func (c *Cursor[T]) Current() (T, bool) {
	var zero T
	if len(c.items) == 0 {
		return zero, false
	}
	return c.items[c.index], true
}

// Items returns a copy of the sequence.
func (c *Cursor[T]) Items() []T {
	return append([]T(nil), c.items...)
}

// Advance moves forward one step, wrapping to 0 past the end.
func (c *Cursor[T]) Advance() {
	if n := len(c.items); n > 0 {
		c.index = (c.index + 1) % n
	}
}

// Retreat moves back one step, wrapping to the last entry before 0.
func (c *Cursor[T]) Retreat() {
	if n := len(c.items); n > 0 {
		c.index = (c.index - 1 + n) % n
	}
}

// Append extends the sequence; the current position is kept.
func (c *Cursor[T]) Append(items ...T) {
	c.items = append(c.items, items...)
}
