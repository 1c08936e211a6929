// Package bulletin implements the data bus shared between sensor producers,
// the fusion pipeline and downstream consumers.
//
// A Bulletin is a double-buffered cell with exactly one writer and any number
// of readers. Writes never block. Reads never block either; a reader that
// races with the writer retries its copy until it observes a stable counter,
// so no reader ever returns a torn value.
//
// The slot copy in a reader is intentionally unsynchronized (a seqlock); the
// counter re-check is what makes the copy valid. Tests that hammer a
// Bulletin from several goroutines are therefore excluded under -race.
package bulletin

import (
	"go.uber.org/atomic"
)

const (
	// writtenFlag is set permanently by the first Write.
	writtenFlag uint32 = 1 << 31
)

// Bulletin holds the latest value published by its Writer.
type Bulletin[T any] struct {
	slots [2]T
	// counter: low 31 bits generation, top bit "ever written".
	counter atomic.Uint32
}

// noCopy may be embedded into structs which must not be copied after first
// use. go vet's copylocks check reports copies.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Writer is the only handle able to publish into its Bulletin.
//
// New returns exactly one Writer per Bulletin and there is no other way to
// obtain one, so single-writer access holds as long as the *Writer is handed
// to a single producer.
type Writer[T any] struct {
	_ noCopy
	b *Bulletin[T]
}

// New allocates a Bulletin together with its unique Writer.
func New[T any]() (*Bulletin[T], *Writer[T]) {
	b := &Bulletin[T]{}
	return b, &Writer[T]{b: b}
}

// Write publishes v. It never blocks and does not allocate.
func (w *Writer[T]) Write(v T) {
	b := w.b
	c := b.counter.Load()
	b.slots[c&1] = v
	b.counter.Store((c + 1) | writtenFlag)
}

// Written reports whether anything has ever been published.
func (b *Bulletin[T]) Written() bool {
	return b.counter.Load() != 0
}

// Reader returns a fresh read cursor. Each consumer must own its own Reader.
func (b *Bulletin[T]) Reader() *Reader[T] {
	return &Reader[T]{b: b}
}

// Reader is a per-consumer cursor over a Bulletin. Not safe for concurrent use.
type Reader[T any] struct {
	b    *Bulletin[T]
	seen uint32
	age  int
}

// load copies the published slot, retrying until the counter is stable
// across the copy.
func (r *Reader[T]) load() (T, uint32) {
	for {
		c := r.b.counter.Load()
		if c == 0 {
			var zero T
			return zero, 0
		}
		v := r.b.slots[(c&1)^1]
		if c == r.b.counter.Load() {
			return v, c
		}
	}
}

// Get returns the current value only if it was published after the last
// value this reader observed through Get or GetAgingLast.
func (r *Reader[T]) Get() (T, bool) {
	for {
		c := r.b.counter.Load()
		if c == r.seen {
			var zero T
			return zero, false
		}
		v := r.b.slots[(c&1)^1]
		if c != r.b.counter.Load() {
			continue
		}
		r.seen = c
		r.age = 0
		return v, true
	}
}

// GetLast returns the latest published value regardless of whether this
// reader has seen it. It reports false only if nothing was ever written.
// The cursor used by Get is left untouched.
func (r *Reader[T]) GetLast() (T, bool) {
	v, c := r.load()
	return v, c != 0
}

// GetAgingLast returns the latest value until it has been returned more than
// maxAge times without a newer generation appearing. A maxAge of zero
// behaves like GetLast.
func (r *Reader[T]) GetAgingLast(maxAge int) (T, bool) {
	if maxAge <= 0 {
		return r.GetLast()
	}
	v, c := r.load()
	if c == 0 {
		return v, false
	}
	if c == r.seen {
		if r.age >= maxAge {
			var zero T
			return zero, false
		}
		r.age++
	} else {
		r.age = 0
	}
	r.seen = c
	return v, true
}

// Generation returns the generation last observed by Get or GetAgingLast.
func (r *Reader[T]) Generation() uint32 {
	return r.seen &^ writtenFlag
}
