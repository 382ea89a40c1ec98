package paginate

import (
	"context"
	"errors"
	"iter"
)

// ErrNoMoreItems is returned by Iterator.Next once the sequence is exhausted.
var ErrNoMoreItems = errors.New("no more items")

// Iterator is a pull-style view of Items for callers that prefer HasNext/Next
// over range loops. Call Stop when abandoning an iterator early.
type Iterator[T any] struct {
	next func() (T, error, bool)
	stop func()

	item     T
	err      error
	buffered bool
	done     bool
}

// NewIterator returns an iterator over every item of every page.
func NewIterator[Item, In, Out any](ctx context.Context, op func(context.Context, In) (Out, error), in In, opts ...Option) *Iterator[Item] {
	return FromSeq(Items[Item](ctx, op, in, opts...))
}

// FromSeq wraps any sequence in an Iterator.
func FromSeq[T any](seq iter.Seq2[T, error]) *Iterator[T] {
	next, stop := iter.Pull2(seq)

	return &Iterator[T]{next: next, stop: stop}
}

// HasNext reports whether Next will return another item or failure.
func (it *Iterator[T]) HasNext() bool {
	it.fill()

	return !it.done
}

// Next returns the next item, or the failure that ended the sequence.
func (it *Iterator[T]) Next() (T, error) {
	it.fill()

	if it.done {
		var zero T

		return zero, ErrNoMoreItems
	}

	it.buffered = false

	return it.item, it.err
}

// All drains the iterator. On failure the items read so far are returned with
// the error.
func (it *Iterator[T]) All() ([]T, error) {
	defer it.Stop()

	var all []T

	for it.HasNext() {
		item, err := it.Next()
		if err != nil {
			return all, err
		}

		all = append(all, item)
	}

	return all, nil
}

// ForEach calls fn for each item, stopping at the first error from either the
// sequence or fn.
func (it *Iterator[T]) ForEach(fn func(T) error) error {
	defer it.Stop()

	for it.HasNext() {
		item, err := it.Next()
		if err != nil {
			return err
		}

		err = fn(item)
		if err != nil {
			return err
		}
	}

	return nil
}

// Stop releases the underlying sequence. It is safe to call more than once.
func (it *Iterator[T]) Stop() {
	it.done = true
	it.buffered = false
	it.stop()
}

func (it *Iterator[T]) fill() {
	if it.buffered || it.done {
		return
	}

	item, err, ok := it.next()
	if !ok {
		it.done = true

		return
	}

	it.item, it.err, it.buffered = item, err, true
}

// CollectAll fetches every item across all pages.
func CollectAll[Item, In, Out any](ctx context.Context, op func(context.Context, In) (Out, error), in In, opts ...Option) ([]Item, error) {
	return NewIterator[Item](ctx, op, in, opts...).All()
}
