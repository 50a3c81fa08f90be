package ifunny

import (
	"context"
	"errors"
	"iter"

	"github.com/jamesprial/go-ifunny-api-wrapper/internal"
	"github.com/jamesprial/go-ifunny-api-wrapper/pkg/types"
)

// ErrNoMoreItems is returned by Iterator.Next once the sequence is exhausted.
var ErrNoMoreItems = errors.New("no more items available")

// Iterator lazily walks every item of a paginated collection. Pages are
// requested one at a time, only when the items already buffered run out.
// An Iterator is not safe for concurrent use.
type Iterator[T any] struct {
	ctx    context.Context
	fetch  PageFunc[T]
	params types.PageParams

	buffer    []T
	bufferIdx int
	cursor    types.Cursor
	hasMore   bool
	err       error
}

// Produce returns an iterator over the collection served by fetch, starting
// at params.Next. Nothing is fetched until HasNext or Next is called.
func Produce[T any](ctx context.Context, fetch PageFunc[T], params types.PageParams) *Iterator[T] {
	return &Iterator[T]{
		ctx:     ctx,
		fetch:   fetch,
		params:  params,
		cursor:  params.Next,
		hasMore: true,
	}
}

// WithLimit sets the number of items to request per page.
func (it *Iterator[T]) WithLimit(limit int) *Iterator[T] {
	if limit > internal.MaxPageLimit {
		limit = internal.MaxPageLimit
	}
	if limit < 1 {
		limit = 1
	}
	it.params.Limit = limit
	return it
}

// HasNext reports whether another item is available, fetching pages as needed.
// It returns false once the collection is exhausted or a fetch failed; use
// Err to tell the two apart.
func (it *Iterator[T]) HasNext() bool {
	for it.err == nil && it.bufferIdx >= len(it.buffer) {
		if !it.hasMore {
			return false
		}
		it.fill()
	}
	return it.err == nil
}

// Next returns the next item. It returns ErrNoMoreItems after the last item,
// or the error that ended the iteration.
func (it *Iterator[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		if it.err != nil {
			return zero, it.err
		}
		return zero, ErrNoMoreItems
	}

	item := it.buffer[it.bufferIdx]
	it.bufferIdx++
	return item, nil
}

func (it *Iterator[T]) fill() {
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return
	}

	params := it.params
	params.Next = it.cursor

	page, err := it.fetch(it.ctx, params)
	if err != nil {
		it.err = err
		return
	}
	if page == nil {
		it.hasMore = false
		return
	}

	it.buffer = page.Items
	it.bufferIdx = 0

	// A server echoing the cursor it was given would loop forever.
	if page.Next == "" || page.Next == params.Next {
		it.hasMore = false
	}
	it.cursor = page.Next
}

// Err returns the error that ended the iteration, if any.
func (it *Iterator[T]) Err() error {
	return it.err
}

// Cursor returns the cursor of the next page to fetch. Passing it as
// PageParams.Next to a new iterator resumes after the buffered items.
func (it *Iterator[T]) Cursor() types.Cursor {
	if !it.hasMore {
		return ""
	}
	return it.cursor
}

// Reset restarts the iteration from the cursor the iterator was created with.
func (it *Iterator[T]) Reset() {
	it.buffer = nil
	it.bufferIdx = 0
	it.cursor = it.params.Next
	it.hasMore = true
	it.err = nil
}

// Collect gathers the remaining items, stopping after maxItems when it is positive.
func (it *Iterator[T]) Collect(maxItems int) ([]T, error) {
	var items []T
	for (maxItems <= 0 || len(items) < maxItems) && it.HasNext() {
		item, err := it.Next()
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, it.err
}

// All returns the remaining items as a range-over-func sequence. Iteration
// stops after yielding a non-nil error.
func (it *Iterator[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for it.HasNext() {
			item, err := it.Next()
			if !yield(item, err) || err != nil {
				return
			}
		}
		if it.err != nil {
			var zero T
			yield(zero, it.err)
		}
	}
}
