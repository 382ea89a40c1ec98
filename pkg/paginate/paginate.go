// Package paginate turns a page-returning operation into lazy sequences of
// pages or items by following the next-page cursor in each response.
//
// Field names come from a Trait, so any operation whose input and output
// encode to JSON objects can be paginated:
//
//	list := listDatabases.Bind(client)
//	for db, err := range paginate.Items[Database](ctx, list, ListDatabasesInput{}) {
//	  if err != nil {
//	    return err
//	  }
//	  fmt.Println(db.Name)
//	}
//
// Sequences fetch one page at a time, strictly in cursor order, and start over
// from the first page each time they are ranged over. A failure is yielded once
// and ends the sequence; wrap the operation with a retry policy before
// paginating it if pages should be retried.
package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/fivetwenty-io/restkit/internal/constants"
	"github.com/fivetwenty-io/restkit/internal/fieldpath"
)

// Static errors for err113 compliance.
var (
	ErrInvalidCursor = errors.New("invalid next page cursor")
	ErrInvalidItems  = errors.New("invalid page items")
	ErrInvalidInput  = errors.New("invalid paginated input")
)

// Trait names the fields that carry pagination state.
type Trait struct {
	// PageField is the input field holding the requested page.
	PageField string
	// NextPageField is the output field holding the next page, or null on the last page.
	NextPageField string
	// ItemsPath is the dotted path of the item list in the output.
	ItemsPath string
	// PerPageField is the input field limiting page size.
	PerPageField string
	// Start is the first page number.
	Start int
}

// DefaultTrait matches the API's documented convention: page/per_page in,
// next_page and data out, 1-indexed pages.
var DefaultTrait = Trait{
	PageField:     "page",
	NextPageField: "next_page",
	ItemsPath:     "data",
	PerPageField:  "per_page",
	Start:         constants.DefaultStartPage,
}

type options struct {
	trait    Trait
	pageSize int
	maxPages int
}

// Option configures a sequence.
type Option func(*options)

// WithTrait overrides DefaultTrait for operations that depart from it.
func WithTrait(trait Trait) Option {
	return func(o *options) {
		o.trait = trait
	}
}

// WithPageSize sends the trait's per-page field on every request.
func WithPageSize(size int) Option {
	return func(o *options) {
		o.pageSize = size
	}
}

// WithStartPage starts from page instead of the trait's start page.
func WithStartPage(page int) Option {
	return func(o *options) {
		o.trait.Start = page
	}
}

// WithMaxPages stops after n pages even if the API reports more.
func WithMaxPages(n int) Option {
	return func(o *options) {
		o.maxPages = n
	}
}

func buildOptions(opts []Option) options {
	o := options{trait: DefaultTrait}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// Pages returns the lazy sequence of pages produced by calling op with in and
// an advancing page cursor.
func Pages[In, Out any](ctx context.Context, op func(context.Context, In) (Out, error), in In, opts ...Option) iter.Seq2[Out, error] {
	o := buildOptions(opts)

	return func(yield func(Out, error) bool) {
		walk(ctx, op, in, o, func(out Out, _ fieldpath.Object, err error) bool {
			return yield(out, err)
		})
	}
}

// Items returns the lazy sequence of items across all pages. Pages whose item
// list is empty or missing contribute nothing; pagination continues on the
// cursor alone.
func Items[Item, In, Out any](ctx context.Context, op func(context.Context, In) (Out, error), in In, opts ...Option) iter.Seq2[Item, error] {
	o := buildOptions(opts)

	return func(yield func(Item, error) bool) {
		var zero Item

		walk(ctx, op, in, o, func(_ Out, wire fieldpath.Object, err error) bool {
			if err != nil {
				yield(zero, err)

				return false
			}

			items, err := pageItems[Item](wire, o.trait.ItemsPath)
			if err != nil {
				yield(zero, err)

				return false
			}

			for _, item := range items {
				if !yield(item, nil) {
					return false
				}
			}

			return true
		})
	}
}

// walk drives the cursor loop, handing each page and its wire form to visit.
// It stops when visit returns false, after the first failure, or after the
// last page.
func walk[In, Out any](
	ctx context.Context,
	op func(context.Context, In) (Out, error),
	in In,
	o options,
	visit func(out Out, wire fieldpath.Object, err error) bool,
) {
	var zero Out

	base, err := fieldpath.Encode(in)
	if err != nil {
		visit(zero, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err))

		return
	}

	page := o.trait.Start

	for fetched := 0; o.maxPages <= 0 || fetched < o.maxPages; fetched++ {
		pageIn, err := inputForPage[In](base, o, page)
		if err != nil {
			visit(zero, nil, err)

			return
		}

		out, err := op(ctx, pageIn)
		if err != nil {
			visit(zero, nil, err)

			return
		}

		wire, err := fieldpath.Encode(out)
		if err != nil {
			visit(zero, nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err))

			return
		}

		next, more, cursorErr := nextPage(wire, o.trait.NextPageField)

		if !visit(out, wire, nil) {
			return
		}

		if cursorErr != nil {
			visit(zero, nil, cursorErr)

			return
		}

		if !more {
			return
		}

		page = next
	}
}

func inputForPage[In any](base fieldpath.Object, o options, page int) (In, error) {
	var in In

	fields := base.Clone()

	err := fields.Set(o.trait.PageField, page)
	if err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if o.pageSize > 0 && o.trait.PerPageField != "" {
		err = fields.Set(o.trait.PerPageField, o.pageSize)
		if err != nil {
			return in, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	err = fields.DecodeInto(&in)
	if err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	err = checkCarried(in, o.trait.PageField, page)
	if err != nil {
		return in, err
	}

	if o.pageSize > 0 && o.trait.PerPageField != "" {
		err = checkCarried(in, o.trait.PerPageField, o.pageSize)
		if err != nil {
			return in, err
		}
	}

	return in, nil
}

// checkCarried reports an input type that silently drops field, which would
// otherwise request the same page forever. A zero value may be omitted.
func checkCarried[In any](in In, field string, want int) error {
	wire, err := fieldpath.Encode(in)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	value, ok := wire.Get(field)
	if !ok {
		if want == 0 {
			return nil
		}

		return fmt.Errorf("%w: input has no %q field", ErrInvalidInput, field)
	}

	got, err := fieldpath.Int(value)
	if err != nil || got != want {
		return fmt.Errorf("%w: %q does not hold %d", ErrInvalidInput, field, want)
	}

	return nil
}

// nextPage reads the cursor. Missing and null both mean there are no more pages.
func nextPage(wire fieldpath.Object, field string) (int, bool, error) {
	value, ok := wire.Get(field)
	if !ok {
		return 0, false, nil
	}

	next, err := fieldpath.Int(value)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	return next, true, nil
}

func pageItems[Item any](wire fieldpath.Object, path string) ([]Item, error) {
	value, ok := wire.Get(path)
	if !ok {
		return nil, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidItems, err)
	}

	var items []Item

	err = json.Unmarshal(data, &items)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidItems, err)
	}

	return items, nil
}
