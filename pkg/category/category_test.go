package category_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fivetwenty-io/restkit/pkg/category"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type overloadedError struct{}

func (*overloadedError) Error() string { return "overloaded" }

func (*overloadedError) Categories() []category.Category {
	return []category.Category{category.Server, category.Throttling}
}

type reversedOverloadedError struct{}

func (*reversedOverloadedError) Error() string { return "overloaded" }

func (*reversedOverloadedError) Categories() []category.Category {
	return []category.Category{category.Throttling, category.Server}
}

type forbiddenError struct{}

func (forbiddenError) Error() string { return "forbidden" }

func (forbiddenError) Categories() []category.Category {
	return []category.Category{category.Auth}
}

var errPlain = errors.New("plain")

func TestHas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		category category.Category
		expected bool
	}{
		{name: "nil error", err: nil, category: category.Server, expected: false},
		{name: "uncategorized error", err: errPlain, category: category.Server, expected: false},
		{name: "attached category", err: &overloadedError{}, category: category.Server, expected: true},
		{name: "second attached category", err: &overloadedError{}, category: category.Throttling, expected: true},
		{name: "category not attached", err: &overloadedError{}, category: category.Auth, expected: false},
		{name: "value receiver", err: forbiddenError{}, category: category.Auth, expected: true},
		{name: "wrapped", err: fmt.Errorf("listing databases: %w", forbiddenError{}), category: category.Auth, expected: true},
		{name: "joined", err: errors.Join(errPlain, &overloadedError{}), category: category.Throttling, expected: true},
		{name: "tagged foreign error", err: category.Tag(errPlain, category.Network), category: category.Network, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, category.Has(tt.err, tt.category))
		})
	}
}

func TestCategoryComposition(t *testing.T) {
	t.Parallel()

	err := &overloadedError{}

	assert.True(t, category.IsTransient(err))
	assert.True(t, category.Has(err, category.Server))
	assert.True(t, category.Has(err, category.Throttling))
	assert.False(t, category.Has(err, category.Auth))
}

func TestOf_OrderIndependent(t *testing.T) {
	t.Parallel()

	assert.Equal(t, category.Of(&overloadedError{}), category.Of(&reversedOverloadedError{}))
	assert.Equal(t,
		[]category.Category{category.Server, category.Throttling},
		category.Of(&overloadedError{}),
	)
	assert.Empty(t, category.Of(errPlain))
	assert.Empty(t, category.Of(nil))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, category.IsTransient(category.Tag(errPlain, category.Network)))
	assert.True(t, category.IsTransient(category.Tag(errPlain, category.Server)))
	assert.True(t, category.IsTransient(category.Tag(errPlain, category.Throttling)))
	assert.False(t, category.IsTransient(forbiddenError{}))
	assert.False(t, category.IsTransient(category.Tag(errPlain, category.Parse)))
	assert.False(t, category.IsTransient(nil))
}

func TestTag(t *testing.T) {
	t.Parallel()

	require.NoError(t, category.Tag(nil, category.Server))

	tagged := category.Tag(forbiddenError{}, category.Configuration)
	assert.Equal(t, "forbidden", tagged.Error())
	require.ErrorIs(t, category.Tag(errPlain, category.Network), errPlain)
	assert.Equal(t,
		[]category.Category{category.Auth, category.Configuration},
		category.Of(tagged),
	)
}

func TestCatch(t *testing.T) {
	t.Parallel()

	errRecovered := errors.New("recovered")
	handler := func(err error) error {
		return errRecovered
	}

	t.Run("recovers listed category", func(t *testing.T) {
		t.Parallel()

		err := category.Catch(forbiddenError{}, handler, category.NotFound, category.Auth)
		require.ErrorIs(t, err, errRecovered)
	})

	t.Run("propagates other categories unchanged", func(t *testing.T) {
		t.Parallel()

		original := &overloadedError{}
		err := category.Catch(original, handler, category.Auth)
		assert.Same(t, original, err)
	})

	t.Run("nil passes through", func(t *testing.T) {
		t.Parallel()

		called := false
		err := category.Catch(nil, func(error) error {
			called = true

			return nil
		}, category.Auth)
		require.NoError(t, err)
		assert.False(t, called)
	})
}

func TestCatchValue(t *testing.T) {
	t.Parallel()

	value, err := category.CatchValue(0, category.Tag(errPlain, category.NotFound), func(error) (int, error) {
		return 42, nil
	}, category.NotFound)
	require.NoError(t, err)
	assert.Equal(t, 42, value)

	value, err = category.CatchValue(7, errPlain, func(error) (int, error) {
		return 42, nil
	}, category.NotFound)
	require.ErrorIs(t, err, errPlain)
	assert.Equal(t, 7, value)
}
