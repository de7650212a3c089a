package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Offset(t *testing.T) {
	assert.Equal(t, 0, Filter{Page: 0, PageSize: 20}.Offset())
	assert.Equal(t, 0, Filter{Page: 1, PageSize: 20}.Offset())
	assert.Equal(t, 40, Filter{Page: 3, PageSize: 20}.Offset())
}

func TestNewPaginated(t *testing.T) {
	t.Run("middle page", func(t *testing.T) {
		p := NewPaginated([]int{1, 2, 3, 4, 5}, 23, 2, 5)

		assert.Equal(t, 2, p.CurrentPage)
		assert.Equal(t, 5, p.PerPage)
		assert.Equal(t, 5, p.LastPage)
		assert.Equal(t, 6, p.From)
		assert.Equal(t, 10, p.To)
	})

	t.Run("partial last page", func(t *testing.T) {
		p := NewPaginated([]int{1, 2, 3}, 23, 5, 5)

		assert.Equal(t, 5, p.LastPage)
		assert.Equal(t, 21, p.From)
		assert.Equal(t, 23, p.To)
	})

	t.Run("empty result", func(t *testing.T) {
		p := NewPaginated([]int{}, 0, 1, 20)

		assert.Equal(t, 1, p.LastPage)
		assert.Zero(t, p.From)
		assert.Zero(t, p.To)
	})

	t.Run("invalid page values are clamped", func(t *testing.T) {
		p := NewPaginated([]int{1}, 1, 0, 0)

		assert.Equal(t, 1, p.CurrentPage)
		assert.Equal(t, 1, p.PerPage)
		assert.Equal(t, 1, p.From)
	})
}

func TestDomainError_Is(t *testing.T) {
	specific := NewDomainError(CodeNotFound, "Invoice not found")
	wrapped := fmt.Errorf("loading invoice: %w", specific)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrInvalidState))

	var de *DomainError
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, "Invoice not found", de.Error())
}
