package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{"zero value", Params{}, Params{Page: 1, PerPage: DefaultPerPage}},
		{"negative page", Params{Page: -3, PerPage: 10}, Params{Page: 1, PerPage: 10}},
		{"oversized page", Params{Page: 2, PerPage: 500}, Params{Page: 2, PerPage: MaxPerPage}},
		{"in range", Params{Page: 4, PerPage: 25}, Params{Page: 4, PerPage: 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Normalize()
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Params{Page: 1, PerPage: 15}.Offset())
	assert.Equal(t, 30, Params{Page: 3, PerPage: 15}.Offset())
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, Params{Page: 1, PerPage: 2}, 5)
	assert.Equal(t, 3, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasNext)

	last := NewPage([]string{"e"}, Params{Page: 3, PerPage: 2}, 5)
	assert.False(t, last.Pagination.HasNext)

	empty := NewPage[string](nil, Params{Page: 1, PerPage: 15}, 0)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.Pagination.TotalPages)
	assert.False(t, empty.Pagination.HasNext)
}
