// Package pagination pages list endpoints by page number.
package pagination

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// Params is the requested page, 1-based.
type Params struct {
	Page    int `form:"page" json:"page"`
	PerPage int `form:"per_page" json:"per_page"`
}

// Normalize clamps the page to 1 and the page size to [1, MaxPerPage].
func (p *Params) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PerPage < 1:
		p.PerPage = DefaultPerPage
	case p.PerPage > MaxPerPage:
		p.PerPage = MaxPerPage
	}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Meta describes where a page sits in the full result.
type Meta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
}

// Page is one page of items plus its position.
type Page[T any] struct {
	Items      []T  `json:"items"`
	Pagination Meta `json:"pagination"`
}

// NewPage wraps items fetched with p out of total matching rows.
func NewPage[T any](items []T, p Params, total int64) *Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.PerPage > 0 {
		pages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return &Page[T]{
		Items: items,
		Pagination: Meta{
			CurrentPage: p.Page,
			PerPage:     p.PerPage,
			Total:       total,
			TotalPages:  pages,
			HasNext:     p.Page < pages,
		},
	}
}
