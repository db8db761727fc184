package entityrepo

// Page is one page of a listing plus what a pager needs to render.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
	PageIndex  int `json:"page_index"`
	PageSize   int `json:"page_size"`
}

// NewPage assembles a page. A nil items slice becomes empty.
func NewPage[T any](items []T, totalCount, pageIndex, pageSize int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:      items,
		TotalCount: totalCount,
		PageIndex:  pageIndex,
		PageSize:   pageSize,
	}
}

// TotalPages is the number of pages needed for TotalCount rows. An unbounded
// page size yields a single page, or none when there are no rows.
func (p *Page[T]) TotalPages() int {
	if p.TotalCount == 0 {
		return 0
	}
	if p.PageSize <= 0 {
		return 1
	}
	pages := p.TotalCount / p.PageSize
	if p.TotalCount%p.PageSize > 0 {
		pages++
	}
	return pages
}

func (p *Page[T]) HasPreviousPage() bool {
	return p.PageIndex > 0
}

func (p *Page[T]) HasNextPage() bool {
	return p.PageIndex+1 < p.TotalPages()
}
