package calendar

// Page is one slice of a longer list.
type Page[T any] struct {
	Items      []T
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

func (p Page[T]) HasPrev() bool { return p.Page > 1 }
func (p Page[T]) HasNext() bool { return p.Page < p.TotalPages }
func (p Page[T]) PrevPage() int { return p.Page - 1 }
func (p Page[T]) NextPage() int { return p.Page + 1 }

// Paginate returns page (1-based, clamped into range) of items.
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage <= 0 {
		perPage = 5
	}
	total := len(items)
	pages := (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	from := (page - 1) * perPage
	to := from + perPage
	if to > total {
		to = total
	}

	return Page[T]{
		Items:      items[from:to],
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: pages,
	}
}
