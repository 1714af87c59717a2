// Package pagination slices sorted collections into stable pages.
package pagination

import "sort"

// DefaultPageSize is used when callers pass a non-positive page size.
const DefaultPageSize = 10

// Page is one slice of a collection.
type Page[T any] struct {
	Items       []T `json:"items"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
	PageSize    int `json:"pageSize"`
}

// TotalPages returns max(1, ceil(count/pageSize)).
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	pages := (count + pageSize - 1) / pageSize
	if pages < 1 {
		return 1
	}
	return pages
}

// Clamp moves page into [1, totalPages].
func Clamp(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Paginate slices records, which must already be in presentation order.
// Out-of-range pages return the nearest valid page.
func Paginate[T any](records []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := TotalPages(len(records), pageSize)
	page = Clamp(page, total)

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}

	items := make([]T, end-start)
	copy(items, records[start:end])

	return Page[T]{
		Items:       items,
		CurrentPage: page,
		TotalPages:  total,
		TotalItems:  len(records),
		PageSize:    pageSize,
	}
}

// SortAndPaginate sorts a copy of records with less, then paginates it.
// The sort is stable so equal keys keep their relative order.
func SortAndPaginate[T any](records []T, less func(a, b T) bool, page, pageSize int) Page[T] {
	sorted := make([]T, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return Paginate(sorted, page, pageSize)
}

// View is the page state a presentation layer keeps for one collection.
// A growing collection sends the view back to page 1 so no page points at
// shifted contents.
type View struct {
	Page     int
	PageSize int
	seen     int
}

// NewView starts on page 1.
func NewView(pageSize int) *View {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &View{Page: 1, PageSize: pageSize, seen: -1}
}

// Observe records the current collection size and returns the page to show.
func (v *View) Observe(count int) int {
	if v.seen >= 0 && count > v.seen {
		v.Page = 1
	}
	v.seen = count
	v.Page = Clamp(v.Page, TotalPages(count, v.PageSize))
	return v.Page
}

// Goto moves the view, clamped against the last observed size.
func (v *View) Goto(page int) int {
	count := v.seen
	if count < 0 {
		count = 0
	}
	v.Page = Clamp(page, TotalPages(count, v.PageSize))
	return v.Page
}

// Request is one page query from a client. Seen is the collection size the
// client last displayed; zero or less means unknown.
type Request struct {
	Page     int
	PageSize int
	Seen     int
}

// Resolve returns the page to serve for a collection of count records,
// replaying the client's view: growth since Seen sends it back to page 1.
func (r Request) Resolve(count int) int {
	v := NewView(r.PageSize)
	v.Page = r.Page
	if r.Seen > 0 {
		v.seen = r.Seen
	}
	return v.Observe(count)
}
