package aggregator

import (
	"sort"

	"github.com/lokatools/marketmirror/internal/market"
)

// SortMode orders a session's items.
type SortMode string

// Supported sort modes. SortDefault preserves upstream page order.
const (
	SortDefault   SortMode = "default"
	SortPriceAsc  SortMode = "price_asc"
	SortPriceDesc SortMode = "price_desc"
)

// ParseSortMode maps a request parameter to a SortMode, defaulting to
// upstream order for anything unrecognized.
func ParseSortMode(s string) SortMode {
	switch SortMode(s) {
	case SortPriceAsc, SortPriceDesc:
		return SortMode(s)
	default:
		return SortDefault
	}
}

// Session holds one aggregation result for presentation: the collected
// items, the active sort mode, and the current page. Sorting is
// non-destructive; the original upstream order is always recoverable by
// switching back to SortDefault.
type Session struct {
	items    []market.ListedItem
	sortMode SortMode
	page     int
	pageSize int
}

// NewSession wraps a collected item list for paged, sortable presentation.
func NewSession(items []market.ListedItem, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Session{
		items:    items,
		sortMode: SortDefault,
		pageSize: pageSize,
	}
}

// SetSort switches the sort mode and resets to the first page, since a
// position under the old order is meaningless under the new one.
func (s *Session) SetSort(mode SortMode) {
	s.sortMode = mode
	s.page = 0
}

// Items returns all items under the active sort mode. The returned slice is
// a copy; mutating it does not affect the session.
func (s *Session) Items() []market.ListedItem {
	view := make([]market.ListedItem, len(s.items))
	copy(view, s.items)
	switch s.sortMode {
	case SortPriceAsc:
		sort.SliceStable(view, func(i, j int) bool { return view[i].Price < view[j].Price })
	case SortPriceDesc:
		sort.SliceStable(view, func(i, j int) bool { return view[i].Price > view[j].Price })
	}
	return view
}

// Page returns the current page of items under the active sort mode.
func (s *Session) Page() []market.ListedItem {
	view := s.Items()
	start := s.page * s.pageSize
	if start >= len(view) {
		return nil
	}
	end := start + s.pageSize
	if end > len(view) {
		end = len(view)
	}
	return view[start:end]
}

// PageCount returns the number of pages.
func (s *Session) PageCount() int {
	if len(s.items) == 0 {
		return 0
	}
	return (len(s.items) + s.pageSize - 1) / s.pageSize
}

// PageNumber returns the zero-based current page.
func (s *Session) PageNumber() int {
	return s.page
}

// Next advances to the next page if one exists.
func (s *Session) Next() {
	if s.page < s.PageCount()-1 {
		s.page++
	}
}

// Prev moves to the previous page if one exists.
func (s *Session) Prev() {
	if s.page > 0 {
		s.page--
	}
}

// Seek jumps to the given page, clamped to the valid range.
func (s *Session) Seek(page int) {
	if page < 0 {
		page = 0
	}
	if max := s.PageCount() - 1; max >= 0 && page > max {
		page = max
	}
	s.page = page
}
