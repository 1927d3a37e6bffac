package ledger

// DefaultPageSize is the number of transactions shown per page
const DefaultPageSize = 10

// Page describes where an offset/limit window sits inside a result set of
// Total items.
type Page struct {
	Offset int
	Limit  int
	Total  int
}

// NewPage clamps offset to >= 0 and limit to >= 1
func NewPage(offset, limit, total int) Page {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if total < 0 {
		total = 0
	}
	return Page{Offset: offset, Limit: limit, Total: total}
}

// Number is the 1-based page the offset falls on
func (p Page) Number() int {
	return p.Offset/p.Limit + 1
}

// Count is the number of pages needed to show Total items
func (p Page) Count() int {
	return (p.Total + p.Limit - 1) / p.Limit
}

// Beyond reports whether the window starts past the last item
func (p Page) Beyond() bool {
	return p.Offset >= p.Total
}

// HasPrev reports whether there is a page before this one
func (p Page) HasPrev() bool {
	return p.Number() > 1
}

// HasNext reports whether there is a page after this one
func (p Page) HasNext() bool {
	return p.Number() < p.Count()
}

// PrevOffset is the offset of the previous page
func (p Page) PrevOffset() int {
	if !p.HasPrev() {
		return 0
	}
	return (p.Number() - 2) * p.Limit
}

// NextOffset is the offset of the next page
func (p Page) NextOffset() int {
	return p.Number() * p.Limit
}

// Links lists every page number with its offset
func (p Page) Links() []PageLink {
	n := p.Count()
	links := make([]PageLink, 0, n)
	for i := 1; i <= n; i++ {
		links = append(links, PageLink{
			Number: i,
			Offset: (i - 1) * p.Limit,
			Active: i == p.Number(),
		})
	}
	return links
}

type PageLink struct {
	Number int
	Offset int
	Active bool
}
