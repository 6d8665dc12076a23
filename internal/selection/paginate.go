package selection

import "github.com/wonny/aegis-screener/internal/contracts"

// DefaultPageSize is used when the caller passes no page size
const DefaultPageSize = 50

// Page is one slice of a sorted result set
type Page struct {
	Items      []contracts.ScoredResult `json:"items"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	Total      int                      `json:"total"`
	TotalPages int                      `json:"total_pages"`
}

// HasNext reports whether a later page exists
func (p Page) HasNext() bool {
	return p.Page < p.TotalPages
}

// Paginate slices sorted results. page is 1-based (values < 1 mean 1); pageSize < 1 means
// DefaultPageSize and is capped at maxPageSize when maxPageSize > 0. A page past the end
// yields no items but still reports the totals.
func Paginate(results []contracts.ScoredResult, page, pageSize, maxPageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if maxPageSize > 0 && pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total := len(results)
	totalPages := (total + pageSize - 1) / pageSize

	p := Page{
		Items:      []contracts.ScoredResult{},
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}

	if page > totalPages {
		return p
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}
	p.Items = results[start:end]
	return p
}
