package storage

// PageRequest selects one page of a result set. Page is 1-indexed.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize clamps the request to the contract minimums (page >= 1,
// limit >= 1) so adapters never divide by zero or skip negative offsets.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	return p
}

// Offset is the number of records to skip for this page.
func (p PageRequest) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// PageMeta describes the position of a page within the full result set.
type PageMeta struct {
	Total       int  `json:"total"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// Page is one page of data plus its meta.
type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

// NewPageMeta computes meta for a normalized request.
// TotalPages = ceil(total/limit).
func NewPageMeta(total int, req PageRequest) PageMeta {
	req = req.Normalize()
	totalPages := (total + req.Limit - 1) / req.Limit
	return PageMeta{
		Total:       total,
		Page:        req.Page,
		Limit:       req.Limit,
		TotalPages:  totalPages,
		HasNext:     req.Page < totalPages,
		HasPrevious: req.Page > 1 && total > 0,
	}
}

// Paginate slices an already-filtered result set into a page. Memory adapters
// share it; SQL adapters push LIMIT/OFFSET down instead.
func Paginate[T any](records []T, req PageRequest) Page[T] {
	req = req.Normalize()
	meta := NewPageMeta(len(records), req)
	start := req.Offset()
	if start >= len(records) {
		return Page[T]{Data: []T{}, Meta: meta}
	}
	end := start + req.Limit
	if end > len(records) {
		end = len(records)
	}
	return Page[T]{Data: records[start:end], Meta: meta}
}
