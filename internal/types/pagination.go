package types

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	Page       int  `json:"page,omitempty"`
	Limit      int  `json:"limit"`
	HasMore    bool `json:"has_more"`
	TotalItems *int `json:"total_items,omitempty"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings   []string  `json:"warnings,omitempty"`
	Pagination *PageInfo `json:"pagination,omitempty"`
}

// PageRequest is a page/limit pair parsed from query parameters.
type PageRequest struct {
	Page  int
	Limit int
}

// Offset returns the number of rows to skip.
func (p PageRequest) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}
