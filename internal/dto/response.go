package dto

// PaginatedResponse represents one page of a listing
type PaginatedResponse struct {
	Data        interface{} `json:"data"`
	CurrentPage int         `json:"current_page"`
	PerPage     int         `json:"per_page"`
	Total       int         `json:"total"`
	LastPage    int         `json:"last_page"`
}

// NewPaginatedResponse computes last_page, which is at least 1
func NewPaginatedResponse(data interface{}, page, perPage, total int) *PaginatedResponse {
	lastPage := 1
	if perPage > 0 && total > 0 {
		lastPage = (total + perPage - 1) / perPage
	}
	return &PaginatedResponse{
		Data:        data,
		CurrentPage: page,
		PerPage:     perPage,
		Total:       total,
		LastPage:    lastPage,
	}
}
