package interfaces

import "errors"

var (
	// ErrNotFound is returned by single-item lookups that match nothing
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a save violates a unique key (MAC or plant id)
	ErrDuplicate = errors.New("duplicate key")
)

// PaginationResult represents a paginated result
type PaginationResult struct {
	Items    interface{} `json:"items"`
	NextPage *int        `json:"next_page,omitempty"`
	Total    int         `json:"total,omitempty"`
}
