package ops

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// page applies limit defaults and bounds and returns the window [lo, hi)
// of a sequence of length total.
func page(limit, offset, total int) (lo, hi int, p Pagination) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset = max(offset, 0)

	lo = min(offset, total)
	hi = min(lo+limit, total)
	return lo, hi, Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: hi < total,
		Total:   total,
	}
}
