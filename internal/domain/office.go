package domain

// Office is read-only reference data used for routing and archive filters.
type Office struct {
	ID      int64
	Name    string
	Address string
	City    string
	Region  string
}
