package dto

// OfficeResponse is reference data for an office.
type OfficeResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Region  string `json:"region"`
}

// FilterSelection echoes the normalised cascade choice.
type FilterSelection struct {
	Region   string `json:"region"`
	City     string `json:"city"`
	OfficeID *int64 `json:"office"`
}

// OfficeFiltersResponse lists the options valid under a selection.
type OfficeFiltersResponse struct {
	Success   bool             `json:"success"`
	Regions   []string         `json:"regions"`
	Cities    []string         `json:"cities"`
	Offices   []OfficeResponse `json:"offices"`
	Selection FilterSelection  `json:"selection"`
}
