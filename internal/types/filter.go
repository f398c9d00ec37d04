package types

// SiteFilter is a source vehicle mapped onto one site's filter vocabulary.
// It only exists during planning; the queries derived from it are what the
// pipeline executes.
type SiteFilter struct {
	Make     string  `json:"make"`
	Model    string  `json:"model"`
	Version  string  `json:"version"`
	Color    string  `json:"color"`
	Mileage  float64 `json:"mileage"`
	FuelType string  `json:"fuel_type"`
	YearFrom int     `json:"year_from"`
	YearTo   int     `json:"year_to"`
}

// Query is one executable search against a site: either a GET URL or a
// structured JSON payload POSTed to a search API, depending on the site.
type Query struct {
	// URL is the GET target for URL-driven sites.
	URL string

	// Payload is the POST body for API-driven sites.
	Payload map[string]any

	// Label names the escalation step for logs ("base", "mileage",
	// "pro_seller", "4x4", "opt:<flag>").
	Label string

	// Basic marks the broadest query in the sequence. A basic query's
	// result set is accepted even below the miss threshold.
	Basic bool
}

// Vocabulary holds a site's currently accepted filter values for one make,
// fetched live before planning. Any of the slices may be empty; the planner
// still runs in degraded mode against an empty vocabulary.
type Vocabulary struct {
	Models    []string
	Colors    []string
	Versions  []string
	FuelTypes map[string]string

	// Codes maps labels to site-internal codes for sites whose filters
	// take numeric or enum codes rather than labels.
	ModelCodes map[string]string
	ColorCodes map[string]string
}
