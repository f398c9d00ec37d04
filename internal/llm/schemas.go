package llm

// FilterResult is the structured reply of a vocabulary-mapping call. Field
// names line up with types.SiteFilter; any field the model could not ground
// in the offered vocabulary comes back zero-valued.
type FilterResult struct {
	Make     string  `json:"make"`
	Model    string  `json:"model"`
	Version  string  `json:"version"`
	Color    string  `json:"color"`
	Mileage  float64 `json:"mileage"`
	FuelType string  `json:"fuel_type"`
	YearFrom int     `json:"year_from"`
	YearTo   int     `json:"year_to"`
}

// MatchResult is the structured reply of a similarity-scoring call.
type MatchResult struct {
	MatchingPercentage       float64 `json:"matching_percentage"`
	MatchingPercentageReason string  `json:"matching_percentage_reason"`
}

// FilterSchema is the JSON schema requested for vocabulary-mapping calls.
var FilterSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"make":      map[string]any{"type": "string"},
		"model":     map[string]any{"type": "string"},
		"version":   map[string]any{"type": "string"},
		"color":     map[string]any{"type": "string"},
		"mileage":   map[string]any{"type": "number"},
		"fuel_type": map[string]any{"type": "string"},
		"year_from": map[string]any{"type": "integer"},
		"year_to":   map[string]any{"type": "integer"},
	},
	"required": []string{"make", "model", "mileage", "fuel_type"},
}

// MatchSchema is the JSON schema requested for similarity-scoring calls.
var MatchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"matching_percentage":        map[string]any{"type": "number"},
		"matching_percentage_reason": map[string]any{"type": "string"},
	},
	"required": []string{"matching_percentage"},
}
