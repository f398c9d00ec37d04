package types

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"
)

// CandidateListing is a scraped third-party advertisement considered a
// comparable for one source vehicle. Candidates are never mutated after
// scoring; a later run re-scraping the same vehicle supersedes them via
// upsert on the derived ID.
type CandidateListing struct {
	ID              string  `json:"id" bson:"id"`
	Name            string  `json:"name" bson:"name"`
	Price           float64 `json:"price" bson:"price"`
	DealType        string  `json:"deal_type,omitempty" bson:"deal_type,omitempty"`
	Link            string  `json:"link" bson:"link"`
	Image           string  `json:"image,omitempty" bson:"image,omitempty"`
	Mileage         float64 `json:"mileage" bson:"mileage"`
	Metadata        string  `json:"car_metadata,omitempty" bson:"car_metadata,omitempty"`
	Domain          string  `json:"domain" bson:"domain"`
	FuelType        string  `json:"fuel_type,omitempty" bson:"fuel_type,omitempty"`
	Gearbox         string  `json:"boite_de_vitesse,omitempty" bson:"boite_de_vitesse,omitempty"`
	ParentVehicleID string  `json:"parent_car_id" bson:"parent_car_id"`
	UpdatedAt       string  `json:"updated_at" bson:"updated_at"`

	MatchPercentage float64 `json:"matching_percentage" bson:"matching_percentage"`
	MatchReason     string  `json:"matching_percentage_reason,omitempty" bson:"matching_percentage_reason,omitempty"`
}

// ListingID derives a candidate identifier from the advert link, scoped to
// its parent vehicle. The same physical ad scraped for two source vehicles
// yields two distinct IDs: a comparison is a vehicle-scoped fact, not a
// global ad catalog entry. Hashing the link (rather than stamping a time)
// keeps IDs stable across re-runs so persistence upserts instead of
// duplicating.
func ListingID(link, parentVehicleID string) string {
	sum := md5.Sum([]byte(link))
	return hex.EncodeToString(sum[:]) + "_" + parentVehicleID
}

// ToJSON serializes the listing for LLM scoring prompts.
func (c *CandidateListing) ToJSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Now returns the timestamp format used on listings.
func Now() string {
	return time.Now().Format(time.RFC3339)
}

// DedupListings drops candidates whose derived ID was already seen,
// keeping the first occurrence. Applied once at save time; candidates
// are intentionally not deduplicated across queries during acquisition.
func DedupListings(listings []*CandidateListing) []*CandidateListing {
	seen := make(map[string]struct{}, len(listings))
	out := make([]*CandidateListing, 0, len(listings))
	for _, l := range listings {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
