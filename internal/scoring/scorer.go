package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/dealermetrics/carmatch/internal/types"
)

// Scorer computes a 0-100 match percentage between a source vehicle and one
// candidate listing, with an optional human-readable rationale.
type Scorer interface {
	Score(ctx context.Context, vehicle *types.SourceVehicle, listing *types.CandidateListing) (float64, string, error)
}

// Canonical attribute weights. Mileage dominates: two otherwise identical
// cars with very different mileage are not comparables for pricing.
const (
	weightMake    = 0.20
	weightModel   = 0.20
	weightVersion = 0.20
	weightMileage = 0.40
)

// FormulaScorer scores with a deterministic weighted sum: exact-match
// booleans for make and model, token-overlap similarity for the version
// string, and a relative-difference term for mileage.
type FormulaScorer struct {
	logger *slog.Logger
}

// NewFormulaScorer creates a formula-based scorer.
func NewFormulaScorer(logger *slog.Logger) *FormulaScorer {
	return &FormulaScorer{logger: logger.With("component", "formula_scorer")}
}

// Score implements Scorer. It never fails; the error return exists to
// satisfy the interface shared with the LLM strategy.
func (s *FormulaScorer) Score(_ context.Context, vehicle *types.SourceVehicle, listing *types.CandidateListing) (float64, string, error) {
	title := strings.ToLower(listing.Name + " " + listing.Metadata)

	makeTerm := 0.0
	if containsFold(title, vehicle.Make) {
		makeTerm = 1
	}
	modelTerm := 0.0
	if containsFold(title, vehicle.Model) {
		modelTerm = 1
	}
	versionTerm := versionSimilarity(vehicle.Version, title)
	mileageTerm := MileageSimilarity(vehicle.Mileage, listing.Mileage)

	score := 100 * (makeTerm*weightMake +
		modelTerm*weightModel +
		versionTerm*weightVersion +
		mileageTerm*weightMileage)
	score = Clamp(score)

	reason := fmt.Sprintf("make %.0f%%, model %.0f%%, version %.0f%%, mileage %.0f%%",
		makeTerm*100, modelTerm*100, versionTerm*100, mileageTerm*100)
	return score, reason, nil
}

// MileageSimilarity returns max(0, 1 - |a-b| / max(a, b)). The term is
// symmetric in its arguments. Two unknown (zero) mileages compare as
// identical.
func MileageSimilarity(a, b float64) float64 {
	denom := math.Max(a, b)
	if denom == 0 {
		return 1
	}
	return math.Max(0, 1-math.Abs(a-b)/denom)
}

// versionSimilarity measures how much of the vehicle's trim string shows up
// in the listing title, token by token. An empty trim on the source side
// counts as a full match: there is nothing to contradict.
func versionSimilarity(version, title string) float64 {
	version = strings.ToLower(strings.TrimSpace(version))
	if version == "" {
		return 1
	}
	tokens := strings.Fields(version)
	if len(tokens) == 0 {
		return 1
	}
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(title, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

// containsFold reports whether haystack (already lowercased) contains
// needle case-insensitively. An empty needle never matches.
func containsFold(haystack, needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return false
	}
	return strings.Contains(haystack, needle)
}

// Clamp bounds a score to [0, 100].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
