package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dealermetrics/carmatch/internal/llm"
	"github.com/dealermetrics/carmatch/internal/types"
)

const scoringSystemPrompt = "You are an expert in automotive comparisons."

// LLMScorer delegates the comparison to a structured-generation call,
// instructed to apply the same weighting rubric as the formula strategy.
// A malformed reply degrades to (0, "") instead of failing the listing.
type LLMScorer struct {
	client *llm.Client
	logger *slog.Logger
}

// NewLLMScorer creates an LLM-backed scorer.
func NewLLMScorer(client *llm.Client, logger *slog.Logger) *LLMScorer {
	return &LLMScorer{
		client: client,
		logger: logger.With("component", "llm_scorer"),
	}
}

// Score implements Scorer. Transport errors propagate so the surrounding
// retry unit can re-attempt the whole query; decode failures degrade.
func (s *LLMScorer) Score(ctx context.Context, vehicle *types.SourceVehicle, listing *types.CandidateListing) (float64, string, error) {
	prompt := scoringPrompt(vehicle.ToJSON(), listing.ToJSON())

	var result llm.MatchResult
	if err := s.client.GenerateStructured(ctx, scoringSystemPrompt, prompt, llm.MatchSchema, &result); err != nil {
		if errors.Is(err, llm.ErrMalformedReply) {
			s.logger.Warn("malformed scoring reply, degrading to zero",
				"listing", listing.Link, "error", err)
			return 0, "", nil
		}
		return 0, "", err
	}

	return Clamp(result.MatchingPercentage), result.MatchingPercentageReason, nil
}

func scoringPrompt(vehicleJSON, listingJSON string) string {
	return fmt.Sprintf(`You are an expert in automotive comparisons.
I will provide you with details of two cars, including their make, model, version (if available), and mileage.
Your task is to compare these two cars and calculate a percentage match based on the following attributes: make, model, version, and mileage.
Use your car knowledge to enhance the comparison, especially for the version attribute.
Assign weights to each attribute as follows: make (20%%), model (20%%), version (20%%), and mileage (40%%).
Also provide a short explanation of why a particular percentage is assigned.
Here are the details for the two cars:
- Car 1: %s
- Car 2: %s
Return the percentage match as a float, and include the reason as well.`, vehicleJSON, listingJSON)
}
