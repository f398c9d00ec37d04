package scoring

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/dealermetrics/carmatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMileageSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"identical", 40000, 40000, 1},
		{"both unknown", 0, 0, 1},
		{"one unknown", 40000, 0, 0},
		{"double", 40000, 80000, 0.5},
		{"close", 40000, 44000, 1 - 4000.0/44000.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MileageSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MileageSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			// The term is symmetric.
			if rev := MileageSimilarity(tt.b, tt.a); math.Abs(rev-got) > 1e-9 {
				t.Errorf("not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestFormulaScorerPerfectMatch(t *testing.T) {
	s := NewFormulaScorer(testLogger)
	vehicle := &types.SourceVehicle{
		Make: "Peugeot", Model: "3008", Version: "GT Line", Mileage: 42000,
	}
	listing := &types.CandidateListing{
		Name:    "PEUGEOT 3008 GT Line",
		Mileage: 42000,
	}

	score, reason, err := s.Score(context.Background(), vehicle, listing)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 100 {
		t.Errorf("score = %v, want 100", score)
	}
	if !strings.Contains(reason, "mileage 100%") {
		t.Errorf("reason = %q", reason)
	}
}

func TestFormulaScorerWeights(t *testing.T) {
	s := NewFormulaScorer(testLogger)

	// Make, model, version match; mileage completely off. The mileage term
	// carries 40 points, so the score drops to 60.
	vehicle := &types.SourceVehicle{Make: "Fiat", Model: "500", Mileage: 100000}
	listing := &types.CandidateListing{Name: "Fiat 500", Mileage: 0}

	score, _, err := s.Score(context.Background(), vehicle, listing)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.Abs(score-60) > 1e-9 {
		t.Errorf("score = %v, want 60", score)
	}

	// Nothing matches at all.
	vehicle = &types.SourceVehicle{Make: "Audi", Model: "A4", Version: "S line", Mileage: 50000}
	listing = &types.CandidateListing{Name: "Renault Clio", Mileage: 0}
	score, _, err = s.Score(context.Background(), vehicle, listing)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 0 {
		t.Errorf("score = %v, want 0", score)
	}
}

func TestFormulaScorerVersionTokens(t *testing.T) {
	s := NewFormulaScorer(testLogger)

	// Half the trim tokens present: version term contributes 10 of its 20
	// points. Make, model and mileage are full matches.
	vehicle := &types.SourceVehicle{Make: "Peugeot", Model: "3008", Version: "gt line", Mileage: 42000}
	listing := &types.CandidateListing{Name: "Peugeot 3008 GT", Mileage: 42000}

	score, _, err := s.Score(context.Background(), vehicle, listing)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.Abs(score-90) > 1e-9 {
		t.Errorf("score = %v, want 90", score)
	}
}

func TestFormulaScorerUsesMetadata(t *testing.T) {
	s := NewFormulaScorer(testLogger)

	// The model only appears in the metadata blob, not the title.
	vehicle := &types.SourceVehicle{Make: "Peugeot", Model: "3008", Mileage: 42000}
	listing := &types.CandidateListing{
		Name:     "Belle occasion",
		Metadata: "Modèle - Peugeot 3008; Carburant - Diesel",
		Mileage:  42000,
	}

	score, _, err := s.Score(context.Background(), vehicle, listing)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 100 {
		t.Errorf("score = %v, want metadata searched", score)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(-5) != 0 || Clamp(105) != 100 || Clamp(42) != 42 {
		t.Error("Clamp out of contract")
	}
}
