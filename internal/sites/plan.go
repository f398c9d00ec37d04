package sites

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dealermetrics/carmatch/internal/llm"
	"github.com/dealermetrics/carmatch/internal/types"
)

const plannerSystemPrompt = "You map vehicle records onto marketplace search vocabularies. " +
	"Reply with a single JSON object matching the requested schema and nothing else."

// filterFromResult turns a structured planning reply into a SiteFilter,
// falling back to the vehicle's raw values for fields the model left empty.
// Make and mileage always have a usable fallback; model falls back to the
// raw name so the base query still searches something.
func filterFromResult(result *llm.FilterResult, vehicle *types.SourceVehicle) *types.SiteFilter {
	f := &types.SiteFilter{
		Make:     result.Make,
		Model:    result.Model,
		Version:  result.Version,
		Color:    result.Color,
		Mileage:  result.Mileage,
		FuelType: result.FuelType,
		YearFrom: result.YearFrom,
		YearTo:   result.YearTo,
	}
	if f.Make == "" {
		f.Make = vehicle.Make
	}
	if f.Model == "" {
		f.Model = vehicle.Model
	}
	if f.Mileage == 0 {
		f.Mileage = vehicle.Mileage
	}
	if f.YearFrom == 0 {
		f.YearFrom = vehicle.YearFrom
	}
	if f.YearTo == 0 {
		f.YearTo = vehicle.YearTo
	}
	return f
}

// fuelVocab renders a site's fuel map with string inventory keys, the shape
// the planning prompt expects.
func fuelVocab(fuels map[int]string) map[string]string {
	out := make(map[string]string, len(fuels))
	for code, siteValue := range fuels {
		out[fmt.Sprintf("%d", code)] = siteValue
	}
	return out
}

// formatFuelVocab renders a fuel vocabulary deterministically for prompts.
func formatFuelVocab(fuels map[string]string) string {
	keys := make([]string, 0, len(fuels))
	for k := range fuels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+": "+fuels[k])
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// formatCodeVocab renders a label-to-code map deterministically for prompts.
func formatCodeVocab(codes map[string]string) string {
	keys := make([]string, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+": "+codes[k])
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}
