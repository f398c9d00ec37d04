package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/fetcher"
	"github.com/dealermetrics/carmatch/internal/llm"
	"github.com/dealermetrics/carmatch/internal/types"
)

const (
	leboncoinDomain    = "https://www.leboncoin.fr/"
	leboncoinSearchURL = "https://api.leboncoin.fr/finder/search"
	leboncoinCategory  = "2" // cars
)

// leboncoinFuels maps inventory fuel codes onto the site's fuel enum.
var leboncoinFuels = map[int]string{
	types.FuelOther:    "5",
	types.FuelPetrol:   "1",
	types.FuelDiesel:   "2",
	types.FuelLPG:      "3",
	types.FuelCNG:      "7",
	types.FuelElectric: "4",
	types.FuelHybrid:   "6",
	types.FuelHydrogen: "9",
}

// Leboncoin searches through the site's JSON finder API: structured
// payloads in, a JSON ad list out. No HTML is parsed for this site.
type Leboncoin struct {
	cfg           config.SiteConfig
	client        *llm.Client
	fetch         fetcher.Fetcher
	maxCandidates int
	logger        *slog.Logger
}

// NewLeboncoin creates the leboncoin integration.
func NewLeboncoin(cfg *config.Config, client *llm.Client, fetchers *FetcherSet, logger *slog.Logger) *Leboncoin {
	siteCfg := cfg.Sites.Integration["leboncoin"]
	return &Leboncoin{
		cfg:           siteCfg,
		client:        client,
		fetch:         fetchers.ForStrategy(siteCfg.FetchStrategy),
		maxCandidates: cfg.Run.MaxCandidates,
		logger:        logger.With("site", "leboncoin"),
	}
}

func (s *Leboncoin) Name() string   { return "leboncoin" }
func (s *Leboncoin) Domain() string { return leboncoinDomain }

// fetchVocabulary asks the finder API for the model aggregation of the
// vehicle's brand. A zero-limit search returns aggregations only.
func (s *Leboncoin) fetchVocabulary(ctx context.Context, make_ string) (*types.Vocabulary, error) {
	payload := map[string]any{
		"filters": map[string]any{
			"category": map[string]any{"id": leboncoinCategory},
			"enums": map[string]any{
				"ad_type":     []string{"offer"},
				"u_car_brand": []string{make_},
			},
		},
		"limit":     0,
		"limit_alu": 0,
		"sort_by":   "relevance",
	}

	req := fetcher.NewJSONRequest(s.Name(), leboncoinSearchURL, payload)
	req.Headers = s.cfg.Headers
	req.Cookies = s.cfg.Cookies

	resp, err := s.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch model aggregation: %w", err)
	}

	var decoded struct {
		Aggregations struct {
			Models []string `json:"u_car_model"`
		} `json:"aggregations"`
	}
	if err := resp.JSON(&decoded); err != nil {
		return nil, fmt.Errorf("decode model aggregation: %w", err)
	}

	vocab := &types.Vocabulary{FuelTypes: fuelVocab(leboncoinFuels)}
	for _, m := range decoded.Aggregations.Models {
		if m != "" {
			vocab.Models = append(vocab.Models, m)
		}
	}
	if len(vocab.Models) == 0 {
		return vocab, types.ErrEmptyVocabulary
	}
	return vocab, nil
}

// PlanFilter implements Integration.
func (s *Leboncoin) PlanFilter(ctx context.Context, vehicle *types.SourceVehicle) (*types.SiteFilter, error) {
	vocab, err := s.fetchVocabulary(ctx, vehicle.Make)
	if errors.Is(err, types.ErrEmptyVocabulary) {
		s.logger.Warn("empty vocabulary, planning in degraded mode", "make", vehicle.Make)
	} else if err != nil {
		return nil, &types.PlanError{Site: s.Name(), Err: err}
	}

	prompt := s.vocabPrompt(vocab, vehicle)
	var result llm.FilterResult
	if err := s.client.GenerateStructured(ctx, plannerSystemPrompt, prompt, llm.FilterSchema, &result); err != nil {
		return nil, &types.PlanError{Site: s.Name(), Err: err}
	}

	filter := filterFromResult(&result, vehicle)
	if filter.FuelType == "" {
		filter.FuelType = leboncoinFuels[vehicle.FuelType]
	}
	return filter, nil
}

func (s *Leboncoin) vocabPrompt(vocab *types.Vocabulary, vehicle *types.SourceVehicle) string {
	return fmt.Sprintf(`You are an AI assistant tasked with mapping a vehicle record onto a site's search vocabulary, using only values from the provided lists. I will provide you with:
- A list of vehicle models.
- A dictionary of fuel types where inventory codes are keys and site fuel codes are values.
- A target vehicle record.

Build a record with the keys 'make', 'model', 'mileage', 'fuel_type', 'year_from', 'year_to' where each value is selected from the provided options that most closely matches the target. If no match exists for a key, leave it empty, unless the original value is explicitly allowed ('make' or 'mileage' when no alternatives are given).

- Models: %s
- Fuel types: %s
- Target vehicle: %s

Rules:
- For 'make', use the target's value when no alternative makes are listed.
- For 'model', select the closest matching model name from the list, ignoring extra details not in the list.
- For 'mileage', use the target's value when no mileage options are given.
- For 'fuel_type', return the site fuel code (the dictionary value), not the inventory code.`,
		strings.Join(vocab.Models, ", "), formatFuelVocab(vocab.FuelTypes), vehicle.ToJSON())
}

// BuildQueries implements Integration. The escalation ladder, base-first:
// brand/model/fuel/regdate, + mileage window, + professional sellers,
// + 4x4 body type when flagged, then one keyword step per set equipment
// flag. Reversed before return so the most specific query runs first.
func (s *Leboncoin) BuildQueries(vehicle *types.SourceVehicle, filter *types.SiteFilter, toleranceKm int) []types.Query {
	kmFrom := maxInt(0, int(filter.Mileage)-toleranceKm)
	kmTo := int(filter.Mileage) + toleranceKm

	base := func() map[string]any {
		enums := map[string]any{
			"ad_type":     []string{"offer"},
			"u_car_brand": []string{filter.Make},
			"u_car_model": []string{filter.Model},
		}
		if filter.FuelType != "" {
			enums["fuel"] = []string{filter.FuelType}
		}
		switch vehicle.Gearbox {
		case types.GearboxAutomatic:
			enums["gearbox"] = []string{"2"}
		case types.GearboxManual:
			enums["gearbox"] = []string{"1"}
		}
		ranges := map[string]any{}
		if filter.YearFrom > 0 || filter.YearTo > 0 {
			regdate := map[string]any{}
			if filter.YearFrom > 0 {
				regdate["min"] = filter.YearFrom
			}
			if filter.YearTo > 0 {
				regdate["max"] = filter.YearTo
			}
			ranges["regdate"] = regdate
		}
		return map[string]any{
			"filters": map[string]any{
				"category": map[string]any{"id": leboncoinCategory},
				"enums":    enums,
				"ranges":   ranges,
			},
			"limit":          35,
			"limit_alu":      3,
			"sort_by":        "relevance",
			"offset":         0,
			"extend":         true,
			"listing_source": "direct-search",
		}
	}

	var queries []types.Query
	add := func(label string, mutate func(p map[string]any)) {
		p := base()
		mutate(p)
		queries = append(queries, types.Query{URL: leboncoinSearchURL, Payload: p, Label: label})
	}

	// Step mutations are cumulative: each closure re-applies everything the
	// previous step did, so every query is a strict superset of constraints
	// over the one before it.
	withMileage := func(p map[string]any) {
		p["filters"].(map[string]any)["ranges"].(map[string]any)["mileage"] = map[string]any{
			"min": kmFrom, "max": kmTo,
		}
	}
	withPro := func(p map[string]any) {
		withMileage(p)
		p["owner_type"] = "pro"
	}
	with4x4 := func(p map[string]any) {
		withPro(p)
		p["filters"].(map[string]any)["enums"].(map[string]any)["vehicle_type"] = []string{"4x4"}
	}

	add("base", func(p map[string]any) {})
	add("mileage", withMileage)
	add("pro_seller", withPro)

	cumulative := withPro
	if vehicle.FourWheelDrive {
		add("4x4", with4x4)
		cumulative = with4x4
	}

	var keywords []string
	for _, opt := range vehicle.Equipment.Enabled() {
		keywords = append(keywords, strings.ReplaceAll(opt, "_", " "))
		kw := strings.Join(keywords, " ")
		prev := cumulative
		step := func(p map[string]any) {
			prev(p)
			p["filters"].(map[string]any)["keywords"] = map[string]any{"text": kw}
		}
		add("opt:"+opt, step)
		cumulative = step
	}

	return reverseQueries(queries)
}

// Fetch implements Integration.
func (s *Leboncoin) Fetch(ctx context.Context, q types.Query) (*fetcher.Response, error) {
	req := &fetcher.Request{
		URL:     q.URL,
		Method:  http.MethodPost,
		Payload: q.Payload,
		Headers: s.cfg.Headers,
		Cookies: s.cfg.Cookies,
		Site:    s.Name(),
	}
	return s.fetch.Fetch(ctx, req)
}

// lbcAd is one advertisement in the finder API response.
type lbcAd struct {
	Subject string    `json:"subject"`
	Price   []float64 `json:"price"`
	URL     string    `json:"url"`
	Images  struct {
		URLsLarge []string `json:"urls_large"`
	} `json:"images"`
	Attributes []struct {
		Key        string `json:"key"`
		Value      string `json:"value"`
		KeyLabel   string `json:"key_label"`
		ValueLabel string `json:"value_label"`
	} `json:"attributes"`
}

// Extract implements Integration: JSON field mapping, no selectors.
func (s *Leboncoin) Extract(resp *fetcher.Response, parentVehicleID, timestamp string) ([]*types.CandidateListing, error) {
	var decoded struct {
		Ads []lbcAd `json:"ads"`
	}
	if err := resp.JSON(&decoded); err != nil {
		return nil, &types.ExtractError{Site: s.Name(), Err: err}
	}

	ads := decoded.Ads
	if len(ads) > s.maxCandidates {
		ads = ads[:s.maxCandidates]
	}

	listings := make([]*types.CandidateListing, 0, len(ads))
	for _, ad := range ads {
		if ad.URL == "" {
			// No link means no derivable identifier; drop before scoring.
			continue
		}

		listing := &types.CandidateListing{
			Name:            ad.Subject,
			Link:            ad.URL,
			Domain:          leboncoinDomain,
			ParentVehicleID: parentVehicleID,
			UpdatedAt:       timestamp,
		}
		if len(ad.Price) > 0 {
			listing.Price = ad.Price[0]
		}
		if len(ad.Images.URLsLarge) > 0 {
			listing.Image = ad.Images.URLsLarge[0]
		}

		var meta []string
		for _, attr := range ad.Attributes {
			switch attr.Key {
			case "mileage":
				listing.Mileage = ParseLocaleFloat(attr.Value)
			case "fuel":
				listing.FuelType = attr.ValueLabel
			case "gearbox":
				listing.Gearbox = attr.ValueLabel
			default:
				meta = append(meta, attr.KeyLabel+" - "+attr.ValueLabel)
			}
		}
		listing.Metadata = strings.Join(meta, "; ")
		listing.ID = types.ListingID(listing.Link, parentVehicleID)

		listings = append(listings, listing)
	}

	return listings, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
