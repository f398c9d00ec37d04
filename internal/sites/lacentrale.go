package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/fetcher"
	"github.com/dealermetrics/carmatch/internal/llm"
	"github.com/dealermetrics/carmatch/internal/types"
)

const (
	lacentraleDomain  = "https://www.lacentrale.fr/"
	lacentraleListing = "https://www.lacentrale.fr/listing"
	lacentraleAggsURL = "https://recherche.lacentrale.fr/v5/aggregations"
)

var lacentraleFuels = map[int]string{
	types.FuelOther:    "alt",
	types.FuelPetrol:   "ess",
	types.FuelDiesel:   "dies",
	types.FuelLPG:      "gpl",
	types.FuelCNG:      "gnv",
	types.FuelElectric: "elec",
	types.FuelHybrid:   "hyb",
	types.FuelHydrogen: "hydro",
}

// lacentraleOptions maps equipment flags onto listing option codes.
var lacentraleOptions = map[string]string{
	"sunroof":          "TOIT_OUVRANT",
	"leather":          "CUIR",
	"gps":              "GPS",
	"camera_360":       "CAMERA_360",
	"reversing_camera": "CAMERA_RECUL",
	"parking_sensors":  "RADAR_RECUL",
	"heated_seats":     "SIEGES_CHAUFFANTS",
	"cruise_control":   "REGULATEUR",
	"keyless_entry":    "KEYLESS",
	"tow_bar":          "ATTELAGE",
	"alloys":           "JANTES_ALU",
	"led_headlights":   "PHARES_LED",
	"apple_carplay":    "CARPLAY",
	"adaptive_cruise":  "REGULATEUR_ADAPTATIF",
	"head_up_display":  "AFFICHAGE_TETE_HAUTE",
}

// LaCentrale searches listing pages filtered through URL parameters. The
// filter vocabulary comes from the site's public aggregation API; result
// pages are server-rendered HTML parsed with CSS selectors.
type LaCentrale struct {
	cfg           config.SiteConfig
	client        *llm.Client
	fetch         fetcher.Fetcher
	maxCandidates int
	logger        *slog.Logger
}

// NewLaCentrale creates the lacentrale integration.
func NewLaCentrale(cfg *config.Config, client *llm.Client, fetchers *FetcherSet, logger *slog.Logger) *LaCentrale {
	siteCfg := cfg.Sites.Integration["lacentrale"]
	f := fetchers.ForStrategy(siteCfg.FetchStrategy)
	if siteCfg.ProxyURL != "" {
		if hf, ok := f.(*fetcher.HTTPFetcher); ok {
			proxied, err := hf.WithProxy(siteCfg.ProxyURL)
			if err != nil {
				logger.Warn("invalid per-site proxy, using shared fetcher", "site", "lacentrale", "error", err)
			} else {
				f = proxied
			}
		}
	}
	return &LaCentrale{
		cfg:           siteCfg,
		client:        client,
		fetch:         f,
		maxCandidates: cfg.Run.MaxCandidates,
		logger:        logger.With("site", "lacentrale"),
	}
}

func (s *LaCentrale) Name() string   { return "lacentrale" }
func (s *LaCentrale) Domain() string { return lacentraleDomain }

// aggBucket is one entry of a v5 aggregation, possibly nested.
type aggBucket struct {
	Key string      `json:"key"`
	Agg []aggBucket `json:"agg"`
}

// fetchVocabulary pulls the color, model and version aggregations for the
// vehicle's make from the search API.
func (s *LaCentrale) fetchVocabulary(ctx context.Context, make_ string) (*types.Vocabulary, error) {
	params := url.Values{}
	params.Set("aggregations", "EXTERNAL_COLOR,MAKE_MODEL_COMMERCIAL_NAME,VERSION")
	params.Set("families", "AUTO,UTILITY")
	params.Set("makesModelsCommercialNames", strings.ToUpper(make_))

	req := fetcher.NewRequest(s.Name(), lacentraleAggsURL+"?"+params.Encode())
	req.Headers = mergeHeaders(s.cfg.Headers, map[string]string{"x-api-key": s.cfg.APIKey})
	req.Cookies = s.cfg.Cookies

	resp, err := s.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch aggregations: %w", err)
	}

	var decoded struct {
		Aggs map[string][]aggBucket `json:"aggs"`
	}
	if err := resp.JSON(&decoded); err != nil {
		return nil, fmt.Errorf("decode aggregations: %w", err)
	}

	vocab := &types.Vocabulary{FuelTypes: fuelVocab(lacentraleFuels)}
	// Model names live two levels down: the make bucket's agg holds one
	// entry per commercial name group, whose own agg carries the models.
	if makeBuckets := decoded.Aggs["vehicle.makeModelCommercialName"]; len(makeBuckets) > 0 {
		for _, group := range makeBuckets[0].Agg {
			for _, modelBucket := range group.Agg {
				if modelBucket.Key != "" {
					vocab.Models = append(vocab.Models, modelBucket.Key)
				}
			}
		}
	}
	for _, b := range decoded.Aggs["vehicle.externalColor"] {
		if b.Key != "" {
			vocab.Colors = append(vocab.Colors, b.Key)
		}
	}
	for _, b := range decoded.Aggs["vehicle.version"] {
		if b.Key != "" {
			vocab.Versions = append(vocab.Versions, b.Key)
		}
	}
	if len(vocab.Models) == 0 {
		return vocab, types.ErrEmptyVocabulary
	}
	return vocab, nil
}

// PlanFilter implements Integration.
func (s *LaCentrale) PlanFilter(ctx context.Context, vehicle *types.SourceVehicle) (*types.SiteFilter, error) {
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
		filter.FuelType = lacentraleFuels[vehicle.FuelType]
	}
	return filter, nil
}

func (s *LaCentrale) vocabPrompt(vocab *types.Vocabulary, vehicle *types.SourceVehicle) string {
	return fmt.Sprintf(`You are an AI assistant tasked with mapping a vehicle record onto a site's search vocabulary, using only values from the provided lists. I will provide you with:
- A list of vehicle models.
- A list of exterior colors.
- A list of versions.
- A dictionary of fuel types where inventory codes are keys and site fuel codes are values.
- A target vehicle record.

Build a record with the keys 'make', 'model', 'version', 'color', 'mileage', 'fuel_type', 'year_from', 'year_to' where each value is selected from the provided options that most closely matches the target. If no match exists for a key, leave it empty, unless the original value is explicitly allowed ('make' or 'mileage' when no alternatives are given).

- Models: %s
- Colors: %s
- Versions: %s
- Fuel types: %s
- Target vehicle: %s

Rules:
- For 'make', use the target's value when no alternative makes are listed.
- For 'model', select the closest matching model name from the list, ignoring extra details not in the list.
- For 'version', select the closest version string, or leave it empty when nothing is close.
- For 'color', select the closest color from the list.
- For 'mileage', use the target's value when no mileage options are given.
- For 'fuel_type', return the site fuel code (the dictionary value), not the inventory code.`,
		strings.Join(vocab.Models, ", "), strings.Join(vocab.Colors, ", "),
		strings.Join(vocab.Versions, ", "), formatFuelVocab(vocab.FuelTypes), vehicle.ToJSON())
}

// BuildQueries implements Integration. Filters accumulate as URL parameters;
// the final list runs most-specific-first with the bare filter last.
func (s *LaCentrale) BuildQueries(vehicle *types.SourceVehicle, filter *types.SiteFilter, toleranceKm int) []types.Query {
	base := url.Values{}
	base.Set("makesModelsCommercialNames", strings.ToUpper(filter.Make)+":"+strings.ToUpper(filter.Model))
	if filter.FuelType != "" {
		base.Set("energies", filter.FuelType)
	}
	if filter.Color != "" {
		base.Set("externalColors", strings.ToUpper(filter.Color))
	}
	if filter.Version != "" {
		base.Set("versions", filter.Version)
	}
	if filter.YearFrom > 0 {
		base.Set("yearMin", strconv.Itoa(filter.YearFrom))
	}
	if filter.YearTo > 0 {
		base.Set("yearMax", strconv.Itoa(filter.YearTo))
	}

	var queries []types.Query
	add := func(label string, params url.Values) {
		queries = append(queries, types.Query{
			URL:   lacentraleListing + "?" + params.Encode(),
			Label: label,
		})
	}
	clone := func(v url.Values) url.Values {
		out := url.Values{}
		for k, vs := range v {
			out[k] = append([]string(nil), vs...)
		}
		return out
	}

	add("base", clone(base))

	withMileage := clone(base)
	withMileage.Set("mileageMin", strconv.Itoa(maxInt(0, int(filter.Mileage)-toleranceKm)))
	withMileage.Set("mileageMax", strconv.Itoa(int(filter.Mileage)+toleranceKm))
	add("mileage", withMileage)

	withPro := clone(withMileage)
	withPro.Set("customerFamilyCodes", "PRO")
	add("pro_seller", withPro)

	cumulative := withPro
	if vehicle.FourWheelDrive {
		with4x4 := clone(withPro)
		with4x4.Set("vehicleType", "4x4")
		add("4x4", with4x4)
		cumulative = with4x4
	}

	for _, opt := range vehicle.Equipment.Enabled() {
		code, ok := lacentraleOptions[opt]
		if !ok {
			continue
		}
		next := clone(cumulative)
		next.Add("options", code)
		add("opt:"+opt, next)
		cumulative = next
	}

	return reverseQueries(queries)
}

// Fetch implements Integration.
func (s *LaCentrale) Fetch(ctx context.Context, q types.Query) (*fetcher.Response, error) {
	req := fetcher.NewRequest(s.Name(), q.URL)
	req.Headers = s.cfg.Headers
	req.Cookies = s.cfg.Cookies
	return s.fetch.Fetch(ctx, req)
}

// Extract implements Integration: one CandidateListing per search card.
func (s *LaCentrale) Extract(resp *fetcher.Response, parentVehicleID, timestamp string) ([]*types.CandidateListing, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ExtractError{Site: s.Name(), Selector: "document", Err: err}
	}

	var listings []*types.CandidateListing
	doc.Find("div.searchCardContainer").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if len(listings) >= s.maxCandidates {
			return false
		}

		link, _ := card.Find("a").First().Attr("href")
		if link == "" {
			return true
		}
		if strings.HasPrefix(link, "/") {
			link = strings.TrimSuffix(lacentraleDomain, "/") + link
		}

		name := strings.TrimSpace(card.Find(".searchCard__makeModel").Text())
		version := strings.TrimSpace(card.Find(".searchCard__version").Text())
		if version != "" {
			name = strings.TrimSpace(name + " " + version)
		}

		var meta []string
		var mileage float64
		card.Find(".searchCard__characteristics li").Each(func(_ int, item *goquery.Selection) {
			text := strings.TrimSpace(item.Text())
			if text == "" {
				return
			}
			if strings.Contains(strings.ToLower(text), "km") && mileage == 0 {
				mileage = ParseLocaleFloat(text)
			}
			meta = append(meta, text)
		})

		image, _ := card.Find("img").First().Attr("src")

		listings = append(listings, &types.CandidateListing{
			ID:              types.ListingID(link, parentVehicleID),
			Name:            name,
			Price:           ParseLocaleFloat(card.Find(".searchCard__fieldPrice").First().Text()),
			Link:            link,
			Image:           image,
			Mileage:         mileage,
			Metadata:        strings.Join(meta, "; "),
			Domain:          lacentraleDomain,
			ParentVehicleID: parentVehicleID,
			UpdatedAt:       timestamp,
		})
		return true
	})

	return listings, nil
}

// mergeHeaders overlays extra headers on a site's configured set without
// mutating either map.
func mergeHeaders(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
