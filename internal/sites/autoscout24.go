package sites

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/fetcher"
	"github.com/dealermetrics/carmatch/internal/llm"
	"github.com/dealermetrics/carmatch/internal/types"
)

const (
	autoscoutDomain  = "https://www.autoscout24.fr/"
	autoscoutListURL = "https://www.autoscout24.fr/lst/"
)

// autoscoutFuels is the degraded-mode fallback when the taxonomy could not
// be read. The site encodes fuel as single letters or hybrid digits.
var autoscoutFuels = map[int]string{
	types.FuelOther:    "O",
	types.FuelPetrol:   "B",
	types.FuelDiesel:   "D",
	types.FuelLPG:      "L",
	types.FuelCNG:      "C",
	types.FuelElectric: "E",
	types.FuelHybrid:   "2",
	types.FuelHydrogen: "H",
}

// autoscoutOptions maps equipment flags onto the site's eq codes.
var autoscoutOptions = map[string]string{
	"sunroof":          "28",
	"leather":          "21",
	"gps":              "23",
	"camera_360":       "235",
	"reversing_camera": "120",
	"parking_sensors":  "41",
	"heated_seats":     "19",
	"cruise_control":   "10",
	"keyless_entry":    "142",
	"tow_bar":          "34",
	"alloys":           "4",
	"led_headlights":   "124",
	"apple_carplay":    "241",
	"adaptive_cruise":  "123",
	"head_up_display":  "121",
}

// AutoScout24 searches the site's listing pages. The page is a Next.js app,
// so the filter taxonomy is lifted from the embedded __NEXT_DATA__ blob and
// result cards are read from the rendered HTML.
type AutoScout24 struct {
	cfg           config.SiteConfig
	client        *llm.Client
	fetch         fetcher.Fetcher
	maxCandidates int
	logger        *slog.Logger
}

// NewAutoScout24 creates the autoscout24 integration.
func NewAutoScout24(cfg *config.Config, client *llm.Client, fetchers *FetcherSet, logger *slog.Logger) *AutoScout24 {
	siteCfg := cfg.Sites.Integration["autoscout24"]
	return &AutoScout24{
		cfg:           siteCfg,
		client:        client,
		fetch:         fetchers.ForStrategy(siteCfg.FetchStrategy),
		maxCandidates: cfg.Run.MaxCandidates,
		logger:        logger.With("site", "autoscout24"),
	}
}

func (s *AutoScout24) Name() string   { return "autoscout24" }
func (s *AutoScout24) Domain() string { return autoscoutDomain }

type asTaxonomyEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// fetchVocabulary loads the make's listing page and reads the filter
// taxonomy out of the __NEXT_DATA__ script element.
func (s *AutoScout24) fetchVocabulary(ctx context.Context, make_ string) (*types.Vocabulary, error) {
	req := fetcher.NewRequest(s.Name(), autoscoutListURL+slugify(make_))
	req.Headers = s.cfg.Headers
	req.Cookies = s.cfg.Cookies

	resp, err := s.fetch.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch taxonomy page: %w", err)
	}

	root, err := htmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse taxonomy page: %w", err)
	}
	node := htmlquery.FindOne(root, "//script[@id='__NEXT_DATA__']")
	if node == nil {
		return nil, fmt.Errorf("taxonomy blob not found")
	}

	var decoded struct {
		Props struct {
			PageProps struct {
				Taxonomy struct {
					MakeLabels map[string]string            `json:"makeLabels"`
					Models     map[string][]asTaxonomyEntry `json:"models"`
					BodyColor  []asTaxonomyEntry            `json:"bodyColor"`
					FuelType   []asTaxonomyEntry            `json:"fuelType"`
				} `json:"taxonomy"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(htmlquery.InnerText(node)), &decoded); err != nil {
		return nil, fmt.Errorf("decode taxonomy blob: %w", err)
	}

	tax := decoded.Props.PageProps.Taxonomy
	vocab := &types.Vocabulary{
		FuelTypes:  fuelVocab(autoscoutFuels),
		ModelCodes: map[string]string{},
		ColorCodes: map[string]string{},
	}
	for _, entries := range tax.Models {
		for _, e := range entries {
			if e.Label == "" {
				continue
			}
			vocab.Models = append(vocab.Models, e.Label)
			vocab.ModelCodes[e.Label] = e.Value
		}
	}
	for _, e := range tax.BodyColor {
		if e.Label == "" {
			continue
		}
		vocab.Colors = append(vocab.Colors, e.Label)
		vocab.ColorCodes[e.Label] = e.Value
	}
	if len(tax.FuelType) > 0 {
		fuels := make(map[string]string, len(tax.FuelType))
		for _, e := range tax.FuelType {
			fuels[e.Label] = e.Value
		}
		vocab.FuelTypes = fuels
	}
	if len(vocab.Models) == 0 {
		return vocab, types.ErrEmptyVocabulary
	}
	return vocab, nil
}

// PlanFilter implements Integration.
func (s *AutoScout24) PlanFilter(ctx context.Context, vehicle *types.SourceVehicle) (*types.SiteFilter, error) {
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
	// The site filters on codes, not labels. Translate what the planner
	// picked; unknown labels stay as-is and simply match nothing.
	if code, ok := vocab.ColorCodes[filter.Color]; ok {
		filter.Color = code
	}
	if filter.FuelType == "" {
		filter.FuelType = autoscoutFuels[vehicle.FuelType]
	}
	return filter, nil
}

func (s *AutoScout24) vocabPrompt(vocab *types.Vocabulary, vehicle *types.SourceVehicle) string {
	return fmt.Sprintf(`You are an AI assistant tasked with mapping a vehicle record onto a site's search vocabulary, using only values from the provided dictionaries. I will provide you with:
- A dictionary of vehicle models where model names are keys and site codes are values.
- A dictionary of exterior colors where color labels are keys and site codes are values.
- A dictionary of fuel types where labels are keys and site fuel codes are values.
- A target vehicle record.

Build a record with the keys 'make', 'model', 'version', 'color', 'mileage', 'fuel_type', 'year_from', 'year_to' where each value is selected from the provided options that most closely matches the target. If no match exists for a key, leave it empty, unless the original value is explicitly allowed ('make' or 'mileage' when no alternatives are given).

- Models: %s
- Colors: %s
- Fuel types: %s
- Target vehicle: %s

Rules:
- For 'make', use the target's value when no alternative makes are listed.
- For 'model', return the model name (the dictionary key), not the code, selecting the closest match and ignoring extra details not in the list.
- For 'color', return the color label (the dictionary key), not the code, selecting the closest match.
- For 'mileage', use the target's value when no mileage options are given.
- For 'fuel_type', return the site fuel code (the dictionary value), not the label.
- For 'version', keep the target's version text so it can be used as a free-text filter.`,
		formatCodeVocab(vocab.ModelCodes), formatCodeVocab(vocab.ColorCodes),
		formatFuelVocab(vocab.FuelTypes), vehicle.ToJSON())
}

// BuildQueries implements Integration.
func (s *AutoScout24) BuildQueries(vehicle *types.SourceVehicle, filter *types.SiteFilter, toleranceKm int) []types.Query {
	listURL := autoscoutListURL + slugify(filter.Make) + "/" + slugify(filter.Model)

	base := url.Values{}
	base.Set("atype", "C")
	base.Set("sort", "standard")
	if filter.FuelType != "" {
		base.Set("fuel", filter.FuelType)
	}
	if filter.Color != "" {
		base.Set("bcol", filter.Color)
	}
	if filter.Version != "" {
		base.Set("version0", filter.Version)
	}
	if filter.YearFrom > 0 {
		base.Set("fregfrom", strconv.Itoa(filter.YearFrom))
	}
	if filter.YearTo > 0 {
		base.Set("fregto", strconv.Itoa(filter.YearTo))
	}

	var queries []types.Query
	add := func(label string, params url.Values) {
		queries = append(queries, types.Query{
			URL:   listURL + "?" + params.Encode(),
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
	withMileage.Set("kmfrom", strconv.Itoa(maxInt(0, int(filter.Mileage)-toleranceKm)))
	withMileage.Set("kmto", strconv.Itoa(int(filter.Mileage)+toleranceKm))
	add("mileage", withMileage)

	withPro := clone(withMileage)
	withPro.Set("custtype", "D")
	add("pro_seller", withPro)

	cumulative := withPro
	if vehicle.FourWheelDrive {
		with4x4 := clone(withPro)
		with4x4.Add("eq", "49")
		add("4x4", with4x4)
		cumulative = with4x4
	}

	for _, opt := range vehicle.Equipment.Enabled() {
		code, ok := autoscoutOptions[opt]
		if !ok {
			continue
		}
		next := clone(cumulative)
		next.Add("eq", code)
		add("opt:"+opt, next)
		cumulative = next
	}

	return reverseQueries(queries)
}

// Fetch implements Integration.
func (s *AutoScout24) Fetch(ctx context.Context, q types.Query) (*fetcher.Response, error) {
	req := fetcher.NewRequest(s.Name(), q.URL)
	req.Headers = s.cfg.Headers
	req.Cookies = s.cfg.Cookies
	return s.fetch.Fetch(ctx, req)
}

// Extract implements Integration: one CandidateListing per result article.
func (s *AutoScout24) Extract(resp *fetcher.Response, parentVehicleID, timestamp string) ([]*types.CandidateListing, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ExtractError{Site: s.Name(), Selector: "document", Err: err}
	}

	var listings []*types.CandidateListing
	doc.Find("main article").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if len(listings) >= s.maxCandidates {
			return false
		}

		link, _ := card.Find("a").First().Attr("href")
		if link == "" {
			return true
		}
		if strings.HasPrefix(link, "/") {
			link = strings.TrimSuffix(autoscoutDomain, "/") + link
		}

		name := strings.TrimSpace(card.Find("h2").First().Text())

		var meta []string
		var mileage float64
		card.Find("[data-testid='VehicleDetails'] span, [data-testid='VehicleDetails'] div").Each(func(_ int, item *goquery.Selection) {
			text := strings.TrimSpace(item.Text())
			if text == "" {
				return
			}
			if strings.Contains(strings.ToLower(text), "km") && mileage == 0 {
				mileage = ParseLocaleFloat(text)
			}
			meta = append(meta, text)
		})

		price := ParseLocaleFloat(card.Find("[data-testid='regular-price']").First().Text())
		if price == 0 {
			price = ParseLocaleFloat(card.Find("p.Price").First().Text())
		}
		image, _ := card.Find("img").First().Attr("src")

		listings = append(listings, &types.CandidateListing{
			ID:              types.ListingID(link, parentVehicleID),
			Name:            name,
			Price:           price,
			Link:            link,
			Image:           image,
			Mileage:         mileage,
			Metadata:        strings.Join(meta, "; "),
			Domain:          autoscoutDomain,
			ParentVehicleID: parentVehicleID,
			UpdatedAt:       timestamp,
		})
		return true
	})

	return listings, nil
}
