package ingest

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

// Column positions in the dealer inventory export. The export is a wide
// machine-generated sheet with hundreds of columns; only these carry data
// the run needs. Positions are 1-based.
const (
	colID              = 1
	colMake            = 3
	colModel           = 4
	colMileage         = 9
	colPriceWithTax    = 11
	colPriceWithoutTax = 12
	colGearbox         = 87
	colFuelType        = 109
	colFourWheelDrive  = 143
	colVersion         = 288
	colColor           = 397
	colListingURL      = 412
)

// equipmentColumns maps option flags to their export columns. The export
// encodes options as 0/1 cells in a contiguous block.
var equipmentColumns = map[string]int{
	"sunroof":          150,
	"leather":          151,
	"gps":              152,
	"camera_360":       153,
	"reversing_camera": 154,
	"parking_sensors":  155,
	"heated_seats":     156,
	"cruise_control":   157,
	"keyless_entry":    158,
	"tow_bar":          159,
	"alloys":           160,
	"led_headlights":   161,
	"apple_carplay":    162,
	"adaptive_cruise":  163,
	"head_up_display":  164,
}

// Reader loads source vehicles from the dealer's xlsx inventory export.
type Reader struct {
	cfg    config.IngestConfig
	logger *slog.Logger
}

// NewReader creates an inventory reader.
func NewReader(cfg config.IngestConfig, logger *slog.Logger) *Reader {
	return &Reader{cfg: cfg, logger: logger.With("component", "ingest")}
}

// Load reads all vehicles from the configured file. With sample set, a
// bounded random sample is returned instead of the full sheet.
func (r *Reader) Load(path string, sample bool) ([]*types.SourceVehicle, error) {
	if path == "" {
		path = r.cfg.FilePath
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, types.ErrNoVehicles
	}

	var vehicles []*types.SourceVehicle
	for i, row := range rows[1:] {
		v := parseRow(row)
		if v == nil {
			r.logger.Debug("skipping row without id", "row", i+2)
			continue
		}
		vehicles = append(vehicles, v)
	}
	if len(vehicles) == 0 {
		return nil, types.ErrNoVehicles
	}

	r.logger.Info("inventory loaded", "path", path, "vehicles", len(vehicles))

	if sample && r.cfg.SampleSize > 0 && len(vehicles) > r.cfg.SampleSize {
		rand.Shuffle(len(vehicles), func(i, j int) {
			vehicles[i], vehicles[j] = vehicles[j], vehicles[i]
		})
		vehicles = vehicles[:r.cfg.SampleSize]
		r.logger.Info("sample mode", "sampled", len(vehicles))
	}

	return vehicles, nil
}

// Find returns the single vehicle with the given id from the file.
func (r *Reader) Find(path, vehicleID string) (*types.SourceVehicle, error) {
	vehicles, err := r.Load(path, false)
	if err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		if v.ID == vehicleID {
			return v, nil
		}
	}
	return nil, types.ErrVehicleNotFound
}

// parseRow maps one sheet row onto a vehicle. Rows without an id are
// export artifacts (subtotals, trailing blanks) and are dropped.
func parseRow(row []string) *types.SourceVehicle {
	id := strings.TrimSpace(cell(row, colID))
	if id == "" {
		return nil
	}

	v := &types.SourceVehicle{
		ID:              id,
		Make:            strings.TrimSpace(cell(row, colMake)),
		Model:           strings.TrimSpace(cell(row, colModel)),
		Version:         strings.TrimSpace(cell(row, colVersion)),
		Color:           strings.TrimSpace(cell(row, colColor)),
		Mileage:         parseFloat(cell(row, colMileage)),
		FuelType:        parseInt(cell(row, colFuelType)),
		Gearbox:         parseInt(cell(row, colGearbox)),
		PriceWithTax:    parseFloat(cell(row, colPriceWithTax)),
		PriceWithoutTax: parseFloat(cell(row, colPriceWithoutTax)),
		FourWheelDrive:  parseBool(cell(row, colFourWheelDrive)),
		ListingURL:      strings.TrimSpace(cell(row, colListingURL)),
	}

	eq := &v.Equipment
	setters := map[string]*bool{
		"sunroof":          &eq.Sunroof,
		"leather":          &eq.Leather,
		"gps":              &eq.GPS,
		"camera_360":       &eq.Camera360,
		"reversing_camera": &eq.ReversingCam,
		"parking_sensors":  &eq.ParkingSensors,
		"heated_seats":     &eq.HeatedSeats,
		"cruise_control":   &eq.CruiseControl,
		"keyless_entry":    &eq.KeylessEntry,
		"tow_bar":          &eq.TowBar,
		"alloys":           &eq.Alloys,
		"led_headlights":   &eq.LEDHeadlights,
		"apple_carplay":    &eq.AppleCarPlay,
		"adaptive_cruise":  &eq.AdaptiveCruise,
		"head_up_display":  &eq.HeadUpDisplay,
	}
	for name, col := range equipmentColumns {
		if target, ok := setters[name]; ok {
			*target = parseBool(cell(row, col))
		}
	}

	return v
}

// cell returns the 1-based column value, empty when the row is short.
// GetRows trims trailing empty cells, so short rows are routine.
func cell(row []string, col int) string {
	if col-1 < len(row) {
		return row[col-1]
	}
	return ""
}

func parseFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int {
	return int(parseFloat(s))
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "oui", "x", "yes":
		return true
	}
	return false
}
