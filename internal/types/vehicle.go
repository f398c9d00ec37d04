package types

import (
	"encoding/json"
	"fmt"
)

// Fuel codes as they appear in the dealer's inventory export.
// Each site integration maps these onto its own vocabulary.
const (
	FuelOther    = 0
	FuelPetrol   = 1
	FuelDiesel   = 2
	FuelLPG      = 3
	FuelCNG      = 4
	FuelElectric = 6
	FuelHybrid   = 7
	FuelHydrogen = 8
)

// Gearbox codes from the inventory export.
const (
	GearboxManual    = 1
	GearboxAutomatic = 3
)

// Equipment holds the boolean option flags carried on a source vehicle.
// The flag set mirrors the dealer export's option columns.
type Equipment struct {
	Sunroof        bool `json:"sunroof"`
	Leather        bool `json:"leather"`
	GPS            bool `json:"gps"`
	Camera360      bool `json:"camera_360"`
	ReversingCam   bool `json:"reversing_camera"`
	ParkingSensors bool `json:"parking_sensors"`
	HeatedSeats    bool `json:"heated_seats"`
	CruiseControl  bool `json:"cruise_control"`
	KeylessEntry   bool `json:"keyless_entry"`
	TowBar         bool `json:"tow_bar"`
	Alloys         bool `json:"alloys"`
	LEDHeadlights  bool `json:"led_headlights"`
	AppleCarPlay   bool `json:"apple_carplay"`
	AdaptiveCruise bool `json:"adaptive_cruise"`
	HeadUpDisplay  bool `json:"head_up_display"`
}

// equipmentFlag pairs a flag name with its accessor so escalation steps
// are built in a stable order.
type equipmentFlag struct {
	Name string
	Set  func(Equipment) bool
}

var equipmentFlags = []equipmentFlag{
	{"sunroof", func(e Equipment) bool { return e.Sunroof }},
	{"leather", func(e Equipment) bool { return e.Leather }},
	{"gps", func(e Equipment) bool { return e.GPS }},
	{"camera_360", func(e Equipment) bool { return e.Camera360 }},
	{"reversing_camera", func(e Equipment) bool { return e.ReversingCam }},
	{"parking_sensors", func(e Equipment) bool { return e.ParkingSensors }},
	{"heated_seats", func(e Equipment) bool { return e.HeatedSeats }},
	{"cruise_control", func(e Equipment) bool { return e.CruiseControl }},
	{"keyless_entry", func(e Equipment) bool { return e.KeylessEntry }},
	{"tow_bar", func(e Equipment) bool { return e.TowBar }},
	{"alloys", func(e Equipment) bool { return e.Alloys }},
	{"led_headlights", func(e Equipment) bool { return e.LEDHeadlights }},
	{"apple_carplay", func(e Equipment) bool { return e.AppleCarPlay }},
	{"adaptive_cruise", func(e Equipment) bool { return e.AdaptiveCruise }},
	{"head_up_display", func(e Equipment) bool { return e.HeadUpDisplay }},
}

// Enabled returns the names of all set flags in a fixed order.
func (e Equipment) Enabled() []string {
	var out []string
	for _, f := range equipmentFlags {
		if f.Set(e) {
			out = append(out, f.Name)
		}
	}
	return out
}

// SourceVehicle is one dealer-owned car being priced against the market.
// It is built from a single row of the inventory spreadsheet and is
// immutable for the duration of a run.
type SourceVehicle struct {
	ID              string    `json:"id" bson:"id"`
	Make            string    `json:"make" bson:"make"`
	Model           string    `json:"model" bson:"model"`
	Version         string    `json:"version,omitempty" bson:"version,omitempty"`
	Color           string    `json:"color" bson:"color"`
	Mileage         float64   `json:"mileage" bson:"mileage"`
	FuelType        int       `json:"fuel_type" bson:"fuel_type"`
	Gearbox         int       `json:"boite_de_vitesse" bson:"boite_de_vitesse"`
	PriceWithTax    float64   `json:"price_with_tax" bson:"price_with_tax"`
	PriceWithoutTax float64   `json:"price_without_tax" bson:"price_without_tax"`
	YearFrom        int       `json:"year_from,omitempty" bson:"year_from,omitempty"`
	YearTo          int       `json:"year_to,omitempty" bson:"year_to,omitempty"`
	FourWheelDrive  bool      `json:"four_wheel_drive" bson:"four_wheel_drive"`
	Equipment       Equipment `json:"equipment" bson:"equipment"`
	ListingURL      string    `json:"listing_url,omitempty" bson:"listing_url,omitempty"`
}

// ToJSON serializes the vehicle for LLM prompts and logging.
func (v *SourceVehicle) ToJSON() string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"id":%q}`, v.ID)
	}
	return string(b)
}
