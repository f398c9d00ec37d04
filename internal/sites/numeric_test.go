package sites

import "testing"

func TestParseLocaleFloat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"plain integer", "25990", 25990},
		{"euro with spaces", "25 990 €", 25990},
		{"narrow nbsp grouping", "15 359 km", 15359},
		{"comma decimal", "15 359,50", 15359.50},
		{"dot grouping", "120.000 km", 120000},
		{"mixed grouping and decimal", "1.234,56", 1234.56},
		{"empty", "", 0},
		{"no digits", "prix sur demande", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLocaleFloat(tt.in); got != tt.want {
				t.Errorf("ParseLocaleFloat(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Land Rover", "land-rover"},
		{"  Peugeot ", "peugeot"},
		{"ALFA  ROMEO", "alfa-romeo"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
