package types

import (
	"strings"
	"testing"
)

func TestListingIDStableAndScoped(t *testing.T) {
	a := ListingID("https://example.test/ad/1", "veh-1")
	b := ListingID("https://example.test/ad/1", "veh-1")
	if a != b {
		t.Errorf("same inputs produced different ids: %q vs %q", a, b)
	}

	other := ListingID("https://example.test/ad/1", "veh-2")
	if a == other {
		t.Error("same ad for two vehicles must yield distinct ids")
	}
	if !strings.HasSuffix(a, "_veh-1") || !strings.HasSuffix(other, "_veh-2") {
		t.Errorf("ids not vehicle-scoped: %q %q", a, other)
	}

	if ListingID("https://example.test/ad/2", "veh-1") == a {
		t.Error("different ads collided")
	}
}

func TestDedupListingsKeepsFirst(t *testing.T) {
	in := []*CandidateListing{
		{ID: "a", Price: 1},
		{ID: "b", Price: 2},
		{ID: "a", Price: 3},
		{ID: "c", Price: 4},
		{ID: "b", Price: 5},
	}
	out := DedupListings(in)

	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].ID != "a" || out[0].Price != 1 {
		t.Errorf("first occurrence not kept: %+v", out[0])
	}
	if out[1].ID != "b" || out[1].Price != 2 {
		t.Errorf("first occurrence not kept: %+v", out[1])
	}
}

func TestEquipmentEnabledOrder(t *testing.T) {
	eq := Equipment{GPS: true, Sunroof: true, HeadUpDisplay: true}
	got := eq.Enabled()

	want := []string{"sunroof", "gps", "head_up_display"}
	if len(got) != len(want) {
		t.Fatalf("Enabled() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Enabled() = %v, want fixed order %v", got, want)
		}
	}

	if got := (Equipment{}).Enabled(); len(got) != 0 {
		t.Errorf("empty equipment Enabled() = %v", got)
	}
}

func TestVehicleToJSONCarriesFrenchGearboxKey(t *testing.T) {
	v := &SourceVehicle{ID: "veh-1", Gearbox: GearboxAutomatic}
	s := v.ToJSON()
	if !strings.Contains(s, `"boite_de_vitesse":3`) {
		t.Errorf("ToJSON() = %s, want boite_de_vitesse key", s)
	}
}

func TestErrorUnwrapping(t *testing.T) {
	inner := ErrEmptyContent
	fe := &FetchError{URL: "https://example.test", StatusCode: 200, Err: inner, Retryable: true}
	if fe.Unwrap() != inner {
		t.Error("FetchError does not unwrap")
	}
	if !fe.IsRetryable() {
		t.Error("retryable verdict lost")
	}

	pe := &PlanError{Site: "leboncoin", Err: fe}
	if pe.Unwrap() != fe {
		t.Error("PlanError does not unwrap")
	}
	if !strings.Contains(pe.Error(), "leboncoin") {
		t.Errorf("PlanError message = %q", pe.Error())
	}
}
