package ingest

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/dealermetrics/carmatch/internal/config"
	"github.com/dealermetrics/carmatch/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func setCell(t *testing.T, f *excelize.File, sheet string, col, row int, value any) {
	t.Helper()
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		t.Fatalf("CoordinatesToCellName(%d,%d): %v", col, row, err)
	}
	if err := f.SetCellValue(sheet, name, value); err != nil {
		t.Fatalf("SetCellValue(%s): %v", name, err)
	}
}

func writeInventory(t *testing.T, ids []string) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	setCell(t, f, sheet, colID, 1, "ID")

	for i, id := range ids {
		row := i + 2
		setCell(t, f, sheet, colID, row, id)
		setCell(t, f, sheet, colMake, row, "Peugeot")
		setCell(t, f, sheet, colModel, row, "3008")
		setCell(t, f, sheet, colMileage, row, 42000)
		setCell(t, f, sheet, colPriceWithTax, row, "27500,50")
		setCell(t, f, sheet, colGearbox, row, types.GearboxAutomatic)
		setCell(t, f, sheet, colFuelType, row, types.FuelDiesel)
		setCell(t, f, sheet, colFourWheelDrive, row, 1)
		setCell(t, f, sheet, colVersion, row, "GT Line")
		setCell(t, f, sheet, colColor, row, "Gris")
		setCell(t, f, sheet, equipmentColumns["gps"], row, 1)
		setCell(t, f, sheet, equipmentColumns["leather"], row, 0)
	}

	path := filepath.Join(t.TempDir(), "inventory.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func TestLoadParsesRows(t *testing.T) {
	path := writeInventory(t, []string{"veh-1", "veh-2"})
	r := NewReader(config.IngestConfig{SampleSize: 1000}, testLogger)

	vehicles, err := r.Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("len = %d, want 2", len(vehicles))
	}

	v := vehicles[0]
	if v.ID != "veh-1" || v.Make != "Peugeot" || v.Model != "3008" {
		t.Errorf("identity fields = %q/%q/%q", v.ID, v.Make, v.Model)
	}
	if v.Mileage != 42000 {
		t.Errorf("Mileage = %v", v.Mileage)
	}
	if v.PriceWithTax != 27500.50 {
		t.Errorf("PriceWithTax = %v, want comma decimal parsed", v.PriceWithTax)
	}
	if v.FuelType != types.FuelDiesel || v.Gearbox != types.GearboxAutomatic {
		t.Errorf("FuelType/Gearbox = %d/%d", v.FuelType, v.Gearbox)
	}
	if !v.FourWheelDrive {
		t.Error("FourWheelDrive not set")
	}
	if v.Version != "GT Line" || v.Color != "Gris" {
		t.Errorf("Version/Color = %q/%q", v.Version, v.Color)
	}
	if !v.Equipment.GPS || v.Equipment.Leather {
		t.Errorf("Equipment = %+v", v.Equipment)
	}
}

func TestLoadSkipsRowsWithoutID(t *testing.T) {
	path := writeInventory(t, []string{"veh-1", "", "veh-3"})
	r := NewReader(config.IngestConfig{}, testLogger)

	vehicles, err := r.Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(vehicles) != 2 {
		t.Errorf("len = %d, want id-less row dropped", len(vehicles))
	}
}

func TestLoadSampleMode(t *testing.T) {
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = "veh-" + string(rune('a'+i))
	}
	path := writeInventory(t, ids)
	r := NewReader(config.IngestConfig{SampleSize: 5}, testLogger)

	vehicles, err := r.Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(vehicles) != 5 {
		t.Errorf("len = %d, want sample size", len(vehicles))
	}
}

func TestLoadEmptySheet(t *testing.T) {
	f := excelize.NewFile()
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}

	r := NewReader(config.IngestConfig{}, testLogger)
	_, err := r.Load(path, false)
	if !errors.Is(err, types.ErrNoVehicles) {
		t.Fatalf("err = %v, want ErrNoVehicles", err)
	}
}

func TestFind(t *testing.T) {
	path := writeInventory(t, []string{"veh-1", "veh-2"})
	r := NewReader(config.IngestConfig{}, testLogger)

	v, err := r.Find(path, "veh-2")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if v.ID != "veh-2" {
		t.Errorf("ID = %q", v.ID)
	}

	if _, err := r.Find(path, "nosuch"); !errors.Is(err, types.ErrVehicleNotFound) {
		t.Errorf("err = %v, want ErrVehicleNotFound", err)
	}
}
