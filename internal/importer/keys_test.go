package importer

import (
	"testing"
	"time"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/schema"

	"github.com/google/uuid"
)

func mustDef(t *testing.T, code string) schema.Definition {
	t.Helper()
	def, ok := schema.Lookup(code)
	if !ok {
		t.Fatalf("table code %s not registered", code)
	}
	return def
}

func TestDeriveKeyLot(t *testing.T) {
	tenantID := uuid.New()
	key, err := deriveKey(mustDef(t, "P1"), tenantID, "1234567_01.csv", nil)
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}

	lot, ok := key.(domain.LotKey)
	if !ok {
		t.Fatalf("expected LotKey, got %T", key)
	}
	if lot.LotNorm != "123456701" {
		t.Errorf("expected lot_norm 123456701, got %s", lot.LotNorm)
	}
}

func TestDeriveKeyNoLotDigits(t *testing.T) {
	if _, err := deriveKey(mustDef(t, "P1"), uuid.New(), "notes.csv", nil); err == nil {
		t.Fatal("expected an error for a file name without lot digits")
	}
}

func TestDeriveWinderFromRow(t *testing.T) {
	fields := domain.RowFields{{Name: "winder_no", Value: "7"}}
	key, err := deriveKey(mustDef(t, "P2"), uuid.New(), "1234567.csv", fields)
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}
	if key.(domain.WinderKey).WinderNo != 7 {
		t.Errorf("expected winder 7, got %d", key.(domain.WinderKey).WinderNo)
	}
}

func TestDeriveWinderFromFilename(t *testing.T) {
	// No winder column; the trailing file-name segment carries it.
	key, err := deriveKey(mustDef(t, "P2"), uuid.New(), "1234567_01.csv", nil)
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}
	winder := key.(domain.WinderKey)
	if winder.WinderNo != 1 {
		t.Errorf("expected winder 1 from file name, got %d", winder.WinderNo)
	}
	if winder.LotNorm != "123456701" {
		t.Errorf("expected lot_norm 123456701, got %s", winder.LotNorm)
	}
}

func TestDeriveWinderMissing(t *testing.T) {
	if _, err := deriveKey(mustDef(t, "P2"), uuid.New(), "1234567.csv", nil); err == nil {
		t.Fatal("expected an error when no winder number is available")
	}
}

func TestDeriveKeyMolding(t *testing.T) {
	fields := domain.RowFields{
		{Name: "production_date", Value: "2026/03/14"},
		{Name: "machine_no", Value: " M1 "},
		{Name: "mold_no", Value: "K7"},
	}
	key, err := deriveKey(mustDef(t, "P3"), uuid.New(), "7654321.csv", fields)
	if err != nil {
		t.Fatalf("failed to derive key: %v", err)
	}

	molding := key.(domain.MoldingKey)
	if molding.MachineID != "M1" || molding.MoldID != "K7" {
		t.Errorf("unexpected machine/mold: %s/%s", molding.MachineID, molding.MoldID)
	}
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if !molding.ProducedOn.Equal(want) {
		t.Errorf("expected %s, got %s", want, molding.ProducedOn)
	}
}

func TestDeriveKeyMoldingMissingMachine(t *testing.T) {
	fields := domain.RowFields{
		{Name: "production_date", Value: "2026-03-14"},
		{Name: "mold_no", Value: "K7"},
	}
	if _, err := deriveKey(mustDef(t, "P3"), uuid.New(), "7654321.csv", fields); err == nil {
		t.Fatal("expected an error when machine_no is missing")
	}
}

func TestParseProductionDateLayouts(t *testing.T) {
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2026-03-14", "2026/03/14", "20260314", "2026.03.14"} {
		got, err := parseProductionDate(raw)
		if err != nil {
			t.Errorf("failed to parse %q: %v", raw, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parse %q = %s, want %s", raw, got, want)
		}
	}

	for _, raw := range []string{"", "14-03-2026", "not a date", "2026-13-40"} {
		if _, err := parseProductionDate(raw); err == nil {
			t.Errorf("expected %q to fail", raw)
		}
	}
}
