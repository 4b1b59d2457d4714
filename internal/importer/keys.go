package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/schema"

	"github.com/google/uuid"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006.01.02",
}

// deriveKey computes a row's business key. The lot identifier always comes
// from the file name convention; the family-specific parts prefer row
// content over values inferred from the file name.
func deriveKey(def schema.Definition, tenantID uuid.UUID, fileName string, fields domain.RowFields) (fmt.Stringer, error) {
	lotRaw := domain.LotFromFilename(fileName)
	lotNorm := domain.NormalizeLot(lotRaw)
	if lotNorm == "" {
		return nil, fmt.Errorf("file name %q carries no lot digits", fileName)
	}

	switch def.Family {
	case schema.FamilyLot:
		return domain.LotKey{TenantID: tenantID, LotNorm: lotNorm}, nil

	case schema.FamilyWinder:
		winder, err := deriveWinder(def, fileName, fields)
		if err != nil {
			return nil, err
		}
		return domain.WinderKey{TenantID: tenantID, LotNorm: lotNorm, WinderNo: winder}, nil

	case schema.FamilyMolding:
		rawDate, _ := fields.Get(def.DateField)
		producedOn, err := parseProductionDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", def.DateField, err)
		}
		machine, _ := fields.Get(def.MachineField)
		machine = strings.TrimSpace(machine)
		mold, _ := fields.Get(def.MoldField)
		mold = strings.TrimSpace(mold)
		if machine == "" || mold == "" {
			return nil, fmt.Errorf("machine and mold are required for table %s", def.Code)
		}
		return domain.MoldingKey{
			TenantID:   tenantID,
			ProducedOn: producedOn,
			MachineID:  machine,
			MoldID:     mold,
			LotNorm:    lotNorm,
		}, nil

	default:
		return nil, fmt.Errorf("unhandled record family for table %s", def.Code)
	}
}

// deriveWinder reads the winder number from row content, falling back to
// the trailing segment of the file name (e.g. "1234567_01" carries winder
// 1 when no winder column is present).
func deriveWinder(def schema.Definition, fileName string, fields domain.RowFields) (int, error) {
	if raw, ok := fields.Get(def.WinderField); ok && strings.TrimSpace(raw) != "" {
		winder, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("field %s: value %q is not a winder number", def.WinderField, raw)
		}
		return winder, nil
	}

	base := domain.LotFromFilename(fileName)
	if i := strings.LastIndexAny(base, "_-"); i >= 0 && i+1 < len(base) {
		if winder, err := strconv.Atoi(base[i+1:]); err == nil {
			return winder, nil
		}
	}
	return 0, fmt.Errorf("winder number not found in row or file name")
}

// parseProductionDate parses a production date and truncates it to date
// precision in UTC so key equality does not depend on time-of-day or zone.
func parseProductionDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("production date is empty")
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", raw)
}
