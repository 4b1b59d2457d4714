// Package schema maps table codes to the storage shape, field rules and
// business-key conventions of the three record families.
package schema

import (
	"sort"
	"strings"
)

// FieldKind is the expected data type of a source column.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldNumeric
	FieldDate
)

// FieldRule is one data-driven validation rule for a column. Rule sets are
// data, not code: adding a family touches only the registry table below.
// Aliases list alternate source headers that map onto this column; files
// exported from different shop-floor systems label the same column
// differently.
type FieldRule struct {
	Name     string
	Kind     FieldKind
	Required bool
	Aliases  []string
}

// Family identifies which record family a table code writes into.
type Family int

const (
	FamilyLot     Family = iota // P1: unique per (tenant, lot)
	FamilyWinder                // P2: unique per (tenant, lot, winder)
	FamilyMolding               // P3: unique per (tenant, date, machine, mold, lot)
)

// Definition is the registry entry for one table code.
type Definition struct {
	Code    string
	Name    string
	Version string // schema-version identifier stamped onto committed records
	Family  Family
	Rules   []FieldRule

	// Column names the key-derivation step reads from row content.
	WinderField  string // P2
	DateField    string // P3
	MachineField string // P3
	MoldField    string // P3
}

// KeyField names the column uniqueness errors are attributed to: the most
// specific component of the family's business key.
func (d Definition) KeyField() string {
	switch d.Family {
	case FamilyWinder:
		return d.WinderField
	case FamilyMolding:
		return d.MoldField
	default:
		return "lot_no"
	}
}

// Canonical maps a source header onto its rule's column name, by exact or
// alias match, case-insensitively. Headers matching no rule pass through
// unchanged so columns outside the rule set still reach staging.
func (d Definition) Canonical(header string) string {
	for _, r := range d.Rules {
		if strings.EqualFold(header, r.Name) {
			return r.Name
		}
		for _, alias := range r.Aliases {
			if strings.EqualFold(header, alias) {
				return r.Name
			}
		}
	}
	return header
}

var registry = map[string]Definition{
	"P1": {
		Code:    "P1",
		Name:    "product lots",
		Version: "p1.v1",
		Family:  FamilyLot,
		Rules: []FieldRule{
			{Name: "lot_no", Kind: FieldText, Required: true, Aliases: []string{"lot", "ロットNo"}},
			{Name: "product_name", Kind: FieldText, Required: true},
			{Name: "quantity", Kind: FieldNumeric, Required: true},
			{Name: "inspected_on", Kind: FieldDate},
			{Name: "remarks", Kind: FieldText},
		},
	},
	"P2": {
		Code:    "P2",
		Name:    "winding records",
		Version: "p2.v1",
		Family:  FamilyWinder,
		Rules: []FieldRule{
			{Name: "lot_no", Kind: FieldText, Required: true, Aliases: []string{"lot", "ロットNo"}},
			{Name: "winder_no", Kind: FieldNumeric, Required: true, Aliases: []string{"winder", "巻取機No"}},
			{Name: "length_m", Kind: FieldNumeric},
			{Name: "tension", Kind: FieldNumeric},
			{Name: "operator", Kind: FieldText},
		},
		WinderField: "winder_no",
	},
	"P3": {
		Code:    "P3",
		Name:    "molding records",
		Version: "p3.v1",
		Family:  FamilyMolding,
		Rules: []FieldRule{
			{Name: "lot_no", Kind: FieldText, Required: true, Aliases: []string{"lot", "ロットNo"}},
			{Name: "production_date", Kind: FieldDate, Required: true, Aliases: []string{"date", "成形日"}},
			{Name: "machine_no", Kind: FieldText, Required: true, Aliases: []string{"machine", "成形機No"}},
			{Name: "mold_no", Kind: FieldText, Required: true, Aliases: []string{"mold", "金型No"}},
			{Name: "shot_count", Kind: FieldNumeric},
			{Name: "cavity", Kind: FieldNumeric},
		},
		DateField:    "production_date",
		MachineField: "machine_no",
		MoldField:    "mold_no",
	},
}

// Lookup returns the definition for a table code.
func Lookup(code string) (Definition, bool) {
	def, ok := registry[code]
	return def, ok
}

// Codes returns all registered table codes, sorted for stable output.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
