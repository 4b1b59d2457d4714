package schema

import "testing"

func TestLookup(t *testing.T) {
	for _, code := range []string{"P1", "P2", "P3"} {
		def, ok := Lookup(code)
		if !ok {
			t.Fatalf("expected table code %s to be registered", code)
		}
		if def.Code != code {
			t.Errorf("expected code %s, got %s", code, def.Code)
		}
		if def.Version == "" {
			t.Errorf("expected %s to carry a schema version", code)
		}
		if len(def.Rules) == 0 {
			t.Errorf("expected %s to carry field rules", code)
		}
	}

	if _, ok := Lookup("P9"); ok {
		t.Error("expected unknown table code to miss")
	}
}

func TestCodesSorted(t *testing.T) {
	codes := Codes()
	if len(codes) != 3 {
		t.Fatalf("expected 3 codes, got %d", len(codes))
	}
	for i, want := range []string{"P1", "P2", "P3"} {
		if codes[i] != want {
			t.Errorf("codes[%d] = %s, want %s", i, codes[i], want)
		}
	}
}

func TestKeyField(t *testing.T) {
	cases := map[string]string{
		"P1": "lot_no",
		"P2": "winder_no",
		"P3": "mold_no",
	}
	for code, want := range cases {
		def, _ := Lookup(code)
		if got := def.KeyField(); got != want {
			t.Errorf("%s KeyField() = %s, want %s", code, got, want)
		}
	}
}

func TestCanonical(t *testing.T) {
	def, _ := Lookup("P2")

	cases := []struct {
		header string
		want   string
	}{
		{"winder_no", "winder_no"},
		{"WINDER_NO", "winder_no"},
		{"winder", "winder_no"},
		{"巻取機No", "winder_no"},
		{"lot", "lot_no"},
		{"ロットNo", "lot_no"},
		{"operator", "operator"},
		{"unknown_column", "unknown_column"},
	}
	for _, c := range cases {
		if got := def.Canonical(c.header); got != c.want {
			t.Errorf("Canonical(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestMoldingKeyColumns(t *testing.T) {
	def, _ := Lookup("P3")
	if def.DateField != "production_date" || def.MachineField != "machine_no" || def.MoldField != "mold_no" {
		t.Errorf("unexpected P3 key columns: %+v", def)
	}
}
