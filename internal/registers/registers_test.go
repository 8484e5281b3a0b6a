package registers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultMapValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
}

func TestDefaultMapLookup(t *testing.T) {
	m := Default()
	cases := []struct {
		name  string
		kind  Kind
		words int
	}{
		{"total_dc_power", U32, 2},
		{"battery_power", S16, 1},
		{"export_power", S32, 2},
		{"serial_number", UTF8, 10},
	}
	for _, tc := range cases {
		r, ok := m.Lookup(tc.name)
		if !ok {
			t.Errorf("Lookup(%q) missing", tc.name)
			continue
		}
		if r.Kind != tc.kind || r.Words() != tc.words {
			t.Errorf("%s: kind=%s words=%d, want %s/%d", tc.name, r.Kind, r.Words(), tc.kind, tc.words)
		}
	}
}

func TestExportGroupIsOptional(t *testing.T) {
	for _, g := range Default().Groups {
		if g.Name == "export" {
			if !g.Optional {
				t.Error("export group should be optional")
			}
			return
		}
	}
	t.Fatal("export group not found")
}

func TestValidateRejectsBrokenMaps(t *testing.T) {
	cases := []struct {
		name   string
		groups []Group
		want   string
	}{
		{
			name: "register outside group interval",
			groups: []Group{{
				Name: "g", Start: 100, Count: 2,
				Registers: []Register{{Address: 103, Name: "x", Kind: U16, Scale: 1}},
			}},
			want: "outside group",
		},
		{
			name: "overlapping registers",
			groups: []Group{{
				Name: "g", Start: 100, Count: 4,
				Registers: []Register{
					{Address: 100, Name: "a", Kind: U32, Scale: 1},
					{Address: 101, Name: "b", Kind: U16, Scale: 1},
				},
			}},
			want: "overlaps",
		},
		{
			name: "duplicate name",
			groups: []Group{{
				Name: "g", Start: 100, Count: 4,
				Registers: []Register{
					{Address: 100, Name: "a", Kind: U16, Scale: 1},
					{Address: 101, Name: "a", Kind: U16, Scale: 1},
				},
			}},
			want: "duplicate register name",
		},
		{
			name: "zero scale",
			groups: []Group{{
				Name: "g", Start: 100, Count: 1,
				Registers: []Register{{Address: 100, Name: "a", Kind: U16}},
			}},
			want: "scale must be positive",
		},
		{
			name: "inverted range",
			groups: []Group{{
				Name: "g", Start: 100, Count: 1,
				Registers: []Register{{Address: 100, Name: "a", Kind: U16, Scale: 1, Min: 10, Max: 5, HasRange: true}},
			}},
			want: "min",
		},
		{
			name: "descending addresses",
			groups: []Group{{
				Name: "g", Start: 100, Count: 4,
				Registers: []Register{
					{Address: 102, Name: "a", Kind: U16, Scale: 1},
					{Address: 100, Name: "b", Kind: U16, Scale: 1},
				},
			}},
			want: "ascending",
		},
	}
	for _, tc := range cases {
		err := NewMap(tc.groups).Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error containing %q", tc.name, tc.want)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not contain %q", tc.name, err, tc.want)
		}
	}
}

const yamlOverride = `
groups:
  - name: pv
    start: 5004
    count: 2
    registers:
      - address: 5004
        name: total_dc_power
        kind: U32
        unit: W
        scale: 1
        min: 0
        max: 30000
  - name: battery
    start: 13022
    count: 1
    optional: true
    registers:
      - address: 13022
        name: battery_power
        kind: S16
        unit: W
        scale: 1
`

func TestLoadYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	if err := os.WriteFile(path, []byte(yamlOverride), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r, ok := m.Lookup("total_dc_power")
	if !ok {
		t.Fatal("total_dc_power missing from loaded map")
	}
	if !r.HasRange || r.Max != 30000 {
		t.Errorf("total_dc_power range = [%g,%g] HasRange=%v, want [0,30000]", r.Min, r.Max, r.HasRange)
	}
	b, ok := m.Lookup("battery_power")
	if !ok {
		t.Fatal("battery_power missing from loaded map")
	}
	if b.HasRange {
		t.Error("battery_power should have no range when min/max are omitted")
	}
	if len(m.Groups) != 2 || !m.Groups[1].Optional {
		t.Errorf("groups = %+v, want 2 groups with the second optional", m.Groups)
	}
}

func TestLoadRejectsHalfRange(t *testing.T) {
	bad := strings.Replace(yamlOverride, "        max: 30000\n", "", 1)
	path := filepath.Join(t.TempDir(), "map.yaml")
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "min and max") {
		t.Errorf("Load with min-only range: err = %v, want min/max pairing error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
