// Package registers holds the declarative Modbus register map for the
// Sungrow SH4.0RS hybrid inverter (WiNet-S dongle, function code 0x04
// input registers). Registers are organised into contiguous groups so the
// poller can issue one read per group.
//
// The built-in map is the default; a YAML file can replace it at startup
// (see Load). Either way the map must pass Validate before use.
package registers

import (
	"fmt"
	"sort"
)

// Kind is the wire encoding of a register value.
type Kind string

const (
	U16  Kind = "U16"
	S16  Kind = "S16"
	U32  Kind = "U32"
	S32  Kind = "S32"
	UTF8 Kind = "UTF8"
)

// Words returns the number of 16-bit Modbus words a value of this kind
// occupies. UTF8 registers set their word count explicitly and return 0
// here.
func (k Kind) Words() int {
	switch k {
	case U16, S16:
		return 1
	case U32, S32:
		return 2
	default:
		return 0
	}
}

// Signed reports whether values of this kind use two's-complement.
func (k Kind) Signed() bool {
	return k == S16 || k == S32
}

// Register describes a single Modbus input register.
type Register struct {
	Address uint16
	Name    string
	Kind    Kind
	Unit    string
	// Scale is the multiplicative factor applied to the raw integer to
	// obtain the engineering value.
	Scale float64
	// Min/Max bound the scaled value; only checked when HasRange is set.
	Min      float64
	Max      float64
	HasRange bool
	// WordCount overrides Kind.Words for UTF8 registers.
	WordCount int
}

// Words returns the number of 16-bit words this register occupies.
func (r Register) Words() int {
	if r.WordCount > 0 {
		return r.WordCount
	}
	return r.Kind.Words()
}

// Group is a contiguous range of registers read in a single Modbus request.
type Group struct {
	Name  string
	Start uint16
	Count uint16
	// Optional groups log a warning on a Modbus error and let the poll
	// cycle continue without their registers. Some inverters do not
	// expose the export register.
	Optional  bool
	Registers []Register
}

// Map is an ordered collection of register groups plus a by-name index.
type Map struct {
	Groups []Group
	byName map[string]Register
}

// NewMap builds a Map from groups and indexes every register by name.
// It does not validate; call Validate separately.
func NewMap(groups []Group) *Map {
	m := &Map{Groups: groups, byName: make(map[string]Register)}
	for _, g := range groups {
		for _, r := range g.Registers {
			m.byName[r.Name] = r
		}
	}
	return m
}

// Lookup returns the register with the given name.
func (m *Map) Lookup(name string) (Register, bool) {
	r, ok := m.byName[name]
	return r, ok
}

// Validate checks the structural contract of the map: every register
// fits inside its group's read interval, registers within a group are
// strictly ascending and non-overlapping, no name or address appears
// twice, every scale is positive, every range has min <= max, and
// word counts are resolvable.
func (m *Map) Validate() error {
	seenNames := make(map[string]bool)
	seenAddrs := make(map[uint16]string)
	for _, g := range m.Groups {
		if g.Name == "" {
			return fmt.Errorf("register map: group with empty name")
		}
		if g.Count == 0 {
			return fmt.Errorf("register map: group %q has zero count", g.Name)
		}
		if len(g.Registers) == 0 {
			return fmt.Errorf("register map: group %q has no registers", g.Name)
		}
		if !sort.SliceIsSorted(g.Registers, func(i, j int) bool {
			return g.Registers[i].Address < g.Registers[j].Address
		}) {
			return fmt.Errorf("register map: group %q registers not in ascending address order", g.Name)
		}
		end := int(g.Start) + int(g.Count)
		prevEnd := int(g.Start)
		for _, r := range g.Registers {
			if r.Name == "" {
				return fmt.Errorf("register map: group %q: register at %d has empty name", g.Name, r.Address)
			}
			words := r.Words()
			if words <= 0 {
				return fmt.Errorf("register map: %q: unresolvable word count for kind %q", r.Name, r.Kind)
			}
			if int(r.Address) < int(g.Start) || int(r.Address)+words > end {
				return fmt.Errorf("register map: %q: [%d,%d) outside group %q interval [%d,%d)",
					r.Name, r.Address, int(r.Address)+words, g.Name, g.Start, end)
			}
			if int(r.Address) < prevEnd {
				return fmt.Errorf("register map: %q at %d overlaps previous register in group %q", r.Name, r.Address, g.Name)
			}
			prevEnd = int(r.Address) + words
			if seenNames[r.Name] {
				return fmt.Errorf("register map: duplicate register name %q", r.Name)
			}
			seenNames[r.Name] = true
			if owner, dup := seenAddrs[r.Address]; dup {
				return fmt.Errorf("register map: address %d declared by both %q and %q", r.Address, owner, r.Name)
			}
			seenAddrs[r.Address] = r.Name
			if r.Scale <= 0 {
				return fmt.Errorf("register map: %q: scale must be positive, got %g", r.Name, r.Scale)
			}
			if r.HasRange && r.Min > r.Max {
				return fmt.Errorf("register map: %q: min %g > max %g", r.Name, r.Min, r.Max)
			}
		}
	}
	return nil
}

// ranged is a constructor shorthand for the default map below.
func ranged(addr uint16, name string, kind Kind, unit string, scale, min, max float64) Register {
	return Register{Address: addr, Name: name, Kind: kind, Unit: unit, Scale: scale, Min: min, Max: max, HasRange: true}
}

// Default returns the built-in SH4.0RS register map.
//
// Addresses follow the Sungrow hybrid inverter communication protocol as
// exposed by the WiNet-S dongle. The export group is optional: WiNet-S
// firmware on some units returns a Modbus error for register 5083.
func Default() *Map {
	return NewMap([]Group{
		{
			Name:  "device",
			Start: 4990,
			Count: 11, // 4990..5000 inclusive
			Registers: []Register{
				{Address: 4990, Name: "serial_number", Kind: UTF8, Scale: 1, WordCount: 10},
				ranged(5000, "device_type_code", U16, "", 1, 0, 65535),
			},
		},
		{
			Name:  "pv",
			Start: 5004,
			Count: 15, // 5004..5018 inclusive
			Registers: []Register{
				ranged(5004, "total_dc_power", U32, "W", 1, 0, 20000),
				ranged(5011, "daily_pv_generation", U16, "kWh", 0.1, 0, 100),
				ranged(5012, "mppt1_voltage", U16, "V", 0.1, 0, 600),
				ranged(5013, "mppt1_current", U16, "A", 0.1, 0, 20),
				ranged(5014, "mppt2_voltage", U16, "V", 0.1, 0, 600),
				ranged(5015, "mppt2_current", U16, "A", 0.1, 0, 20),
				ranged(5017, "total_pv_generation", U32, "kWh", 0.1, 0, 1_000_000),
			},
		},
		{
			Name:     "export",
			Start:    5083,
			Count:    2,
			Optional: true,
			Registers: []Register{
				ranged(5083, "export_power", S32, "W", 1, -20000, 20000),
			},
		},
		{
			Name:  "load",
			Start: 13008,
			Count: 10, // 13008..13017 inclusive
			Registers: []Register{
				ranged(13008, "load_power", S32, "W", 1, -20000, 50000),
				ranged(13010, "grid_power", S16, "W", 1, -20000, 20000),
				ranged(13017, "daily_direct_consumption", U16, "kWh", 0.1, 0, 200),
			},
		},
		{
			Name:  "battery",
			Start: 13022,
			Count: 6, // 13022..13027 inclusive
			Registers: []Register{
				ranged(13022, "battery_power", S16, "W", 1, -10000, 10000),
				ranged(13023, "battery_soc", U16, "%", 0.1, 0, 100),
				ranged(13024, "battery_temperature", U16, "C", 0.1, -20, 60),
				ranged(13026, "daily_battery_discharge", U16, "kWh", 0.1, 0, 100),
				ranged(13027, "daily_battery_charge", U16, "kWh", 0.1, 0, 100),
			},
		},
	})
}
