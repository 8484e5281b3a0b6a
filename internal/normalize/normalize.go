// Package normalize converts raw Modbus register words into a typed
// Sample. It is a pure transform: no I/O, no clock. The device id and
// timestamp are injected by the caller.
package normalize

import (
	"log"
	"time"

	"github.com/sunspool/sunspool/internal/model"
	"github.com/sunspool/sunspool/internal/registers"
)

// fieldMap binds each Sample field to its source register name.
var fieldMap = []struct {
	field    string
	register string
	optional bool // nullable in the Sample
}{
	{"pv_power_w", "total_dc_power", false},
	{"pv_daily_kwh", "daily_pv_generation", true},
	{"battery_power_w", "battery_power", false},
	{"battery_soc_pct", "battery_soc", false},
	{"battery_temp_c", "battery_temperature", true},
	{"load_power_w", "load_power", false},
	{"export_power_w", "export_power", false},
}

// Sample builds a Sample from raw register words. It returns nil when a
// required source register is missing or any decoded value falls outside
// its declared range; one warning names the offending field. Nullable
// fields absent from the raw read are left null without failing the
// sample.
//
// Restored device quirks: when export_power is absent from the raw map
// (the optional export group was skipped), export_power_w falls back to
// -grid_power; S32 registers whose high word is a filler value may carry
// a legacy S16 reading in the low word.
func Sample(regmap *registers.Map, raw map[string][]uint16, deviceID string, ts time.Time) *model.Sample {
	values := make(map[string]*float64, len(fieldMap))

	for _, fm := range fieldMap {
		reg, ok := regmap.Lookup(fm.register)
		if !ok {
			log.Printf("[normalize] warning: field %s: register %q not in map", fm.field, fm.register)
			return nil
		}

		if _, present := raw[fm.register]; !present {
			if fm.field == "export_power_w" {
				if v, ok := gridPowerFallback(regmap, raw); ok {
					log.Printf("[normalize] warning: register %q missing; falling back to -grid_power", fm.register)
					values[fm.field] = &v
					continue
				}
			}
			if fm.optional {
				continue
			}
			log.Printf("[normalize] warning: required register %q missing from raw data", fm.register)
			return nil
		}

		v, ok := extract(reg, raw)
		if !ok {
			return nil
		}
		values[fm.field] = &v
	}

	deref := func(field string) float64 {
		if p := values[field]; p != nil {
			return *p
		}
		return 0
	}
	return &model.Sample{
		DeviceID:      deviceID,
		TS:            ts,
		PVPowerW:      deref("pv_power_w"),
		PVDailyKWh:    values["pv_daily_kwh"],
		BatteryPowerW: deref("battery_power_w"),
		BatterySOCPct: deref("battery_soc_pct"),
		BatteryTempC:  values["battery_temp_c"],
		LoadPowerW:    deref("load_power_w"),
		ExportPowerW:  deref("export_power_w"),
		SampleCount:   1,
	}
}

// gridPowerFallback derives export power from the grid_power register
// (positive = importing), negated to the export sign convention.
func gridPowerFallback(regmap *registers.Map, raw map[string][]uint16) (float64, bool) {
	reg, ok := regmap.Lookup("grid_power")
	if !ok {
		return 0, false
	}
	v, ok := extract(reg, raw)
	if !ok {
		return 0, false
	}
	return -v, true
}

// extract decodes, scales, and range-checks one register value.
func extract(reg registers.Register, raw map[string][]uint16) (float64, bool) {
	words, ok := raw[reg.Name]
	if !ok {
		log.Printf("[normalize] warning: register %q missing from raw data", reg.Name)
		return 0, false
	}
	if len(words) < reg.Words() {
		log.Printf("[normalize] warning: register %q: expected %d words for %s, got %d",
			reg.Name, reg.Words(), reg.Kind, len(words))
		return 0, false
	}

	var rawInt int64
	switch reg.Kind {
	case registers.U16:
		rawInt = int64(words[0])
	case registers.S16:
		rawInt = int64(int16(words[0]))
	case registers.U32:
		rawInt = int64(uint32(words[0])<<16 | uint32(words[1]))
	case registers.S32:
		rawInt = int64(int32(uint32(words[0])<<16 | uint32(words[1])))
	default:
		log.Printf("[normalize] warning: register %q: unsupported kind %q", reg.Name, reg.Kind)
		return 0, false
	}

	scaled := float64(rawInt) * reg.Scale
	if !reg.HasRange {
		return scaled, true
	}
	if scaled >= reg.Min && scaled <= reg.Max {
		return scaled, true
	}

	// Some inverter firmwares expose legacy S16 values in the low word
	// while still returning two words for documented S32 registers
	// (observed on load_power: [0x0000, 0xF230]).
	if reg.Kind == registers.S32 && len(words) >= 2 && (words[0] == 0x0000 || words[0] == 0xFFFF) {
		alt := float64(int16(words[1])) * reg.Scale
		if alt >= reg.Min && alt <= reg.Max {
			log.Printf("[normalize] warning: register %q: S32 value %.4g out of range from words=%v; using low-word S16 fallback %.4g",
				reg.Name, scaled, words, alt)
			return alt, true
		}
	}

	log.Printf("[normalize] warning: register %q: scaled value %.4g (raw words=%v) outside range [%g, %g]",
		reg.Name, scaled, words, reg.Min, reg.Max)
	return 0, false
}
