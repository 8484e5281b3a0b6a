// Package model defines the domain records shared by the edge daemon and
// the API server.
package model

import "time"

// Sample is one normalized inverter reading at a specific instant.
// All values are in engineering units after scaling and type conversion.
// device_id and ts are injected by the caller, never derived from
// register data. Power sign conventions: battery positive = charging,
// export positive = exporting to grid.
type Sample struct {
	DeviceID      string    `json:"device_id"`
	TS            time.Time `json:"ts"`
	PVPowerW      float64   `json:"pv_power_w"`
	PVDailyKWh    *float64  `json:"pv_daily_kwh"`
	BatteryPowerW float64   `json:"battery_power_w"`
	BatterySOCPct float64   `json:"battery_soc_pct"`
	BatteryTempC  *float64  `json:"battery_temp_c"`
	LoadPowerW    float64   `json:"load_power_w"`
	ExportPowerW  float64   `json:"export_power_w"`
	SampleCount   int       `json:"sample_count"`
}

// Bucket is one time-bucketed rollup row as served by the series endpoint.
type Bucket struct {
	Bucket           time.Time `json:"bucket"`
	AvgPVPowerW      float64   `json:"avg_pv_power_w"`
	MaxPVPowerW      float64   `json:"max_pv_power_w"`
	AvgBatteryPowerW float64   `json:"avg_battery_power_w"`
	AvgBatterySOCPct float64   `json:"avg_battery_soc_pct"`
	AvgLoadPowerW    float64   `json:"avg_load_power_w"`
	AvgExportPowerW  float64   `json:"avg_export_power_w"`
	SampleCount      int64     `json:"sample_count"`
}
