package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sunspool/sunspool/internal/model"
)

// ingestSample mirrors model.Sample with pointer fields so that absent
// and present-but-zero values are distinguishable during validation.
type ingestSample struct {
	DeviceID      *string    `json:"device_id"`
	TS            *time.Time `json:"ts"`
	PVPowerW      *float64   `json:"pv_power_w"`
	PVDailyKWh    *float64   `json:"pv_daily_kwh"`
	BatteryPowerW *float64   `json:"battery_power_w"`
	BatterySOCPct *float64   `json:"battery_soc_pct"`
	BatteryTempC  *float64   `json:"battery_temp_c"`
	LoadPowerW    *float64   `json:"load_power_w"`
	ExportPowerW  *float64   `json:"export_power_w"`
	SampleCount   *int       `json:"sample_count"`
}

type ingestRequest struct {
	Samples []ingestSample `json:"samples"`
}

// validate checks required fields and value bounds, returning a detail
// message naming the first violation.
func (s *ingestSample) validate(index int) (model.Sample, error) {
	missing := func(field string) (model.Sample, error) {
		return model.Sample{}, fmt.Errorf("Sample %d: missing required field '%s'.", index, field)
	}
	switch {
	case s.DeviceID == nil || *s.DeviceID == "":
		return missing("device_id")
	case s.TS == nil:
		return missing("ts")
	case s.PVPowerW == nil:
		return missing("pv_power_w")
	case s.BatteryPowerW == nil:
		return missing("battery_power_w")
	case s.BatterySOCPct == nil:
		return missing("battery_soc_pct")
	case s.LoadPowerW == nil:
		return missing("load_power_w")
	case s.ExportPowerW == nil:
		return missing("export_power_w")
	}
	if *s.PVPowerW < 0 {
		return model.Sample{}, fmt.Errorf("Sample %d: pv_power_w must be >= 0, got %g.", index, *s.PVPowerW)
	}
	if *s.BatterySOCPct < 0 || *s.BatterySOCPct > 100 {
		return model.Sample{}, fmt.Errorf("Sample %d: battery_soc_pct must be 0-100, got %g.", index, *s.BatterySOCPct)
	}
	sampleCount := 1
	if s.SampleCount != nil {
		if *s.SampleCount < 1 {
			return model.Sample{}, fmt.Errorf("Sample %d: sample_count must be >= 1, got %d.", index, *s.SampleCount)
		}
		sampleCount = *s.SampleCount
	}
	return model.Sample{
		DeviceID:      *s.DeviceID,
		TS:            s.TS.UTC(),
		PVPowerW:      *s.PVPowerW,
		PVDailyKWh:    s.PVDailyKWh,
		BatteryPowerW: *s.BatteryPowerW,
		BatterySOCPct: *s.BatterySOCPct,
		BatteryTempC:  s.BatteryTempC,
		LoadPowerW:    *s.LoadPowerW,
		ExportPowerW:  *s.ExportPowerW,
		SampleCount:   sampleCount,
	}, nil
}

// HandleIngest accepts sample batches from edge devices. Inserts are
// idempotent on (device_id, ts); replays answer 200 with a lower
// inserted count.
func HandleIngest(store SampleStore, cache RealtimeCache, maxSamples int, maxRequestBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Content-Length is checked before touching the body so oversized
		// uploads are refused without buffering them.
		if cl := r.Header.Get("Content-Length"); cl != "" {
			n, err := strconv.ParseInt(cl, 10, 64)
			if err != nil || n < 0 {
				WriteDetail(w, http.StatusBadRequest, "Malformed Content-Length header.")
				return
			}
			if n > maxRequestBytes {
				WriteDetail(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body exceeds maximum of %d bytes.", maxRequestBytes))
				return
			}
		}

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				WriteDetail(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("Request body exceeds maximum of %d bytes.", maxRequestBytes))
				return
			}
			WriteDetail(w, http.StatusUnprocessableEntity, "Malformed JSON body: "+err.Error())
			return
		}

		samples := make([]model.Sample, 0, len(req.Samples))
		for i, raw := range req.Samples {
			smp, err := raw.validate(i)
			if err != nil {
				WriteDetail(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			samples = append(samples, smp)
		}

		// Field validation answers first, so the count cap only rejects
		// batches that are well formed but too big.
		if len(samples) > maxSamples {
			WriteDetail(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Batch of %d samples exceeds maximum of %d.", len(samples), maxSamples))
			return
		}

		// The whole batch must belong to the authenticated device; a
		// single mismatch rejects it before any write.
		authDeviceID := DeviceID(r)
		for _, smp := range samples {
			if smp.DeviceID != authDeviceID {
				WriteDetail(w, http.StatusForbidden,
					fmt.Sprintf("Sample device_id '%s' does not match authenticated device '%s'.", smp.DeviceID, authDeviceID))
				return
			}
		}

		if len(samples) == 0 {
			WriteJSON(w, http.StatusOK, map[string]int{"inserted": 0})
			return
		}

		inserted, err := store.InsertSamples(r.Context(), samples)
		if err != nil {
			log.Printf("[api] warning: ingest for %s: %v", authDeviceID, err)
			WriteDetail(w, http.StatusInternalServerError, "Internal server error.")
			return
		}
		cache.InvalidateRealtime(r.Context(), authDeviceID)

		WriteJSON(w, http.StatusOK, map[string]int{"inserted": inserted})
	})
}
