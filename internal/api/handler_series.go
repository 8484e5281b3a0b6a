package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/maypok86/otter"

	"github.com/sunspool/sunspool/internal/model"
	"github.com/sunspool/sunspool/internal/store"
)

// seriesResponse is the series endpoint's envelope.
type seriesResponse struct {
	DeviceID string         `json:"device_id"`
	Frame    string         `json:"frame"`
	Series   []model.Bucket `json:"series"`
}

// seriesCacheEntries bounds the in-process series cache: one entry per
// (device, frame) pair, so even a large fleet stays small.
const seriesCacheEntries = 4096

// NewSeriesCache builds the in-process micro-cache for serialized series
// responses. Rollups only move on refresh, so a short TTL absorbs
// dashboard refresh storms without changing what clients can observe.
// A zero TTL disables caching.
func NewSeriesCache(ttl time.Duration) *otter.Cache[string, []byte] {
	if ttl <= 0 {
		return nil
	}
	cache, err := otter.MustBuilder[string, []byte](seriesCacheEntries).
		Cost(func(_ string, v []byte) uint32 { return uint32(len(v)) }).
		WithTTL(ttl).
		Build()
	if err != nil {
		panic("api: failed to create series cache: " + err.Error())
	}
	return &cache
}

// HandleSeries serves time-bucketed rollups for one device and frame.
func HandleSeries(st SampleStore, seriesCache *otter.Cache[string, []byte]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.URL.Query().Get("device_id")
		if deviceID == "" {
			WriteDetail(w, http.StatusUnprocessableEntity, "Missing required query parameter 'device_id'.")
			return
		}
		if deviceID != DeviceID(r) {
			WriteDetail(w, http.StatusForbidden,
				fmt.Sprintf("Token is not authorized for device_id '%s'.", deviceID))
			return
		}

		frame := r.URL.Query().Get("frame")
		if !store.ValidFrame(frame) {
			WriteDetail(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("Invalid frame '%s'. Allowed values: %s.", frame, strings.Join(store.Frames(), ", ")))
			return
		}

		cacheKey := deviceID + "|" + frame
		if seriesCache != nil {
			if payload, ok := seriesCache.Get(cacheKey); ok {
				writeJSONWithETag(w, r, payload)
				return
			}
		}

		buckets, err := st.QuerySeries(r.Context(), deviceID, frame, time.Now().UTC())
		if err != nil {
			log.Printf("[api] warning: series for %s/%s: %v", deviceID, frame, err)
			WriteDetail(w, http.StatusInternalServerError, "Internal server error.")
			return
		}

		payload, err := json.Marshal(seriesResponse{DeviceID: deviceID, Frame: frame, Series: buckets})
		if err != nil {
			log.Printf("[api] warning: marshal series for %s/%s: %v", deviceID, frame, err)
			WriteDetail(w, http.StatusInternalServerError, "Internal server error.")
			return
		}
		if seriesCache != nil {
			seriesCache.Set(cacheKey, payload)
		}
		writeJSONWithETag(w, r, payload)
	})
}
