package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/sunspool/sunspool/internal/store"
)

// HandleRealtime serves the most recent sample for a device through a
// read-through cache.
func HandleRealtime(st SampleStore, cache RealtimeCache) http.Handler {
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

		if payload := cache.GetRealtime(r.Context(), deviceID); payload != nil {
			writeJSONWithETag(w, r, payload)
			return
		}

		sample, err := st.LatestSample(r.Context(), deviceID)
		if errors.Is(err, store.ErrNoData) {
			WriteDetail(w, http.StatusNotFound,
				fmt.Sprintf("No data found for device_id '%s'.", deviceID))
			return
		}
		if err != nil {
			log.Printf("[api] warning: realtime for %s: %v", deviceID, err)
			WriteDetail(w, http.StatusInternalServerError, "Internal server error.")
			return
		}

		payload, err := json.Marshal(sample)
		if err != nil {
			log.Printf("[api] warning: marshal realtime for %s: %v", deviceID, err)
			WriteDetail(w, http.StatusInternalServerError, "Internal server error.")
			return
		}
		cache.SetRealtime(r.Context(), deviceID, payload)
		writeJSONWithETag(w, r, payload)
	})
}
