package api

import "net/http"

// HandleHealth returns the unauthenticated liveness endpoint. It touches
// neither the database nor the cache.
func HandleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
