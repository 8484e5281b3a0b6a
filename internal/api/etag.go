package api

import (
	"fmt"
	"net/http"

	"github.com/zeebo/xxh3"
)

// etagFor fingerprints a serialized payload for If-None-Match handling.
func etagFor(payload []byte) string {
	return fmt.Sprintf(`"%016x"`, xxh3.Hash(payload))
}

// writeJSONWithETag writes a pre-serialized JSON payload with an ETag,
// answering 304 when the client already holds the current version.
func writeJSONWithETag(w http.ResponseWriter, r *http.Request, payload []byte) {
	etag := etagFor(payload)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
