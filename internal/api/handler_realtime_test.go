package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sunspool/sunspool/internal/model"
)

func storedSample(deviceID string, ts time.Time) model.Sample {
	daily := 12.3
	return model.Sample{
		DeviceID:      deviceID,
		TS:            ts,
		PVPowerW:      3450,
		PVDailyKWh:    &daily,
		BatteryPowerW: -1500,
		BatterySOCPct: 87.4,
		LoadPowerW:    2200,
		ExportPowerW:  -800,
		SampleCount:   1,
	}
}

func TestRealtimeReturnsLatest(t *testing.T) {
	st := newFakeStore()
	older := storedSample("inv-1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	newer := storedSample("inv-1", time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC))
	st.samples["inv-1"] = []model.Sample{older, newer}
	cache := newFakeCache()
	h := newTestServer(t, st, cache)

	rec := doRequest(t, h, http.MethodGet, "/v1/realtime?device_id=inv-1", "tok-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	var got model.Sample
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !got.TS.Equal(newer.TS) {
		t.Errorf("ts = %s, want the newer sample %s", got.TS, newer.TS)
	}
	if cache.entries["inv-1"] == nil {
		t.Error("response was not written to the cache")
	}
}

func TestRealtimeCacheHitSkipsStore(t *testing.T) {
	st := newFakeStore()
	st.err = errors.New("database down")
	cache := newFakeCache()
	cache.entries["inv-1"] = []byte(`{"device_id":"inv-1","pv_power_w":1}`)
	h := newTestServer(t, st, cache)

	rec := doRequest(t, h, http.MethodGet, "/v1/realtime?device_id=inv-1", "tok-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 on cache hit even with a dead database", rec.Code)
	}
	if rec.Body.String() != `{"device_id":"inv-1","pv_power_w":1}` {
		t.Errorf("body = %q, want the cached payload verbatim", rec.Body.String())
	}
}

func TestRealtimeCacheOutageStillServes(t *testing.T) {
	st := newFakeStore()
	st.samples["inv-1"] = []model.Sample{storedSample("inv-1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))}
	cache := newFakeCache()
	cache.broken = true
	h := newTestServer(t, st, cache)

	rec := doRequest(t, h, http.MethodGet, "/v1/realtime?device_id=inv-1", "tok-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a broken cache", rec.Code)
	}
}

func TestRealtimeNoData(t *testing.T) {
	h := newTestServer(t, newFakeStore(), newFakeCache())

	rec := doRequest(t, h, http.MethodGet, "/v1/realtime?device_id=inv-1", "tok-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if detail := decodeDetail(t, rec); detail != "No data found for device_id 'inv-1'." {
		t.Errorf("detail = %q", detail)
	}
}

func TestRealtimeDeviceMismatch(t *testing.T) {
	h := newTestServer(t, newFakeStore(), newFakeCache())

	rec := doRequest(t, h, http.MethodGet, "/v1/realtime?device_id=inv-2", "tok-1", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRealtimeMissingDeviceID(t *testing.T) {
	h := newTestServer(t, newFakeStore(), newFakeCache())

	rec := doRequest(t, h, http.MethodGet, "/v1/realtime", "tok-1", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestRealtimeETagRoundTrip(t *testing.T) {
	st := newFakeStore()
	st.samples["inv-1"] = []model.Sample{storedSample("inv-1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))}
	h := newTestServer(t, st, newFakeCache())

	first := doRequest(t, h, http.MethodGet, "/v1/realtime?device_id=inv-1", "tok-1", "")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag on realtime response")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/realtime?device_id=inv-1", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("status with matching If-None-Match = %d, want 304", rec.Code)
	}
}
