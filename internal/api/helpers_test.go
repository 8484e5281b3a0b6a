package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sunspool/sunspool/internal/auth"
	"github.com/sunspool/sunspool/internal/config"
	"github.com/sunspool/sunspool/internal/model"
	"github.com/sunspool/sunspool/internal/store"
)

// fakeStore implements SampleStore in memory.
type fakeStore struct {
	samples map[string][]model.Sample // by device id
	series  []model.Bucket
	err     error

	insertCalls int
	seriesCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{samples: make(map[string][]model.Sample)}
}

func (f *fakeStore) InsertSamples(_ context.Context, samples []model.Sample) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.insertCalls++
	inserted := 0
	for _, smp := range samples {
		dup := false
		for _, existing := range f.samples[smp.DeviceID] {
			if existing.TS.Equal(smp.TS) {
				dup = true
				break
			}
		}
		if !dup {
			f.samples[smp.DeviceID] = append(f.samples[smp.DeviceID], smp)
			inserted++
		}
	}
	return inserted, nil
}

func (f *fakeStore) LatestSample(_ context.Context, deviceID string) (*model.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows := f.samples[deviceID]
	if len(rows) == 0 {
		return nil, store.ErrNoData
	}
	latest := rows[0]
	for _, smp := range rows[1:] {
		if smp.TS.After(latest.TS) {
			latest = smp
		}
	}
	return &latest, nil
}

func (f *fakeStore) QuerySeries(_ context.Context, _, _ string, _ time.Time) ([]model.Bucket, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.seriesCalls++
	if f.series == nil {
		return []model.Bucket{}, nil
	}
	return f.series, nil
}

// fakeCache implements RealtimeCache in memory. With broken set it drops
// every operation, mimicking an unreachable Redis.
type fakeCache struct {
	broken  bool
	entries map[string][]byte

	invalidations []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) GetRealtime(_ context.Context, deviceID string) []byte {
	if f.broken {
		return nil
	}
	return f.entries[deviceID]
}

func (f *fakeCache) SetRealtime(_ context.Context, deviceID string, payload []byte) {
	if f.broken {
		return
	}
	f.entries[deviceID] = payload
}

func (f *fakeCache) InvalidateRealtime(_ context.Context, deviceID string) {
	f.invalidations = append(f.invalidations, deviceID)
	if f.broken {
		return
	}
	delete(f.entries, deviceID)
}

func testConfig() *config.ServerConfig {
	return &config.ServerConfig{
		ListenAddress:        "127.0.0.1",
		Port:                 8080,
		MaxSamplesPerRequest: 5,
		MaxRequestBytes:      2048,
		CacheTTL:             5 * time.Second,
		SeriesCacheTTL:       30 * time.Second,
	}
}

func newTestServer(t *testing.T, st *fakeStore, cache *fakeCache) http.Handler {
	t.Helper()
	registry, err := auth.ParseDeviceTokens("tok-1:inv-1,tok-2:inv-2")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	return NewServer(testConfig(), registry, st, cache).Handler()
}

// AuthMiddlewareForTest wraps a single handler with the standard test
// token registry, for tests that bypass the full server wiring.
func AuthMiddlewareForTest(t *testing.T, h http.Handler) http.Handler {
	t.Helper()
	registry, err := auth.ParseDeviceTokens("tok-1:inv-1,tok-2:inv-2")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	return AuthMiddleware(registry, h)
}

func doRequest(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp DetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response body is not a detail envelope: %v (body %q)", err, rec.Body.String())
	}
	return resp.Detail
}

func sampleJSON(deviceID string, ts string) string {
	return `{"device_id":"` + deviceID + `","ts":"` + ts + `","pv_power_w":3450,"pv_daily_kwh":12.3,` +
		`"battery_power_w":-1500,"battery_soc_pct":87.4,"battery_temp_c":21.5,` +
		`"load_power_w":2200,"export_power_w":-800,"sample_count":1}`
}
