package api

import (
	"context"
	"time"

	"github.com/sunspool/sunspool/internal/model"
)

// SampleStore is the persistence surface the handlers depend on,
// implemented by the store package.
type SampleStore interface {
	InsertSamples(ctx context.Context, samples []model.Sample) (int, error)
	LatestSample(ctx context.Context, deviceID string) (*model.Sample, error)
	QuerySeries(ctx context.Context, deviceID, frame string, now time.Time) ([]model.Bucket, error)
}

// RealtimeCache is the best-effort cache surface, implemented by the
// cache package. Implementations absorb their own errors.
type RealtimeCache interface {
	GetRealtime(ctx context.Context, deviceID string) []byte
	SetRealtime(ctx context.Context, deviceID string, payload []byte)
	InvalidateRealtime(ctx context.Context, deviceID string)
}
