package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sunspool/sunspool/internal/model"
)

// ErrNoData is returned when a device has no stored samples.
var ErrNoData = errors.New("store: no data for device")

// sampleColumns is the insert column order for the samples table.
const sampleColumns = "device_id, ts, pv_power_w, pv_daily_kwh, battery_power_w, battery_soc_pct, battery_temp_c, load_power_w, export_power_w, sample_count"

// InsertSamples inserts a batch idempotently and returns the number of
// rows actually written. Replayed (device_id, ts) pairs are skipped via
// ON CONFLICT DO NOTHING, so retried uploads never double-count.
func (s *Store) InsertSamples(ctx context.Context, samples []model.Sample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("INSERT INTO samples (" + sampleColumns + ") VALUES ")
	for i, smp := range samples {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		args = append(args,
			smp.DeviceID, smp.TS.UTC(), smp.PVPowerW, smp.PVDailyKWh,
			smp.BatteryPowerW, smp.BatterySOCPct, smp.BatteryTempC,
			smp.LoadPowerW, smp.ExportPowerW, smp.SampleCount,
		)
	}
	sb.WriteString(" ON CONFLICT (device_id, ts) DO NOTHING")

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("insert %d samples: %w", len(samples), err)
	}
	return int(tag.RowsAffected()), nil
}

// LatestSample returns the most recent sample for a device, or ErrNoData.
func (s *Store) LatestSample(ctx context.Context, deviceID string) (*model.Sample, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sampleColumns+` FROM samples WHERE device_id = $1 ORDER BY ts DESC LIMIT 1`,
		deviceID)

	var smp model.Sample
	err := row.Scan(
		&smp.DeviceID, &smp.TS, &smp.PVPowerW, &smp.PVDailyKWh,
		&smp.BatteryPowerW, &smp.BatterySOCPct, &smp.BatteryTempC,
		&smp.LoadPowerW, &smp.ExportPowerW, &smp.SampleCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("latest sample for %s: %w", deviceID, err)
	}
	return &smp, nil
}

// frameSpec routes a series frame to its rollup view, raw-aggregation
// bucket width, and window start expression.
type frameSpec struct {
	view string
	// bucket is the time_bucket width used when falling back to the raw
	// hypertable.
	bucket string
	// windowTrunc is the date_trunc field bounding the frame window;
	// empty means the full history.
	windowTrunc string
}

var frames = map[string]frameSpec{
	"day":   {view: "samples_hourly", bucket: "1 hour", windowTrunc: "day"},
	"month": {view: "samples_daily", bucket: "1 day", windowTrunc: "month"},
	"year":  {view: "samples_monthly", bucket: "1 month", windowTrunc: "year"},
	"all":   {view: "samples_monthly", bucket: "1 month"},
}

// Frames lists the accepted series frame names.
func Frames() []string {
	return []string{"day", "month", "year", "all"}
}

// ValidFrame reports whether frame is an accepted series frame name.
func ValidFrame(frame string) bool {
	_, ok := frames[frame]
	return ok
}

const bucketColumns = "bucket, avg_pv_power_w, max_pv_power_w, avg_battery_power_w, avg_battery_soc_pct, avg_load_power_w, avg_export_power_w, sample_count"

// QuerySeries returns rollup buckets for one device and frame. Frame
// boundaries are UTC calendar boundaries containing now. When the rollup
// view does not exist yet (SQLSTATE 42P01) the query falls back to
// bucketing the raw hypertable.
func (s *Store) QuerySeries(ctx context.Context, deviceID, frame string, now time.Time) ([]model.Bucket, error) {
	spec, ok := frames[frame]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q", frame)
	}

	where := "device_id = $1"
	args := []any{deviceID}
	if spec.windowTrunc != "" {
		where += fmt.Sprintf(" AND bucket >= date_trunc('%s', $2::timestamptz)", spec.windowTrunc)
		args = append(args, now.UTC())
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY bucket ASC`,
		bucketColumns, spec.view, where)
	buckets, err := s.series(ctx, query, args)
	if err == nil {
		return buckets, nil
	}
	if !isUndefinedRelation(err) {
		return nil, fmt.Errorf("series %s/%s: %w", deviceID, frame, err)
	}
	log.Printf("[store] warning: rollup view %s missing, aggregating raw samples", spec.view)

	rawWhere := "device_id = $1"
	if spec.windowTrunc != "" {
		rawWhere += fmt.Sprintf(" AND ts >= date_trunc('%s', $2::timestamptz)", spec.windowTrunc)
	}
	rawQuery := fmt.Sprintf(`SELECT
    time_bucket(INTERVAL '%s', ts) AS bucket,
    avg(pv_power_w), max(pv_power_w), avg(battery_power_w),
    avg(battery_soc_pct), avg(load_power_w), avg(export_power_w), sum(sample_count)
FROM samples WHERE %s GROUP BY bucket ORDER BY bucket ASC`, spec.bucket, rawWhere)

	buckets, err = s.series(ctx, rawQuery, args)
	if err != nil {
		return nil, fmt.Errorf("series %s/%s (raw fallback): %w", deviceID, frame, err)
	}
	return buckets, nil
}

// isUndefinedRelation reports whether err is PostgreSQL's "relation does
// not exist" error, which QuerySeries treats as a missing rollup view.
func isUndefinedRelation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func (s *Store) scanBuckets(ctx context.Context, query string, args []any) ([]model.Bucket, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := []model.Bucket{}
	for rows.Next() {
		var b model.Bucket
		if err := rows.Scan(
			&b.Bucket, &b.AvgPVPowerW, &b.MaxPVPowerW, &b.AvgBatteryPowerW,
			&b.AvgBatterySOCPct, &b.AvgLoadPowerW, &b.AvgExportPowerW, &b.SampleCount,
		); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}
