package store

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// refreshTimeout bounds one refresh_continuous_aggregate call.
const refreshTimeout = 5 * time.Minute

// Refresher periodically forces a refresh of the rollup views. The
// aggregate policies created at migration time do the routine work; this
// job is a backstop for databases where background workers are disabled
// or starved.
type Refresher struct {
	store *Store
	cron  *cron.Cron
}

// NewRefresher schedules refreshes per the cron expression. An empty
// schedule disables the job.
func NewRefresher(s *Store, schedule string) (*Refresher, error) {
	r := &Refresher{store: s, cron: cron.New()}
	if schedule == "" {
		return r, nil
	}
	if _, err := r.cron.AddFunc(schedule, r.refreshAll); err != nil {
		return nil, err
	}
	return r, nil
}

// Start launches the scheduler.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

// refreshAll refreshes every rollup view over its recent window. Errors
// are logged and swallowed; the next run tries again.
func (r *Refresher) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	views := []struct {
		name   string
		window string
	}{
		{"samples_hourly", "6 hours"},
		{"samples_daily", "7 days"},
		{"samples_monthly", "2 months"},
	}
	for _, v := range views {
		query := `CALL refresh_continuous_aggregate('` + v.name + `', now() - interval '` + v.window + `', now())`
		if _, err := r.store.pool.Exec(ctx, query); err != nil {
			log.Printf("[store] warning: refresh %s: %v", v.name, err)
		}
	}
}
