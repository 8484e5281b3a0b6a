// Package daemon wires the edge pipeline together: a poll loop that
// reads the inverter and enqueues normalized samples, and an upload loop
// that drains the spool to the server. The two loops share only the
// spool and the health writer, so a dead inverter never blocks uploads
// and a dead server never blocks polling.
package daemon

import (
	"log"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sunspool/sunspool/internal/config"
	"github.com/sunspool/sunspool/internal/health"
	"github.com/sunspool/sunspool/internal/normalize"
	"github.com/sunspool/sunspool/internal/poller"
	"github.com/sunspool/sunspool/internal/registers"
	"github.com/sunspool/sunspool/internal/spool"
	"github.com/sunspool/sunspool/internal/uploader"
)

// Daemon owns the poll and upload goroutines.
type Daemon struct {
	cfg      *config.EdgeConfig
	regmap   *registers.Map
	poller   *poller.Poller
	uploader *uploader.Uploader
	spool    *spool.Spool
	health   *health.Writer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Lifetime counters, logged at shutdown. Written from both loops.
	pollOK     *xsync.Counter
	pollFail   *xsync.Counter
	uploaded   *xsync.Counter
	uploadFail *xsync.Counter

	pollCycles int // poll loop only, drives raw snapshot cadence
}

// New assembles a Daemon from an already validated config.
func New(cfg *config.EdgeConfig, regmap *registers.Map, sp *spool.Spool, hw *health.Writer) *Daemon {
	stopCh := make(chan struct{})
	return &Daemon{
		cfg:    cfg,
		regmap: regmap,
		poller: poller.New(poller.Config{
			Host:            cfg.InverterHost,
			Port:            cfg.InverterPort,
			SlaveID:         cfg.SlaveID,
			InterGroupDelay: cfg.InterGroupDelay,
			MaxBackoff:      cfg.MaxPollBackoff,
		}, regmap, stopCh),
		uploader: uploader.New(uploader.Config{
			ServerBaseURL: cfg.ServerBaseURL,
			DeviceToken:   cfg.DeviceToken,
			BatchSize:     cfg.BatchSize,
			Timeout:       cfg.UploadTimeout,
			MaxBackoff:    cfg.MaxUploadBackoff,
		}, sp, stopCh),
		spool:      sp,
		health:     hw,
		stopCh:     stopCh,
		pollOK:     xsync.NewCounter(),
		pollFail:   xsync.NewCounter(),
		uploaded:   xsync.NewCounter(),
		uploadFail: xsync.NewCounter(),
	}
}

// Start launches the poll and upload loops.
func (d *Daemon) Start() {
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.pollLoop()
	}()
	go func() {
		defer d.wg.Done()
		d.uploadLoop()
	}()
}

// Stop signals both loops, waits for them to finish, then makes one last
// upload attempt to drain whatever the final poll cycles enqueued.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()

	if n, err := d.drain(); err != nil {
		log.Printf("[daemon] warning: final drain: %v", err)
	} else if n > 0 {
		log.Printf("[daemon] final drain uploaded %d samples", n)
	}

	log.Printf("[daemon] shutdown: polls ok=%d failed=%d, samples uploaded=%d, upload attempts failed=%d",
		d.pollOK.Value(), d.pollFail.Value(), d.uploaded.Value(), d.uploadFail.Value())
}

func (d *Daemon) pollLoop() {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.pollCycle()
	for {
		select {
		case <-ticker.C:
			d.pollCycle()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Daemon) pollCycle() {
	ts := time.Now().UTC()
	raw, err := d.poller.Poll()
	if err != nil {
		if err != poller.ErrStopped {
			d.pollFail.Inc()
			log.Printf("[daemon] warning: poll: %v", err)
		}
		return
	}
	d.pollOK.Inc()

	d.pollCycles++
	if n := d.cfg.RawSnapshotEveryN; n > 0 && d.pollCycles%n == 0 {
		log.Printf("[daemon] raw snapshot (cycle %d): %v", d.pollCycles, raw)
	}

	sample := normalize.Sample(d.regmap, raw, d.cfg.DeviceID, ts)
	if sample == nil {
		d.pollFail.Inc()
		return
	}
	if err := d.spool.Enqueue(sample); err != nil {
		log.Printf("[daemon] warning: enqueue: %v", err)
		return
	}
	count, err := d.spool.Count()
	if err != nil {
		log.Printf("[daemon] warning: spool count: %v", err)
		count = -1
	}
	if err := d.health.RecordPoll(ts, count); err != nil {
		log.Printf("[daemon] warning: health write: %v", err)
	}
}

func (d *Daemon) uploadLoop() {
	ticker := time.NewTicker(d.cfg.UploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.uploadCycle()
		case <-d.stopCh:
			return
		}
	}
}

func (d *Daemon) uploadCycle() {
	n, err := d.uploader.UploadOnce()
	if err != nil {
		if err != uploader.ErrStopped {
			d.uploadFail.Inc()
			log.Printf("[daemon] warning: upload: %v", err)
		}
		return
	}
	if n == 0 {
		return
	}
	d.uploaded.Add(int64(n))

	count, err := d.spool.Count()
	if err != nil {
		log.Printf("[daemon] warning: spool count: %v", err)
		count = -1
	}
	if err := d.health.RecordUpload(time.Now().UTC(), count); err != nil {
		log.Printf("[daemon] warning: health write: %v", err)
	}
}

// drain makes a single final upload attempt after both loops exit, so
// shutdown time is bounded by one HTTP timeout rather than the backlog
// size. Whatever remains stays spooled for the next run.
func (d *Daemon) drain() (int, error) {
	n, err := d.uploader.UploadOnce()
	if err == uploader.ErrStopped {
		// A pending backoff means the server was just unreachable;
		// the spool keeps the samples for the next run.
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	d.uploaded.Add(int64(n))
	return n, nil
}
