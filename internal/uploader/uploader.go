// Package uploader drains the spool to the ingest API in batches. A
// batch is acknowledged (deleted from the spool) only after the server
// returned 200 with a well-formed body; anything less leaves the rows in
// place for the next attempt.
package uploader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sunspool/sunspool/internal/model"
	"github.com/sunspool/sunspool/internal/spool"
)

const baseBackoff = 1 * time.Second

// ErrStopped is returned when a backoff sleep is interrupted by shutdown.
var ErrStopped = errors.New("uploader: stopped")

// Config holds the upload target and batching parameters.
type Config struct {
	ServerBaseURL string
	DeviceToken   string
	BatchSize     int
	Timeout       time.Duration
	MaxBackoff    time.Duration
}

// Uploader posts spool batches to {base}/v1/ingest with bearer auth.
// It is used from a single goroutine (the daemon's upload loop).
type Uploader struct {
	ingestURL  string
	token      string
	batchSize  int
	maxBackoff time.Duration
	client     *http.Client
	spool      *spool.Spool
	stopCh     <-chan struct{}

	nextDelay time.Duration
	backoff   time.Duration
}

// ingestRequest is the wire envelope for one upload batch.
type ingestRequest struct {
	Samples []model.Sample `json:"samples"`
}

// ingestResponse is the server's acknowledgement body.
type ingestResponse struct {
	Inserted *int `json:"inserted"`
}

// New creates an Uploader draining sp. TLS verification stays at the
// default; the transport is never configured to skip it.
func New(cfg Config, sp *spool.Spool, stopCh <-chan struct{}) *Uploader {
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 300 * time.Second
	}
	return &Uploader{
		ingestURL:  cfg.ServerBaseURL + "/v1/ingest",
		token:      cfg.DeviceToken,
		batchSize:  cfg.BatchSize,
		maxBackoff: maxBackoff,
		client:     &http.Client{Timeout: cfg.Timeout},
		spool:      sp,
		stopCh:     stopCh,
		backoff:    baseBackoff,
	}
}

// UploadOnce attempts to upload one batch from the head of the spool.
// It returns the number of samples acknowledged; zero with a nil error
// means the spool was empty. On failure the backoff doubles; success
// resets it to 1 s.
func (u *Uploader) UploadOnce() (int, error) {
	if u.nextDelay > 0 {
		log.Printf("[uploader] warning: backing off %s before retry", u.nextDelay)
		select {
		case <-time.After(u.nextDelay):
		case <-u.stopCh:
			return 0, ErrStopped
		}
	}

	n, err := u.uploadBatch()
	if err != nil {
		u.nextDelay = u.backoff
		u.backoff = min(u.backoff*2, u.maxBackoff)
		return 0, err
	}
	u.nextDelay = 0
	u.backoff = baseBackoff
	return n, nil
}

func (u *Uploader) uploadBatch() (int, error) {
	batch, err := u.spool.Peek(u.batchSize)
	if err != nil {
		return 0, fmt.Errorf("peek spool: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	samples := make([]model.Sample, len(batch))
	ids := make([]int64, len(batch))
	for i, p := range batch {
		samples[i] = p.Sample
		ids[i] = p.ID
	}

	payload, err := json.Marshal(ingestRequest{Samples: samples})
	if err != nil {
		return 0, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, u.ingestURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", u.ingestURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return 0, fmt.Errorf("read ingest response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ingest returned %d: %s", resp.StatusCode, truncateBody(body))
	}

	// The batch is acknowledged only on a well-formed body. A 200 with
	// garbage could be a middlebox response; dropping the rows on its
	// word would lose data.
	var ack ingestResponse
	if err := json.Unmarshal(body, &ack); err != nil || ack.Inserted == nil {
		return 0, fmt.Errorf("ingest returned 200 with malformed body: %s", truncateBody(body))
	}

	if err := u.spool.Ack(ids); err != nil {
		return 0, fmt.Errorf("ack batch: %w", err)
	}
	if *ack.Inserted < len(batch) {
		log.Printf("[uploader] server inserted %d of %d samples (rest were duplicates)", *ack.Inserted, len(batch))
	}
	return len(batch), nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
