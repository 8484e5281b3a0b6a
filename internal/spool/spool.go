// Package spool implements the edge daemon's durable FIFO queue on
// SQLite. Samples are enqueued as marshalled JSON and survive process
// restarts and power loss; rows are deleted only after the server has
// acknowledged them.
package spool

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/sunspool/sunspool/internal/model"
)

// createDDL is the spool schema. Insertion order is the upload order.
const createDDL = `
CREATE TABLE IF NOT EXISTS spool (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	sample_json   TEXT    NOT NULL,
	enqueued_at_ns INTEGER NOT NULL
);
`

// Spool is a durable FIFO of samples awaiting upload. Safe for use from
// the poll and upload goroutines concurrently; SQLite serialises access
// through the single connection.
type Spool struct {
	db *sql.DB
}

// Pending is a spooled sample together with its queue id, used to
// acknowledge the exact rows that were uploaded.
type Pending struct {
	ID     int64
	Sample model.Sample
}

// Open opens (or creates) the spool database at path with WAL journal
// mode, synchronous=NORMAL and busy_timeout=5000, and applies the schema.
func Open(path string) (*Spool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open spool %s: %w", path, err)
	}

	// Single-writer: only one connection needed.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	if _, err := db.Exec(createDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init spool schema %s: %w", path, err)
	}
	return &Spool{db: db}, nil
}

// Close closes the underlying database.
func (s *Spool) Close() error {
	return s.db.Close()
}

// Enqueue appends one sample to the tail of the queue.
func (s *Spool) Enqueue(sample *model.Sample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO spool (sample_json, enqueued_at_ns) VALUES (?, ?)`,
		string(payload), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("enqueue sample: %w", err)
	}
	return nil
}

// Peek returns up to limit samples from the head of the queue without
// removing them.
func (s *Spool) Peek(limit int) ([]Pending, error) {
	rows, err := s.db.Query(
		`SELECT id, sample_json FROM spool ORDER BY id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("peek spool: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var (
			id      int64
			payload string
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan spool row: %w", err)
		}
		var sample model.Sample
		if err := json.Unmarshal([]byte(payload), &sample); err != nil {
			return nil, fmt.Errorf("unmarshal spool row %d: %w", id, err)
		}
		out = append(out, Pending{ID: id, Sample: sample})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spool: %w", err)
	}
	return out, nil
}

// Ack deletes the given rows in a single transaction. Called only after
// the server confirmed receipt of the corresponding batch.
func (s *Spool) Ack(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin ack: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := tx.Exec(`DELETE FROM spool WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("ack %d rows: %w", len(ids), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ack: %w", err)
	}
	return nil
}

// Count returns the number of samples waiting in the queue.
func (s *Spool) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM spool`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count spool: %w", err)
	}
	return n, nil
}
