// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package deadletter archives permanently failed operations for diagnostics.
// Records are never replayed into the retry queue.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/clubsync/internal/queue"
	bolt "go.etcd.io/bbolt"
)

var bucketFailed = []byte("b_failed_operations")

// Record is one archived operation.
type Record struct {
	ID         string        `json:"id"`
	Kind       queue.Kind    `json:"kind"`
	Payload    queue.Payload `json:"payload"`
	RetryCount int           `json:"retry_count"`
	LastError  string        `json:"last_error"`
	CreatedAt  time.Time     `json:"created_at"`
	FailedAt   time.Time     `json:"failed_at"`
}

// FromFailure converts an exhausted queue operation into a record.
func FromFailure(f queue.Failure, failedAt time.Time) Record {
	op := f.Operation
	last := op.LastError
	if f.Cause != nil {
		last = f.Cause.Error()
	}
	return Record{
		ID:         op.ID.String(),
		Kind:       op.Kind,
		Payload:    op.Payload,
		RetryCount: op.RetryCount,
		LastError:  last,
		CreatedAt:  op.CreatedAt,
		FailedAt:   failedAt.UTC(),
	}
}

// BoltStore keeps records in a bbolt file keyed by failure time.
type BoltStore struct {
	db *bolt.DB
}

// Open opens (or creates) the archive at path. The parent directory must exist.
func Open(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("dead-letter path required")
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("dead-letter directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFailed)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func recordKey(r Record) []byte {
	return []byte(r.FailedAt.UTC().Format("20060102T150405.000000000Z") + "/" + r.ID)
}

// Archive stores r. Archiving the same ID at the same time twice overwrites.
func (s *BoltStore) Archive(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).Put(recordKey(r), val)
	})
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *BoltStore) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFailed).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// Count returns the number of archived records.
func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFailed).Stats().KeyN
		return nil
	})
	return n, err
}
