package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// DBFileName is the ledger file inside the state directory
const DBFileName = "bootstrap.db"

// ErrNoLedger is returned by OpenReadOnly when no ledger was ever written
var ErrNoLedger = errors.New("no bootstrap ledger")

var (
	// Bucket names
	bucketRuns     = []byte("runs")
	bucketInstalls = []byte("installs")
)

func bucketFor(kind RecordKind) ([]byte, error) {
	switch kind {
	case KindRun:
		return bucketRuns, nil
	case KindInstall:
		return bucketInstalls, nil
	default:
		return nil, fmt.Errorf("unknown record kind: %q", kind)
	}
}

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the ledger under stateDir. A second
// process holding the file makes this fail after a short wait.
func NewBoltStore(stateDir string) (*BoltStore, error) {
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	dbPath := filepath.Join(stateDir, DBFileName)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketInstalls} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// OpenReadOnly opens an existing ledger for inspection. It never creates
// the state directory or the database file.
func OpenReadOnly(stateDir string) (*BoltStore, error) {
	dbPath := filepath.Join(stateDir, DBFileName)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoLedger, stateDir)
		}
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// CreateRecord upserts r. New records get a time-ordered UUID so the
// bucket iterates chronologically.
func (s *BoltStore) CreateRecord(r *Record) error {
	bucket, err := bucketFor(r.Kind)
	if err != nil {
		return err
	}
	if r.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate record id: %w", err)
		}
		r.ID = id.String()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(r.ID), data)
	})
}

// GetRecord returns the record of kind with id
func (s *BoltStore) GetRecord(kind RecordKind, id string) (*Record, error) {
	bucket, err := bucketFor(kind)
	if err != nil {
		return nil, err
	}

	var record Record
	err = s.db.View(func(tx *bolt.Tx) error {
		var data []byte
		if b := tx.Bucket(bucket); b != nil {
			data = b.Get([]byte(id))
		}
		if data == nil {
			return fmt.Errorf("%s record not found: %s", kind, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecords returns every record of kind, oldest first
func (s *BoltStore) ListRecords(kind RecordKind) ([]*Record, error) {
	bucket, err := bucketFor(kind)
	if err != nil {
		return nil, err
	}

	var records []*Record
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	return records, err
}

// LatestRecord returns the newest record of kind, or nil when there is none
func (s *BoltStore) LatestRecord(kind RecordKind) (*Record, error) {
	bucket, err := bucketFor(kind)
	if err != nil {
		return nil, err
	}

	var record *Record
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		_, v := b.Cursor().Last()
		if v == nil {
			return nil
		}
		record = &Record{}
		return json.Unmarshal(v, record)
	})
	return record, err
}
