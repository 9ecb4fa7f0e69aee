package storage

import (
	"time"
)

// RecordKind separates run and install history
type RecordKind string

const (
	KindRun     RecordKind = "run"
	KindInstall RecordKind = "install"
)

// Outcome values stored on a record
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is one bootstrap invocation
type Record struct {
	ID          string     `json:"id"`
	Kind        RecordKind `json:"kind"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Outcome     string     `json:"outcome"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	Version     string     `json:"version,omitempty"`
	DownloadURL string     `json:"download_url,omitempty"`
	Roles       string     `json:"roles,omitempty"`
	InstanceID  string     `json:"instance_id,omitempty"`
	ConfigPath  string     `json:"config_path,omitempty"`
	Changed     bool       `json:"changed"`
}

// Store defines the interface for the local bootstrap ledger
type Store interface {
	// CreateRecord stores r, assigning an ID when empty
	CreateRecord(r *Record) error
	GetRecord(kind RecordKind, id string) (*Record, error)
	ListRecords(kind RecordKind) ([]*Record, error)
	// LatestRecord returns the most recent record of kind, or nil
	LatestRecord(kind RecordKind) (*Record, error)

	Close() error
}
