package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// ErrJobNotFound is returned when a job is not found in the state store.
	ErrJobNotFound = errors.New("job not found")
)

var (
	jobsBucket = []byte("jobs")
)

// JobState represents the current state of a transcode job.
type JobState string

const (
	StatePending    JobState = "Pending"
	StateInProgress JobState = "InProgress"
	StateCompleted  JobState = "Completed"
	StateFailed     JobState = "Failed"
)

// JobRecord is the stored history of one job. Records are keyed by job ID,
// so a later run for the same source overwrites the earlier record.
type JobRecord struct {
	ID              string   `json:"id"`
	RunID           string   `json:"run_id"`
	Batch           string   `json:"batch,omitempty"`
	SourcePath      string   `json:"source_path"`
	DestinationPath string   `json:"destination_path"`
	State           JobState `json:"state"`
	Worker          int      `json:"worker"`
	Variant         string   `json:"variant,omitempty"`
	ExitStatus      string   `json:"exit_status,omitempty"`
	SourceBytes     int64    `json:"source_bytes"`
	OutputBytes     int64    `json:"output_bytes"`
	ArchivedBytes   int64    `json:"archived_bytes"`
	ArchiveChecksum string   `json:"archive_checksum,omitempty"`
	Error           string   `json:"error,omitempty"`

	QueuedAt   time.Time `json:"queued_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Store define the interface for tracking job status.
type Store interface {
	SaveJob(job *JobRecord) error
	GetJob(id string) (*JobRecord, error)
	ListJobs() ([]*JobRecord, error)
	Close() error
}

// BoltStore is a Store implementation backed by bbolt.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore creates a new BoltStore at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create jobs bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// SaveJob saves a job to the state store.
func (s *BoltStore) SaveJob(job *JobRecord) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(jobsBucket).Put([]byte(job.ID), data); err != nil {
			return fmt.Errorf("failed to put job: %w", err)
		}
		return nil
	})
}

// GetJob retrieves a job from the state store.
func (s *BoltStore) GetJob(id string) (*JobRecord, error) {
	var job JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(jobsBucket).Get([]byte(id))
		if data == nil {
			return ErrJobNotFound
		}
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns all stored records, most recently queued first.
func (s *BoltStore) ListJobs() ([]*JobRecord, error) {
	var jobs []*JobRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(jobsBucket).ForEach(func(k, v []byte) error {
			var job JobRecord
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		if !jobs[i].QueuedAt.Equal(jobs[j].QueuedAt) {
			return jobs[i].QueuedAt.After(jobs[j].QueuedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs, nil
}

// Close closes the underlying store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
