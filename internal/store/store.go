// Package store is the Time-Series Store (spec.md §4.2): a single-writer,
// many-reader embedded store of per-workload samples, predictions,
// optimal-target records, and anomalies, with 30-day retention.
//
// bbolt's own transaction model — one read-write transaction at a time,
// unlimited concurrent read-only transactions each seeing a consistent
// snapshot — is exactly the contract spec.md §4.2 demands, so the store
// is a thin, domain-typed layer over a single *bbolt.DB.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/smart-autoscaler/smart-hpa-controller/internal/errs"
	"github.com/smart-autoscaler/smart-hpa-controller/internal/types"
)

var (
	bucketSamples        = []byte("samples")
	bucketPredictions    = []byte("predictions")
	bucketOptimalTargets = []byte("optimal_targets")
	bucketAnomalies      = []byte("anomalies")
)

// Retention is the sample lifetime spec.md §3 mandates.
const Retention = 30 * 24 * time.Hour

// CompactionWatermark is the deleted-row count that triggers space
// reclamation (spec.md §4.2).
const CompactionWatermark = 1000

// Store is the TSS handle. It is one of the three justified process
// globals (spec.md §9), constructed once and passed by reference.
type Store struct {
	path string
	db   *bolt.DB
	mu   sync.Mutex // serializes the conceptual "single writer"; bbolt enforces this too, this mirrors it for clarity at call sites
	deletedSinceCompact int
}

// Open opens or creates the TSS file at path. If the file exists but
// fails to open cleanly, the store self-heals by recreating itself
// empty: history is sacrificed to availability (spec.md §4.2, §7
// IntegrityViolation).
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		if reopenErr := recreate(path); reopenErr != nil {
			return nil, errs.Wrap(errs.IntegrityViolation, reopenErr)
		}
		db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, errs.Wrap(errs.IntegrityViolation, err)
		}
	}
	s := &Store{path: path, db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		if reopenErr := recreate(path); reopenErr != nil {
			return nil, errs.Wrap(errs.IntegrityViolation, reopenErr)
		}
		db, err = bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, errs.Wrap(errs.IntegrityViolation, err)
		}
		s.db = db
		if err := s.ensureBuckets(); err != nil {
			return nil, errs.Wrap(errs.IntegrityViolation, err)
		}
	}
	return s, nil
}

func recreate(path string) error {
	_ = os.Remove(path)
	return nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSamples, bucketPredictions, bucketOptimalTargets, bucketAnomalies} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// sampleKey rounds the timestamp to the tick granularity (1s resolution
// is enough since ticks are >=10s apart) so repeated appends for the
// same (workload, tick) are idempotent.
func sampleKey(id types.WorkloadID, ts time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(ts.Unix()))
	return append([]byte(id.String()+"|"), buf...)
}

// workloadPrefix returns the key prefix common to all of a workload's
// rows in a time-keyed bucket, for prefix-scanned range reads.
func workloadPrefix(id types.WorkloadID) []byte {
	return []byte(id.String() + "|")
}

// AppendSample writes a Sample, idempotent per (workload, tick).
func (s *Store) AppendSample(sample types.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(sample)
	if err != nil {
		return errs.Wrap(errs.InternalAssertion, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSamples)
		key := sampleKey(sample.Workload, sample.Timestamp)
		return bucket.Put(key, b)
	})
}

// ReadRange returns samples for workload with timestamp in [from,to],
// bounded: the scan stays inside one read-only transaction, seeks to the
// first row at or after from, and stops at the first row past to.
func (s *Store) ReadRange(id types.WorkloadID, from, to time.Time) ([]types.Sample, error) {
	var out []types.Sample
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSamples).Cursor()
		prefix := workloadPrefix(id)
		for k, v := c.Seek(sampleKey(id, from)); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var sample types.Sample
			if err := json.Unmarshal(v, &sample); err != nil {
				continue
			}
			if sample.Timestamp.After(to) {
				break
			}
			if !sample.Timestamp.Before(from) {
				out = append(out, sample)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.IntegrityViolation, err)
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// AppendPrediction stores an open prediction record, keyed by
// workload|issuetime|horizon so it can be read back and closed later.
func (s *Store) AppendPrediction(p types.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(p)
	if err != nil {
		return errs.Wrap(errs.InternalAssertion, err)
	}
	key := predictionKey(p)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPredictions).Put(key, b)
	})
}

func predictionKey(p types.Prediction) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(p.IssueTime.UnixNano()))
	return []byte(fmt.Sprintf("%s|%s|%s", p.Workload.String(), string(buf), p.Horizon))
}

// OpenPredictionsDue returns every unclosed prediction whose target time
// has elapsed as of now, for the Validator's closure pass.
func (s *Store) OpenPredictionsDue(now time.Time) ([]types.Prediction, error) {
	var due []types.Prediction
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPredictions).ForEach(func(k, v []byte) error {
			var p types.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				return nil
			}
			if !p.Closed && !p.TargetTime().After(now) {
				due = append(due, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(errs.IntegrityViolation, err)
	}
	return due, nil
}

// ClosePrediction rewrites a prediction record marked closed with its
// realized value and accuracy flag.
func (s *Store) ClosePrediction(p types.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Closed = true
	b, err := json.Marshal(p)
	if err != nil {
		return errs.Wrap(errs.InternalAssertion, err)
	}
	key := predictionKey(p)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPredictions).Put(key, b)
	})
}

// PutOptimalTarget upserts a learned HPA target record.
func (s *Store) PutOptimalTarget(t types.OptimalTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(t)
	if err != nil {
		return errs.Wrap(errs.InternalAssertion, err)
	}
	key := []byte(fmt.Sprintf("%s|%d", t.Workload.String(), t.HourOfDay))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOptimalTargets).Put(key, b)
	})
}

// GetOptimalTarget reads the (possibly hour-of-day stratified) learned
// target for a workload; hourOfDay -1 means unstratified.
func (s *Store) GetOptimalTarget(id types.WorkloadID, hourOfDay int) (types.OptimalTarget, bool, error) {
	var out types.OptimalTarget
	found := false
	key := []byte(fmt.Sprintf("%s|%d", id.String(), hourOfDay))
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketOptimalTargets).Get(key)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &out)
	})
	if err != nil {
		return types.OptimalTarget{}, false, errs.Wrap(errs.IntegrityViolation, err)
	}
	return out, found, nil
}

// ClosedPredictions returns every closed prediction for a workload,
// oldest first (predictionKey orders by issue time within a workload's
// prefix), for the Validator's rolling accuracy rollup.
func (s *Store) ClosedPredictions(id types.WorkloadID) ([]types.Prediction, error) {
	var out []types.Prediction
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPredictions).Cursor()
		prefix := []byte(id.String() + "|")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var p types.Prediction
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			if p.Closed {
				out = append(out, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.IntegrityViolation, err)
	}
	return out, nil
}

// RecordAnomaly appends a high-severity anomaly event, e.g. IntegrityViolation notices.
func (s *Store) RecordAnomaly(workload types.WorkloadID, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))
	key := append([]byte(workload.String()+"|"), buf...)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAnomalies).Put(key, []byte(reason))
	})
}

// Compact deletes samples older than Retention. Freed pages go to bbolt's
// freelist for reuse on commit; once the deletion watermark is reached the
// store is also synced via reclaim.
func (s *Store) Compact(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-Retention)
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSamples)
		c := b.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sample types.Sample
			if err := json.Unmarshal(v, &sample); err != nil {
				continue
			}
			if sample.Timestamp.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				toDelete = append(toDelete, key)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(toDelete)
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(errs.IntegrityViolation, err)
	}
	s.deletedSinceCompact += deleted
	if s.deletedSinceCompact >= CompactionWatermark {
		if cerr := s.reclaim(); cerr != nil {
			return deleted, cerr
		}
		s.deletedSinceCompact = 0
	}
	return deleted, nil
}

// reclaim forces a sync of the database file. bbolt reuses freed pages
// automatically on commit; the file is not shrunk and no pages are
// returned to the OS.
func (s *Store) reclaim() error {
	return s.db.Sync()
}
