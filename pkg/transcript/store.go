package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketTranscripts = "transcripts"

// ErrDuplicateID is returned when saving a transcript whose id already
// exists. Records are immutable once written.
var ErrDuplicateID = fmt.Errorf("transcript id already exists")

// Store persists transcript records as JSON documents in BoltDB,
// keyed by transcript id.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the transcript database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketTranscripts))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create transcripts bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Save writes a new transcript record. Saving an id that already exists
// fails with ErrDuplicateID.
func (s *Store) Save(record *Record) error {
	if record.ID == "" {
		return fmt.Errorf("transcript record has no id")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketTranscripts))
		if bucket == nil {
			return fmt.Errorf("transcripts bucket not found")
		}

		if bucket.Get([]byte(record.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateID, record.ID)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript: %w", err)
		}
		return bucket.Put([]byte(record.ID), data)
	})
}

// Get retrieves a transcript record by id, or nil when absent.
func (s *Store) Get(id string) (*Record, error) {
	var record *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketTranscripts))
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return nil
		}

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal transcript %s: %w", id, err)
		}
		record = &rec
		return nil
	})
	return record, err
}

// List returns one page of transcript records ordered newest first.
// page is 1-based; total is the overall record count.
func (s *Store) List(page, perPage int) (records []*Record, total int, err error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	var all []*Record
	err = s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketTranscripts))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal transcript: %w", err)
			}
			all = append(all, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].ProcessedAt.After(all[j].ProcessedAt)
	})

	total = len(all)
	start := (page - 1) * perPage
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
