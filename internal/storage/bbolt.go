package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket   = []byte("config")   // version, timestamps
	EntriesBucket  = []byte("entries")  // locked path -> Entry JSON
	AuditBucket    = []byte("audit")    // sequence -> AuditRecord JSON
	SettingsBucket = []byte("settings") // runtime flags toggled from chat
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
)

// Settings keys
var (
	SettingActive = []byte("active")
)

const (
	// DefaultFileName is the registry database name inside the data directory
	DefaultFileName = "registry.db"
	// MaxAuditRecords bounds the audit bucket; older records are dropped on append
	MaxAuditRecords = 1000
)

// ErrBusy is returned by Open when another process holds the database
var ErrBusy = errors.New("registry is in use by another process")

// Storage provides BBolt-based storage for the vault registry
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a registry database and makes sure its buckets exist
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.Initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure. It is idempotent.
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, EntriesBucket, AuditBucket, SettingsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if config.Get(ConfigVersion) != nil {
			return nil
		}
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// touch updates the last modified timestamp inside an update transaction
func touch(tx *bolt.Tx) error {
	modified, _ := time.Now().MarshalBinary()
	return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	var modified time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get(ConfigModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// Put stores or replaces the entry for entry.LockedPath
func (s *Storage) Put(entry Entry) error {
	if entry.LockedPath == "" {
		return fmt.Errorf("entry has empty locked path")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(EntriesBucket).Put([]byte(entry.LockedPath), data); err != nil {
			return err
		}
		return touch(tx)
	})
}

// Get returns the entry for lockedPath, or nil when none is recorded
func (s *Storage) Get(lockedPath string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(EntriesBucket).Get([]byte(lockedPath))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// Remove deletes the entry for lockedPath. Removing a missing entry is not an error.
func (s *Storage) Remove(lockedPath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(EntriesBucket).Delete([]byte(lockedPath)); err != nil {
			return err
		}
		return touch(tx)
	})
}

// List returns all entries ordered by locked path
func (s *Storage) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(EntriesBucket).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt entry %s: %w", k, err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	sortEntries(entries)
	return entries, err
}

// AppendAudit appends a record to the action log, trimming the oldest
// records beyond MaxAuditRecords
func (s *Storage) AppendAudit(rec AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		audit := tx.Bucket(AuditBucket)
		seq, err := audit.NextSequence()
		if err != nil {
			return err
		}
		if err := audit.Put(seqKey(seq), data); err != nil {
			return err
		}

		var keys [][]byte
		c := audit.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		// Deleting through the cursor while iterating skips keys, so delete afterwards
		for i := 0; i < len(keys)-MaxAuditRecords; i++ {
			if err := audit.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentAudit returns up to n most recent records, newest first
func (s *Storage) RecentAudit(n int) ([]AuditRecord, error) {
	var records []AuditRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(AuditBucket).Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var rec AuditRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// SetActive persists the bot active flag
func (s *Storage) SetActive(active bool) error {
	value := []byte("0")
	if active {
		value = []byte("1")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(SettingsBucket).Put(SettingActive, value)
	})
}

// IsActive returns the bot active flag. A fresh database is active.
func (s *Storage) IsActive() (bool, error) {
	active := true
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(SettingsBucket).Get(SettingActive); v != nil {
			active = string(v) == "1"
		}
		return nil
	})
	return active, err
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after many lock/unlock cycles.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
