package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	sourcesBucket = "sources"
	metaBucket    = "meta"
	metaVersion   = "version"
	metaSavedAt   = "saved_at"
)

// boltBackend implements a Backend backed by BoltDB, one key per source.
type boltBackend struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Backend.
func openBolt(path string) (Backend, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sourcesBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltBackend{db: db}, nil
}

func (b *boltBackend) Name() string { return TypeBBolt }

// Close closes the BoltDB file.
func (b *boltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Load reads every source entry. Entries that fail to decode are skipped so a
// single corrupt source does not hide the rest.
func (b *boltBackend) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	st := NewState()
	st.Version = 0

	err := b.db.View(func(tx *bolt.Tx) error {
		if meta := tx.Bucket([]byte(metaBucket)); meta != nil {
			if v := meta.Get([]byte(metaVersion)); v != nil {
				if n, err := strconv.Atoi(string(v)); err == nil {
					st.Version = n
				}
			}
			if v := meta.Get([]byte(metaSavedAt)); v != nil {
				if ts, err := time.Parse(time.RFC3339Nano, string(v)); err == nil {
					st.SavedAt = ts
				}
			}
		}

		bucket := tx.Bucket([]byte(sourcesBucket))
		if bucket == nil {
			return fmt.Errorf("sources bucket missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			var ss SourceState
			if err := json.Unmarshal(v, &ss); err != nil {
				return nil
			}
			st.Sources[string(k)] = ss
			return nil
		})
	})
	if err != nil {
		return State{}, fmt.Errorf("load bbolt state: %w", err)
	}
	return st, nil
}

// Save replaces the stored sources with the snapshot in a single transaction.
func (b *boltBackend) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sourcesBucket))
		if bucket == nil {
			return fmt.Errorf("sources bucket missing")
		}

		var stale [][]byte
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			if _, ok := st.Sources[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		for source, ss := range st.Sources {
			raw, err := json.Marshal(ss)
			if err != nil {
				return fmt.Errorf("encode source %s: %w", source, err)
			}
			if err := bucket.Put([]byte(source), raw); err != nil {
				return err
			}
		}

		meta := tx.Bucket([]byte(metaBucket))
		if meta == nil {
			return fmt.Errorf("meta bucket missing")
		}
		if err := meta.Put([]byte(metaVersion), []byte(strconv.Itoa(SchemaVersion))); err != nil {
			return err
		}
		return meta.Put([]byte(metaSavedAt), []byte(st.SavedAt.UTC().Format(time.RFC3339Nano)))
	})
}
