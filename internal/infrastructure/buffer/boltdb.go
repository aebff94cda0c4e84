package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store is a durable inbox on BoltDB. Items are ordered by priority, then
// by enqueue time. Items that exhaust their attempts move to a dead-letter
// bucket instead of being dropped.
type Store struct {
	db *bolt.DB
}

// Open creates the BoltDB file if needed and ensures both buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open inbox %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketPending, bucketDead} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Enqueue persists an item.
func (s *Store) Enqueue(item Item) (Item, error) {
	if s == nil || s.db == nil {
		return item, bolt.ErrDatabaseNotOpen
	}
	item.normalize()
	item.key = itemKey(item)
	err := s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket([]byte(bucketPending)), item)
	})
	return item, err
}

// Peek returns up to limit pending items without removing them.
func (s *Store) Peek(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}
	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		items = scan(tx.Bucket([]byte(bucketPending)), limit)
		return nil
	})
	return items, err
}

// Ack removes a processed item.
func (s *Store) Ack(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPending)).Delete(keyOf(item))
	})
}

// Retry records a failed attempt. Once attempts reach maxAttempts the item
// is moved to the dead-letter bucket; otherwise it goes to the back of its
// priority class. It reports whether the item was dead-lettered.
func (s *Store) Retry(item Item, cause error, maxAttempts int) (bool, error) {
	if s == nil || s.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	oldKey := keyOf(item)
	item.Attempts++
	if cause != nil {
		item.LastError = cause.Error()
	}
	dead := maxAttempts > 0 && item.Attempts >= maxAttempts
	err := s.db.Update(func(tx *bolt.Tx) error {
		pending := tx.Bucket([]byte(bucketPending))
		if err := pending.Delete(oldKey); err != nil {
			return err
		}
		if dead {
			item.key = []byte(item.ID)
			return put(tx.Bucket([]byte(bucketDead)), item)
		}
		item.EnqueuedAt = time.Now().UTC()
		item.key = itemKey(item)
		return put(pending, item)
	})
	return dead, err
}

// DeadLetters returns up to limit items that exhausted their attempts.
func (s *Store) DeadLetters(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		items = scan(tx.Bucket([]byte(bucketDead)), limit)
		return nil
	})
	return items, err
}

// Replay moves a dead-lettered item back to the pending bucket with a
// fresh attempt budget.
func (s *Store) Replay(id string) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		dead := tx.Bucket([]byte(bucketDead))
		raw := dead.Get([]byte(id))
		if raw == nil {
			return fmt.Errorf("dead letter %s not found", id)
		}
		var item Item
		if err := json.Unmarshal(raw, &item); err != nil {
			return err
		}
		if err := dead.Delete([]byte(id)); err != nil {
			return err
		}
		item.Attempts = 0
		item.EnqueuedAt = time.Now().UTC()
		item.key = itemKey(item)
		return put(tx.Bucket([]byte(bucketPending)), item)
	})
}

// Stats counts pending and dead-lettered items.
func (s *Store) Stats() (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, bolt.ErrDatabaseNotOpen
	}
	var st Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		st.Pending = tx.Bucket([]byte(bucketPending)).Stats().KeyN
		st.Dead = tx.Bucket([]byte(bucketDead)).Stats().KeyN
		return nil
	})
	return st, err
}

// PurgeDead removes dead letters enqueued before olderThan.
func (s *Store) PurgeDead(olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		dead := tx.Bucket([]byte(bucketDead))
		var stale [][]byte
		err := dead.ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return nil
			}
			if item.EnqueuedAt.Before(olderThan) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// deleting under a live cursor skips the following key
		for _, k := range stale {
			if err := dead.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func put(b *bolt.Bucket, item Item) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return b.Put(item.key, payload)
}

func scan(b *bolt.Bucket, limit int) []Item {
	var items []Item
	c := b.Cursor()
	for k, v := c.First(); k != nil && (limit <= 0 || len(items) < limit); k, v = c.Next() {
		var item Item
		if err := json.Unmarshal(v, &item); err != nil {
			continue
		}
		item.key = append([]byte(nil), k...)
		items = append(items, item)
	}
	return items
}

func keyOf(item Item) []byte {
	if len(item.key) > 0 {
		return item.key
	}
	return itemKey(item)
}

func itemKey(item Item) []byte {
	return []byte(fmt.Sprintf("%d_%020d_%s", item.Priority, item.EnqueuedAt.UnixNano(), item.ID))
}
