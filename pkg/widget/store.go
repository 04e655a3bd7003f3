package widget

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	queueBucket      = []byte("queue")
	transcriptBucket = []byte("transcript")
	transcriptKey    = []byte("entries")
)

// Store is the widget's durable storage: the offline message queue and the
// cached transcript. Every mutation commits before returning, so a crash or
// reload between flush attempts neither drops nor duplicates queue entries.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (or creates) the storage file.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open widget store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(queueBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(transcriptBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init widget store")
	}
	return &Store{db: db}, nil
}

// Close releases the storage file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue appends a message to the back of the queue. Keys come from the
// bucket sequence, so iteration order is enqueue order.
func (s *Store) Enqueue(msg QueuedMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(queueBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return errors.Wrap(err, "queue sequence")
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "encode queued message")
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, raw)
	})
}

// Queue lists pending messages in FIFO order.
func (s *Store) Queue() ([]QueuedMessage, error) {
	var queue []QueuedMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(queueBucket).ForEach(func(_, v []byte) error {
			var msg QueuedMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				return errors.Wrap(err, "decode queued message")
			}
			queue = append(queue, msg)
			return nil
		})
	})
	return queue, err
}

// RemoveQueued deletes the entry with the given id; called exactly once, on
// confirmed delivery. Removing an id that is already gone is a no-op, so a
// replayed flush cannot fail here.
func (s *Store) RemoveQueued(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(queueBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg QueuedMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			if msg.ID == id {
				return b.Delete(k)
			}
		}
		return nil
	})
}

// ClearQueue drops all queued messages. Explicit storage clearing is the
// only sanctioned way to lose them.
func (s *Store) ClearQueue() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(queueBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(queueBucket)
		return err
	})
}

type cachedTranscript struct {
	SavedAt time.Time `json:"saved_at"`
	Entries []Entry   `json:"entries"`
}

// SaveTranscript persists the visible transcript with a save timestamp.
func (s *Store) SaveTranscript(entries []Entry) error {
	raw, err := json.Marshal(cachedTranscript{SavedAt: time.Now().UTC(), Entries: entries})
	if err != nil {
		return errors.Wrap(err, "encode transcript")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(transcriptBucket).Put(transcriptKey, raw)
	})
}

// LoadTranscript returns the cached transcript, or nil when none exists or
// the cache is older than maxAge.
func (s *Store) LoadTranscript(maxAge time.Duration) ([]Entry, error) {
	var cached cachedTranscript
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(transcriptBucket).Get(transcriptKey)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &cached)
	})
	if err != nil {
		return nil, errors.Wrap(err, "load transcript")
	}
	if cached.SavedAt.IsZero() || time.Since(cached.SavedAt) > maxAge {
		return nil, nil
	}
	return cached.Entries, nil
}
