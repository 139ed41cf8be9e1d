package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/korjavin/eventbot/pkg/logger"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// maxConflictRetries bounds how often a conflicting read-write transaction is replayed
const maxConflictRetries = 5

// Store represents a BadgerDB storage instance
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *logger.Logger
	stop   chan struct{}
}

// New creates a new BadgerDB storage instance
func New(dataDir string) (*Store, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get absolute path")
	}

	opts := badger.DefaultOptions(absPath)
	opts.Logger = nil // Disable Badger's internal logger

	s, err := open(opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("BadgerDB opened at %s", absPath)
	return s, nil
}

// NewInMemory opens a store that lives only in memory, used by tests and dry runs
func NewInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open BadgerDB")
	}

	seq, err := db.GetSequence([]byte(eventSeqKey), 100)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to open event sequence")
	}

	return &Store{
		db:     db,
		seq:    seq,
		logger: logger.New("storage"),
		stop:   make(chan struct{}),
	}, nil
}

// Close releases the ID sequence and closes the BadgerDB database
func (s *Store) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			s.logger.Error("Failed to release event sequence: %v", err)
		}
		s.seq = nil
	}
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Set stores a JSON-encoded value for a key
func (s *Store) Set(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get retrieves a value for a key
func (s *Store) Get(key string, value interface{}) error {
	return s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, key, value)
	})
}

// Delete removes a key from the database
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// List returns all keys with a given prefix
func (s *Store) List(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		return eachKey(txn, prefix, func(key string) error {
			keys = append(keys, key)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys")
	}
	return keys, nil
}

// RunGC runs garbage collection on the database
func (s *Store) RunGC() error {
	return s.db.RunValueLogGC(0.5)
}

// StartGCRoutine starts a goroutine that periodically runs garbage collection
// until the store is closed
func (s *Store) StartGCRoutine(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				err := s.RunGC()
				// ErrNoRewrite only means there was nothing to collect
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Error("BadgerDB GC error: %v", err)
				}
			case <-s.stop:
				return
			}
		}
	}()
	s.logger.Info("Started BadgerDB GC routine with interval %v", interval)
}

// view runs a read-only transaction after checking the context
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// update runs a read-write transaction, replaying it when badger reports a conflict
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("Transaction conflict, retrying (attempt %d)", attempt+1)
	}
	return err
}

func getJSON(txn *badger.Txn, key string, value interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.Wrapf(ErrNotFound, "key %s", key)
		}
		return errors.Wrap(err, "failed to get value")
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, value)
	})
}

func setJSON(txn *badger.Txn, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value")
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to check key")
	}
	return true, nil
}

// eachKey calls fn for every key with the given prefix, in key order
func eachKey(txn *badger.Txn, prefix string, fn func(key string) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		if err := fn(string(it.Item().KeyCopy(nil))); err != nil {
			return err
		}
	}
	return nil
}
