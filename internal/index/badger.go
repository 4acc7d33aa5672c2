package index

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerStorage is the key-value layer of the catalog, backed by BadgerDB
type BadgerStorage struct {
	db    *badger.DB
	opts  BadgerOptions
	stats storageCounters
	done  chan struct{}
}

// BadgerOptions configures the BadgerDB instance
type BadgerOptions struct {
	// Directory to store the database files
	Dir string

	// InMemory creates an in-memory database (for testing)
	InMemory bool

	// ReadOnly opens database in read-only mode
	ReadOnly bool

	// SyncWrites enables synchronous writes
	SyncWrites bool

	// GCInterval is how often value log GC runs; 0 disables it
	GCInterval time.Duration
}

// DefaultBadgerOptions returns options suited to catalog workloads
func DefaultBadgerOptions(dir string) BadgerOptions {
	return BadgerOptions{
		Dir:        dir,
		SyncWrites: false,
		GCInterval: 5 * time.Minute,
	}
}

type storageCounters struct {
	reads   atomic.Int64
	writes  atomic.Int64
	scans   atomic.Int64
	deletes atomic.Int64
}

// StorageStats reports operation counters
type StorageStats struct {
	ReadCount   int64 `json:"read_count"`
	WriteCount  int64 `json:"write_count"`
	ScanCount   int64 `json:"scan_count"`
	DeleteCount int64 `json:"delete_count"`
}

// NewBadgerStorage opens a BadgerDB-backed storage instance
func NewBadgerStorage(opts BadgerOptions) (*BadgerStorage, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithSyncWrites(opts.SyncWrites).
		WithCompression(options.ZSTD).
		WithDetectConflicts(false).
		WithLogger(nil)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.ReadOnly {
		badgerOpts = badgerOpts.WithReadOnly(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	storage := &BadgerStorage{
		db:   db,
		opts: opts,
		done: make(chan struct{}),
	}

	if opts.GCInterval > 0 && !opts.InMemory && !opts.ReadOnly {
		go storage.runGC(opts.GCInterval)
	}

	return storage, nil
}

// runGC runs periodic value log garbage collection until Close
func (bs *BadgerStorage) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for bs.db.RunValueLogGC(0.5) == nil {
			}
		case <-bs.done:
			return
		}
	}
}

// Get retrieves a value by key
func (bs *BadgerStorage) Get(ctx context.Context, key []byte) ([]byte, error) {
	bs.stats.reads.Add(1)

	var result []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &StorageError{Op: "get", Key: string(key), Err: ErrKeyNotFound}
	}
	if err != nil {
		return nil, &StorageError{Op: "get", Key: string(key), Err: err}
	}
	return result, nil
}

// Set stores a key-value pair
func (bs *BadgerStorage) Set(ctx context.Context, key, value []byte) error {
	bs.stats.writes.Add(1)

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return &StorageError{Op: "set", Key: string(key), Err: err}
	}
	return nil
}

// Delete removes a key
func (bs *BadgerStorage) Delete(ctx context.Context, key []byte) error {
	bs.stats.deletes.Add(1)

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return &StorageError{Op: "delete", Key: string(key), Err: err}
	}
	return nil
}

// Has checks if a key exists
func (bs *BadgerStorage) Has(ctx context.Context, key []byte) (bool, error) {
	_, err := bs.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Scan calls fn for every key with the given prefix, in key order. The
// slices passed to fn are only valid during the call.
func (bs *BadgerStorage) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	bs.stats.scans.Add(1)

	err := bs.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			if err := item.Value(func(val []byte) error {
				return fn(item.Key(), val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "scan", Key: string(prefix), Err: err}
	}
	return nil
}

// Update runs fn inside a read-write transaction.
func (bs *BadgerStorage) Update(ctx context.Context, fn func(txn *Txn) error) error {
	bs.stats.writes.Add(1)

	err := bs.db.Update(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
	if err != nil {
		return &StorageError{Op: "update", Err: err}
	}
	return nil
}

// DropPrefix removes every key with the given prefix.
func (bs *BadgerStorage) DropPrefix(ctx context.Context, prefix []byte) error {
	bs.stats.deletes.Add(1)

	if err := bs.db.DropPrefix(prefix); err != nil {
		return &StorageError{Op: "drop", Key: string(prefix), Err: err}
	}
	return nil
}

// Stats returns operation counters
func (bs *BadgerStorage) Stats() StorageStats {
	return StorageStats{
		ReadCount:   bs.stats.reads.Load(),
		WriteCount:  bs.stats.writes.Load(),
		ScanCount:   bs.stats.scans.Load(),
		DeleteCount: bs.stats.deletes.Load(),
	}
}

// Size returns the bytes used by the LSM tree and the value log
func (bs *BadgerStorage) Size() int64 {
	lsm, vlog := bs.db.Size()
	return lsm + vlog
}

// Close stops background GC and closes the database
func (bs *BadgerStorage) Close() error {
	select {
	case <-bs.done:
		return nil
	default:
		close(bs.done)
	}
	return bs.db.Close()
}

// Txn is a read-write transaction handed to Update callbacks
type Txn struct {
	txn *badger.Txn
}

func (t *Txn) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t *Txn) Delete(key []byte) error {
	return t.txn.Delete(key)
}

// Get returns ErrKeyNotFound for a missing key.
func (t *Txn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// DeletePrefix deletes every key with the given prefix inside the
// transaction.
func (t *Txn) DeletePrefix(prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := t.txn.NewIterator(opts)

	var keys [][]byte
	for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	iter.Close()

	for _, key := range keys {
		if err := t.txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
