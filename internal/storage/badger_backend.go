package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/depsphere-go/internal/graph"
)

// Key prefix for snapshot records.
const prefixSnapshot = "s:"

// BadgerBackend is a BadgerDB-backed snapshot store.
type BadgerBackend struct {
	db          *badger.DB
	initialized bool
	mu          sync.RWMutex
	now         func() time.Time
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{now: time.Now}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(2).
		WithLoggingLevel(badger.ERROR) // Suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}

	b.initialized = true
	return nil
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

// Save stores g as the snapshot of analysisPath.
func (b *BadgerBackend) Save(ctx context.Context, analysisPath string, g *graph.DependencyGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return ErrNotInitialized
	}

	key := snapshotKey(analysisPath)
	data, err := encodeSnapshot(key, g, b.now())
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(b.snapshotKey(key), data); err != nil {
			return fmt.Errorf("setting snapshot: %w", err)
		}
		return nil
	})
}

// Load returns the snapshot of analysisPath.
func (b *BadgerBackend) Load(ctx context.Context, analysisPath string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}

	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.snapshotKey(snapshotKey(analysisPath)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, analysisPath)
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// List returns every stored snapshot ordered by analysis path.
func (b *BadgerBackend) List(ctx context.Context) ([]SnapshotInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.initialized {
		return nil, ErrNotInitialized
	}

	infos := make([]SnapshotInfo, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSnapshot)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec record
			err := it.Item().Value(func(val []byte) error {
				var err error
				rec, err = decodeRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			infos = append(infos, rec.SnapshotInfo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Delete removes the snapshot of analysisPath.
func (b *BadgerBackend) Delete(ctx context.Context, analysisPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return ErrNotInitialized
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.snapshotKey(snapshotKey(analysisPath)))
	})
}

func (b *BadgerBackend) snapshotKey(key string) []byte {
	return []byte(prefixSnapshot + key)
}

var _ SnapshotStore = (*BadgerBackend)(nil)
