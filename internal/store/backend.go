package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"slices"
	"sync"
	"time"

	"github.com/hpungsan/nami/internal/db"
)

// ErrConflict is returned by Backend.Swap when another writer got there first.
var ErrConflict = stderrors.New("store: snapshot changed since it was read")

// Backend is a durable key/value blob store shared by every process that
// opens the same data directory.
type Backend interface {
	// Get returns the value for key, or nil, nil when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value for key unconditionally.
	Put(ctx context.Context, key string, data []byte) error
	// GetVersion returns the value for key and its version. An absent key
	// has version 0.
	GetVersion(ctx context.Context, key string) ([]byte, int64, error)
	// Swap writes data only if the stored version still equals version and
	// returns the new version, or ErrConflict.
	Swap(ctx context.Context, key string, data []byte, version int64) (int64, error)
}

// SQLiteBackend keeps blobs in the database opened by db.Init.
type SQLiteBackend struct {
	conn *sql.DB
}

// NewSQLiteBackend wraps an initialised database.
func NewSQLiteBackend(conn *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{conn: conn}
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return db.GetBlob(ctx, b.conn, key)
}

func (b *SQLiteBackend) Put(ctx context.Context, key string, data []byte) error {
	return db.PutBlob(ctx, b.conn, key, data, time.Now())
}

func (b *SQLiteBackend) GetVersion(ctx context.Context, key string) ([]byte, int64, error) {
	return db.GetBlobVersion(ctx, b.conn, key)
}

func (b *SQLiteBackend) Swap(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	v, err := db.SwapBlob(ctx, b.conn, key, data, version, time.Now())
	if stderrors.Is(err, db.ErrVersionConflict) {
		return 0, ErrConflict
	}
	return v, err
}

type memBlob struct {
	data    []byte
	version int64
}

// MemoryBackend is an in-process Backend for tests and ephemeral runs.
type MemoryBackend struct {
	mu      sync.Mutex
	blobs   map[string]memBlob
	failPut error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string]memBlob)}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := b.GetVersion(ctx, key)
	return data, err
}

func (b *MemoryBackend) GetVersion(ctx context.Context, key string) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	blob, ok := b.blobs[key]
	if !ok {
		return nil, 0, nil
	}
	return slices.Clone(blob.data), blob.version, nil
}

func (b *MemoryBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut != nil {
		return b.failPut
	}
	b.blobs[key] = memBlob{data: slices.Clone(data), version: b.blobs[key].version + 1}
	return nil
}

func (b *MemoryBackend) Swap(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut != nil {
		return 0, b.failPut
	}
	if b.blobs[key].version != version {
		return 0, ErrConflict
	}
	b.blobs[key] = memBlob{data: slices.Clone(data), version: version + 1}
	return version + 1, nil
}

// FailWrites makes every subsequent Put and Swap return err. Nil restores
// writes.
func (b *MemoryBackend) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPut = err
}

// Keys returns the stored keys in sorted order.
func (b *MemoryBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.blobs))
	for k := range b.blobs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
