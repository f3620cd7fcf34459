// Package store provides the key value service backing the vault and the
// simulation host. Every top level call runs in a branch that is written back to
// its parent only when the call succeeds.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"cosmossdk.io/store/cachekv"
	"cosmossdk.io/store/dbadapter"
	"cosmossdk.io/store/prefix"
	storetypes "cosmossdk.io/store/types"
	dbm "github.com/cosmos/cosmos-db"
)

const (
	BackendMemDB     = "memdb"
	BackendGoLevelDB = "goleveldb"
)

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrCorruptValue   = errors.New("stored value could not be decoded")
)

// Service owns the root key value store.
type Service struct {
	db   dbm.DB
	root storetypes.KVStore
}

type branchKey struct{ svc *Service }

// NewService wraps db as the root store.
func NewService(db dbm.DB) *Service {
	return &Service{
		db:   db,
		root: dbadapter.Store{DB: db},
	}
}

// NewMemService returns a service over a fresh in memory database.
func NewMemService() *Service {
	return NewService(dbm.NewMemDB())
}

// OpenDB opens the database selected by backend. dir is ignored for memdb.
func OpenDB(name, backend, dir string) (dbm.DB, error) {
	switch backend {
	case "", BackendMemDB:
		return dbm.NewMemDB(), nil
	case BackendGoLevelDB:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
		db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open goleveldb store %s: %w", name, err)
		}
		return db, nil
	default:
		return nil, errors.Join(ErrUnknownBackend, fmt.Errorf("backend %q", backend))
	}
}

// Close releases the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}

// OpenKVStore returns the innermost branch carried by ctx, or the root store.
func (s *Service) OpenKVStore(ctx context.Context) storetypes.KVStore {
	if kv, ok := ctx.Value(branchKey{s}).(storetypes.KVStore); ok {
		return kv
	}
	return s.root
}

// Branch returns a context whose writes are buffered until write is called.
// Dropping write discards every change made through the returned context.
func (s *Service) Branch(ctx context.Context) (context.Context, func()) {
	cache := cachekv.NewStore(s.OpenKVStore(ctx))
	return context.WithValue(ctx, branchKey{s}, storetypes.KVStore(cache)), cache.Write
}

// Prefixed returns a namespaced view of the store carried by ctx.
func (s *Service) Prefixed(ctx context.Context, namespace string) storetypes.KVStore {
	return prefix.NewStore(s.OpenKVStore(ctx), []byte(namespace))
}

// GetJSON decodes the value at key into v. It reports false when the key is absent.
func GetJSON(kv storetypes.KVStore, key string, v interface{}) (bool, error) {
	bz := kv.Get([]byte(key))
	if bz == nil {
		return false, nil
	}
	if err := json.Unmarshal(bz, v); err != nil {
		return false, errors.Join(ErrCorruptValue, fmt.Errorf("key %s: %w", key, err))
	}
	return true, nil
}

// SetJSON encodes v at key.
func SetJSON(kv storetypes.KVStore, key string, v interface{}) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", key, err)
	}
	kv.Set([]byte(key), bz)
	return nil
}

// Keys lists every key under the given prefix of kv in ascending order.
func Keys(kv storetypes.KVStore, keyPrefix string) []string {
	it := storetypes.KVStorePrefixIterator(kv, []byte(keyPrefix))
	defer it.Close()
	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	return keys
}
