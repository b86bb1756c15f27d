package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/timshannon/badgerhold/v4"

	"github.com/mattn/crystal-nostr-relay/lib/logging"
)

// BadgerStore persists events in BadgerDB. The event path uses raw
// Badger transactions and its own key schema (see events.go); the
// badgerhold wrapper provides the configured open/close plumbing.
type BadgerStore struct {
	DatabasePath string
	Database     *badgerhold.Store

	ctx    context.Context
	cancel context.CancelFunc

	closed bool
	mu     sync.RWMutex
}

func cborEncode(value interface{}) ([]byte, error) {
	return cbor.Marshal(value)
}

func cborDecode(data []byte, value interface{}) error {
	return cbor.Unmarshal(data, value)
}

func (store *BadgerStore) InitStore(basepath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	store.ctx = ctx
	store.cancel = cancel
	store.DatabasePath = basepath

	options := badgerhold.DefaultOptions
	options.Encoder = cborEncode
	options.Decoder = cborDecode
	options.Dir = basepath
	options.ValueDir = basepath

	// Keep memory bounded: small caches are plenty for an event relay,
	// and a single memtable flushes promptly on restart.
	options.Options = options.Options.
		WithBlockCacheSize(64 << 20).
		WithIndexCacheSize(32 << 20).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)

	db, err := badgerhold.Open(options)
	if err != nil {
		return fmt.Errorf("failed to open event database: %w", err)
	}
	store.Database = db

	go store.runValueLogGC()

	return nil
}

// runValueLogGC reclaims dead value-log space periodically. Badger
// requires this to be driven by the application.
func (store *BadgerStore) runValueLogGC() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-store.ctx.Done():
			return
		case <-ticker.C:
			for {
				if err := store.Database.Badger().RunValueLogGC(0.5); err != nil {
					if err != badger.ErrNoRewrite {
						logging.Debugf("Value log GC: %v", err)
					}
					break
				}
			}
		}
	}
}

func (store *BadgerStore) IsClosed() bool {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.closed
}

func (store *BadgerStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.closed {
		return nil
	}
	store.closed = true
	store.cancel()

	return store.Database.Close()
}
