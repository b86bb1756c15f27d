// Package memory provides a map-backed Store with the same semantics
// as the Badger backend. It is used by tests and can back a relay that
// does not need persistence across restarts.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/filters"
	"github.com/mattn/crystal-nostr-relay/lib/kinds"
	"github.com/mattn/crystal-nostr-relay/lib/stores"
)

type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*nostr.Event
	// coordinates maps "pubkey:kind:dtag" to the occupying event id
	coordinates map[string]string
	closed      bool
}

func (store *MemoryStore) InitStore(basepath string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.events = make(map[string]*nostr.Event)
	store.coordinates = make(map[string]string)
	return nil
}

func (store *MemoryStore) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.closed = true
	return nil
}

func coordinateOf(ev *nostr.Event) (string, bool) {
	switch {
	case kinds.IsReplaceable(ev.Kind):
		return fmt.Sprintf("%s:%d:", ev.PubKey, ev.Kind), true
	case kinds.IsParameterizedReplaceable(ev.Kind):
		return fmt.Sprintf("%s:%d:%s", ev.PubKey, ev.Kind, kinds.DTag(ev.Tags)), true
	default:
		return "", false
	}
}

func (store *MemoryStore) StoreEvent(ev *nostr.Event) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return fmt.Errorf("store is closed")
	}

	if _, exists := store.events[ev.ID]; exists {
		return nil
	}

	if coord, ok := coordinateOf(ev); ok {
		if currentID, occupied := store.coordinates[coord]; occupied {
			current := store.events[currentID]
			if current != nil {
				newer := ev.CreatedAt > current.CreatedAt ||
					(ev.CreatedAt == current.CreatedAt && ev.ID < current.ID)
				if !newer {
					return nil
				}
				delete(store.events, currentID)
			}
		}
		store.coordinates[coord] = ev.ID
	}

	store.events[ev.ID] = ev
	return nil
}

func (store *MemoryStore) GetEvent(id string) (*nostr.Event, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.closed {
		return nil, fmt.Errorf("store is closed")
	}
	return store.events[id], nil
}

func (store *MemoryStore) DeleteEvent(id string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return fmt.Errorf("store is closed")
	}

	ev, exists := store.events[id]
	if !exists {
		return nil
	}
	delete(store.events, id)

	if coord, ok := coordinateOf(ev); ok {
		if store.coordinates[coord] == id {
			delete(store.coordinates, coord)
		}
	}
	return nil
}

func (store *MemoryStore) QueryEvents(filter nostr.Filter) ([]*nostr.Event, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.closed {
		return nil, fmt.Errorf("store is closed")
	}

	now := time.Now().Unix()
	var matched []*nostr.Event
	for _, ev := range store.events {
		if kinds.IsExpired(ev, now) {
			continue
		}
		if filters.Match(filter, ev) {
			matched = append(matched, ev)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = stores.DefaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *MemoryStore) CountEvents(filter nostr.Filter) (int64, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.closed {
		return 0, fmt.Errorf("store is closed")
	}

	now := time.Now().Unix()
	var count int64
	for _, ev := range store.events {
		if kinds.IsExpired(ev, now) {
			continue
		}
		if filters.Match(filter, ev) {
			count++
		}
	}
	return count, nil
}

// DeleteExpired removes every event whose expiration timestamp is at
// or before now.
func (store *MemoryStore) DeleteExpired(now int64) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var removed int
	for id, ev := range store.events {
		if kinds.IsExpired(ev, now) {
			delete(store.events, id)
			if coord, ok := coordinateOf(ev); ok && store.coordinates[coord] == id {
				delete(store.coordinates, coord)
			}
			removed++
		}
	}
	return removed, nil
}
