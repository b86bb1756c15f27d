package stores

import (
	"github.com/nbd-wtf/go-nostr"
)

// Store is the persistence collaborator the relay core talks to. The
// core never assumes a specific backend; anything satisfying this
// contract can sit behind the acceptance pipeline.
//
// Semantics every implementation must honor:
//
//   - StoreEvent inserts with duplicate-id-is-a-no-op semantics. For
//     replaceable and parameterized-replaceable kinds the superseded
//     event is removed and the new one inserted in one transaction;
//     if the incoming event loses the (created_at, smaller-id)
//     tiebreak it is dropped without error.
//   - QueryEvents returns matches newest-first by created_at, honoring
//     the filter limit (default 500 when unset) and suppressing
//     events whose expiration has passed.
//   - CountEvents counts without a limit.
//   - DeleteEvent is idempotent; deleting an absent id is not an error.
type Store interface {
	InitStore(basepath string) error
	Close() error

	StoreEvent(event *nostr.Event) error
	GetEvent(id string) (*nostr.Event, error)
	DeleteEvent(id string) error
	QueryEvents(filter nostr.Filter) ([]*nostr.Event, error)
	CountEvents(filter nostr.Filter) (int64, error)
}

// DefaultQueryLimit caps historical queries when the filter does not
// carry its own limit.
const DefaultQueryLimit = 500
