// Package universal implements the acceptance pipeline every published
// event runs through: signature verification, kind policy, tag policy,
// persistence, and the hand-off to the broadcast bus.
package universal

import (
	"regexp"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/handlers/nostr/kind5"
	"github.com/mattn/crystal-nostr-relay/lib/kinds"
	"github.com/mattn/crystal-nostr-relay/lib/logging"
	"github.com/mattn/crystal-nostr-relay/lib/stores"
	"github.com/mattn/crystal-nostr-relay/lib/verification"
)

var hexPubkeyPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Broadcaster receives every accepted event for fan-out to live
// subscriptions.
type Broadcaster interface {
	Broadcast(event *nostr.Event)
}

// Pipeline applies the relay's acceptance policy. Storage and the
// broadcast bus are collaborators; a nil bus disables live dispatch.
type Pipeline struct {
	store stores.Store
	bus   Broadcaster
	now   func() int64
}

func New(store stores.Store, bus Broadcaster) *Pipeline {
	return &Pipeline{
		store: store,
		bus:   bus,
		now:   func() int64 { return time.Now().Unix() },
	}
}

// Accept decides whether the event is taken by the relay, returning
// the verdict and the machine-readable reason for the OK frame. The
// steps run in a fixed order; each step either rejects, short-circuits
// with success, or falls through to persistence and broadcast.
func (p *Pipeline) Accept(event *nostr.Event) (bool, string) {
	if !verification.Verify(event) {
		return false, "invalid: signature"
	}

	// Deletion requests are processed, never stored. The publisher
	// always sees success; per-target outcomes are not surfaced.
	if kinds.IsDeletion(event.Kind) {
		kind5.ProcessDeletion(p.store, event)
		return true, ""
	}

	// Tag names containing "-" mark protected events (NIP-70). Without
	// publisher authentication they cannot be accepted.
	if hasProtectedTag(event.Tags) {
		return false, "auth-required: this event may only be published by its author"
	}

	// Ephemeral events reach live subscribers but are never persisted.
	if kinds.IsEphemeral(event.Kind) {
		p.broadcast(event)
		return true, ""
	}

	// Already-expired events succeed silently without persistence or
	// broadcast.
	if ts, ok := kinds.Expiration(event.Tags); ok && ts <= p.now() {
		return true, ""
	}

	if event.Kind == kinds.KindContacts && !validContactList(event.Tags) {
		return false, "invalid: contact list p-tag has invalid pubkey format"
	}

	// The store handles duplicate ids and replaceable-kind supersession
	// inside a single transaction.
	if err := p.store.StoreEvent(event); err != nil {
		logging.Errorf("Failed to store event %s: %v", event.ID, err)
		return false, "error: database error"
	}

	p.broadcast(event)
	return true, ""
}

func (p *Pipeline) broadcast(event *nostr.Event) {
	if p.bus != nil {
		p.bus.Broadcast(event)
	}
}

func hasProtectedTag(tags nostr.Tags) bool {
	for _, tag := range tags {
		if len(tag) >= 1 && strings.Contains(tag[0], "-") {
			return true
		}
	}
	return false
}

// validContactList checks that every "p" tag on a contact list carries
// a well-formed 64-char hex pubkey.
func validContactList(tags nostr.Tags) bool {
	for _, tag := range tags {
		if len(tag) >= 1 && tag[0] == "p" {
			if len(tag) < 2 || !hexPubkeyPattern.MatchString(tag[1]) {
				return false
			}
		}
	}
	return true
}
