package universal

import (
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/stores/memory"
	"github.com/mattn/crystal-nostr-relay/testing/helpers"
)

// captureBus records broadcast events for assertions.
type captureBus struct {
	mu     sync.Mutex
	events []*nostr.Event
}

func (b *captureBus) Broadcast(event *nostr.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBus) broadcastIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.events))
	for i, ev := range b.events {
		ids[i] = ev.ID
	}
	return ids
}

func setupPipeline(t *testing.T) (*Pipeline, *memory.MemoryStore, *captureBus) {
	t.Helper()
	store := &memory.MemoryStore{}
	if err := store.InitStore(""); err != nil {
		t.Fatalf("InitStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bus := &captureBus{}
	return New(store, bus), store, bus
}

func TestAccept_ValidEventStoredAndBroadcast(t *testing.T) {
	pipeline, store, bus := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	event, _ := helpers.TextNote(kp, "hello")

	ok, reason := pipeline.Accept(event)
	if !ok || reason != "" {
		t.Fatalf("Accept = (%v, %q), want (true, \"\")", ok, reason)
	}

	if got, _ := store.GetEvent(event.ID); got == nil {
		t.Error("accepted event must be persisted")
	}
	if ids := bus.broadcastIDs(); len(ids) != 1 || ids[0] != event.ID {
		t.Errorf("accepted event must be broadcast once, got %v", ids)
	}
}

func TestAccept_InvalidSignatureRejected(t *testing.T) {
	pipeline, store, bus := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	event, _ := helpers.TextNote(kp, "original")
	event.Content = "forged"

	ok, reason := pipeline.Accept(event)
	if ok {
		t.Fatal("forged event must be rejected")
	}
	if reason != "invalid: signature" {
		t.Errorf("reason = %q, want %q", reason, "invalid: signature")
	}
	if got, _ := store.GetEvent(event.ID); got != nil {
		t.Error("rejected event must not be persisted")
	}
	if len(bus.broadcastIDs()) != 0 {
		t.Error("rejected event must not be broadcast")
	}
}

func TestAccept_ReplaceableScenario(t *testing.T) {
	pipeline, store, _ := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	first, _ := helpers.Metadata(kp, `{"name":"v1"}`, 100)
	second, _ := helpers.Metadata(kp, `{"name":"v2"}`, 200)

	if ok, _ := pipeline.Accept(first); !ok {
		t.Fatal("first metadata must be accepted")
	}
	if ok, _ := pipeline.Accept(second); !ok {
		t.Fatal("second metadata must be accepted")
	}

	events, err := store.QueryEvents(nostr.Filter{Authors: []string{kp.PublicKey}, Kinds: []int{0}})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != second.ID {
		t.Errorf("exactly the newer metadata must survive, got %v", events)
	}
}

func TestAccept_DeletionByAuthor(t *testing.T) {
	pipeline, store, _ := setupPipeline(t)
	author, _ := helpers.GenerateKeyPair()
	stranger, _ := helpers.GenerateKeyPair()

	target, _ := helpers.TextNote(author, "to be deleted")
	if ok, _ := pipeline.Accept(target); !ok {
		t.Fatal("target must be accepted")
	}

	// A stranger's deletion request succeeds but deletes nothing
	foreign, _ := helpers.Deletion(stranger, target.ID)
	ok, reason := pipeline.Accept(foreign)
	if !ok || reason != "" {
		t.Fatalf("deletion request always acknowledged, got (%v, %q)", ok, reason)
	}
	if got, _ := store.GetEvent(target.ID); got == nil {
		t.Fatal("unauthorized deletion must not remove the target")
	}

	// The author's deletion removes it
	own, _ := helpers.Deletion(author, target.ID)
	if ok, _ := pipeline.Accept(own); !ok {
		t.Fatal("author deletion must be acknowledged")
	}
	if got, _ := store.GetEvent(target.ID); got != nil {
		t.Error("author deletion must remove the target")
	}

	// Deletion requests themselves are never stored
	if got, _ := store.GetEvent(own.ID); got != nil {
		t.Error("kind-5 event must not be persisted")
	}
}

func TestAccept_GiftWrapDeletableByRecipient(t *testing.T) {
	pipeline, store, _ := setupPipeline(t)
	wrapper, _ := helpers.GenerateKeyPair()
	recipient, _ := helpers.GenerateKeyPair()
	outsider, _ := helpers.GenerateKeyPair()

	wrap, _ := helpers.GiftWrap(wrapper, recipient.PublicKey)
	if ok, _ := pipeline.Accept(wrap); !ok {
		t.Fatal("gift wrap must be accepted")
	}

	// A pubkey not in the p tags cannot delete it
	foreign, _ := helpers.Deletion(outsider, wrap.ID)
	pipeline.Accept(foreign)
	if got, _ := store.GetEvent(wrap.ID); got == nil {
		t.Fatal("outsider must not delete a gift wrap")
	}

	// The tagged recipient can
	own, _ := helpers.Deletion(recipient, wrap.ID)
	pipeline.Accept(own)
	if got, _ := store.GetEvent(wrap.ID); got != nil {
		t.Error("recipient deletion must remove the gift wrap")
	}
}

func TestAccept_ProtectedTagRefused(t *testing.T) {
	pipeline, store, _ := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	event, _ := helpers.TextNote(kp, "protected", nostr.Tag{"-"})

	ok, reason := pipeline.Accept(event)
	if ok {
		t.Fatal("protected event must be refused")
	}
	if reason != "auth-required: this event may only be published by its author" {
		t.Errorf("reason = %q", reason)
	}
	if got, _ := store.GetEvent(event.ID); got != nil {
		t.Error("refused event must not be persisted")
	}

	// Any hyphenated tag name triggers the refusal, not just the bare "-"
	hyphenated, _ := helpers.TextNote(kp, "custom", nostr.Tag{"my-tag", "value"})
	if ok, _ := pipeline.Accept(hyphenated); ok {
		t.Error("hyphenated tag name must also be refused")
	}
}

func TestAccept_EphemeralBroadcastNotPersisted(t *testing.T) {
	pipeline, store, bus := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	event, _ := helpers.SignedEvent(kp, 25000, "fleeting", nil, time.Now().Unix())

	ok, reason := pipeline.Accept(event)
	if !ok || reason != "" {
		t.Fatalf("ephemeral event must be accepted, got (%v, %q)", ok, reason)
	}
	if got, _ := store.GetEvent(event.ID); got != nil {
		t.Error("ephemeral event must not be persisted")
	}
	if ids := bus.broadcastIDs(); len(ids) != 1 || ids[0] != event.ID {
		t.Errorf("ephemeral event must still be broadcast, got %v", ids)
	}
}

func TestAccept_ExpiredSilentSuccess(t *testing.T) {
	pipeline, store, bus := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	event, _ := helpers.Expiring(kp, "already gone", time.Now().Unix()-10)

	ok, reason := pipeline.Accept(event)
	if !ok || reason != "" {
		t.Fatalf("expired event succeeds silently, got (%v, %q)", ok, reason)
	}
	if got, _ := store.GetEvent(event.ID); got != nil {
		t.Error("expired event must not be persisted")
	}
	if len(bus.broadcastIDs()) != 0 {
		t.Error("expired event must not be broadcast")
	}
}

func TestAccept_ContactListPubkeyPolicy(t *testing.T) {
	pipeline, store, _ := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()
	friend, _ := helpers.GenerateKeyPair()

	valid, _ := helpers.ContactList(kp, []string{friend.PublicKey})
	if ok, reason := pipeline.Accept(valid); !ok {
		t.Fatalf("well-formed contact list rejected: %q", reason)
	}

	invalid, _ := helpers.SignedEvent(kp, 3, "", nostr.Tags{{"p", "not-a-pubkey"}}, time.Now().Unix()+1)
	ok, reason := pipeline.Accept(invalid)
	if ok {
		t.Fatal("malformed contact list p-tag must be rejected")
	}
	if reason != "invalid: contact list p-tag has invalid pubkey format" {
		t.Errorf("reason = %q", reason)
	}
	if got, _ := store.GetEvent(invalid.ID); got != nil {
		t.Error("rejected contact list must not be persisted")
	}
}

func TestAccept_DuplicateIDIsNoOpSuccess(t *testing.T) {
	pipeline, store, _ := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	event, _ := helpers.TextNote(kp, "same twice")
	if ok, _ := pipeline.Accept(event); !ok {
		t.Fatal("first publish must succeed")
	}
	if ok, reason := pipeline.Accept(event); !ok || reason != "" {
		t.Fatalf("duplicate publish must succeed, got (%v, %q)", ok, reason)
	}

	count, _ := store.CountEvents(nostr.Filter{IDs: []string{event.ID}})
	if count != 1 {
		t.Errorf("duplicate publish must not create a second copy, count = %d", count)
	}
}

func TestAccept_FutureExpirationIsStored(t *testing.T) {
	pipeline, store, _ := setupPipeline(t)
	kp, _ := helpers.GenerateKeyPair()

	event, _ := helpers.Expiring(kp, "later", time.Now().Unix()+3600)
	if ok, _ := pipeline.Accept(event); !ok {
		t.Fatal("future-expiring event must be accepted")
	}
	if got, _ := store.GetEvent(event.ID); got == nil {
		t.Error("future-expiring event must be persisted")
	}
}
