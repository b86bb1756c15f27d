// Package helpers provides signed test events for the relay's test
// suites.
package helpers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// TestKeyPair is a throwaway signing identity.
type TestKeyPair struct {
	PrivateKey string
	PublicKey  string
}

func GenerateKeyPair() (*TestKeyPair, error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}
	return &TestKeyPair{PrivateKey: sk, PublicKey: pk}, nil
}

// SignedEvent builds and signs an event with an explicit created_at so
// tests can control replacement and ordering.
func SignedEvent(kp *TestKeyPair, kind int, content string, tags nostr.Tags, createdAt int64) (*nostr.Event, error) {
	event := &nostr.Event{
		PubKey:    kp.PublicKey,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := event.Sign(kp.PrivateKey); err != nil {
		return nil, fmt.Errorf("failed to sign event: %w", err)
	}
	return event, nil
}

// TextNote creates a signed kind-1 note timestamped now.
func TextNote(kp *TestKeyPair, content string, tags ...nostr.Tag) (*nostr.Event, error) {
	return SignedEvent(kp, 1, content, tags, time.Now().Unix())
}

// Metadata creates a signed kind-0 profile event.
func Metadata(kp *TestKeyPair, content string, createdAt int64) (*nostr.Event, error) {
	return SignedEvent(kp, 0, content, nil, createdAt)
}

// ContactList creates a signed kind-3 event with one "p" tag per
// contact.
func ContactList(kp *TestKeyPair, contacts []string) (*nostr.Event, error) {
	var tags nostr.Tags
	for _, contact := range contacts {
		tags = append(tags, nostr.Tag{"p", contact})
	}
	return SignedEvent(kp, 3, "", tags, time.Now().Unix())
}

// Deletion creates a signed kind-5 event referencing the given ids.
func Deletion(kp *TestKeyPair, eventIDs ...string) (*nostr.Event, error) {
	var tags nostr.Tags
	for _, id := range eventIDs {
		tags = append(tags, nostr.Tag{"e", id})
	}
	return SignedEvent(kp, 5, "", tags, time.Now().Unix())
}

// GiftWrap creates a signed kind-1059 event addressed to the given
// recipient pubkeys.
func GiftWrap(kp *TestKeyPair, recipients ...string) (*nostr.Event, error) {
	var tags nostr.Tags
	for _, recipient := range recipients {
		tags = append(tags, nostr.Tag{"p", recipient})
	}
	return SignedEvent(kp, 1059, "wrapped", tags, time.Now().Unix())
}

// Expiring creates a signed kind-1 note carrying an expiration tag.
func Expiring(kp *TestKeyPair, content string, expiresAt int64) (*nostr.Event, error) {
	tags := nostr.Tags{{"expiration", strconv.FormatInt(expiresAt, 10)}}
	return SignedEvent(kp, 1, content, tags, time.Now().Unix())
}

// Addressable creates a signed parameterized-replaceable event keyed
// by the given d tag.
func Addressable(kp *TestKeyPair, kind int, dTag, content string, createdAt int64) (*nostr.Event, error) {
	tags := nostr.Tags{{"d", dTag}}
	return SignedEvent(kp, kind, content, tags, createdAt)
}
