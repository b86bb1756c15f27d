// Package verification checks event authenticity: the identity hash
// binding and the BIP-340 Schnorr signature over it.
package verification

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	jsoniter "github.com/json-iterator/go"
	"github.com/nbd-wtf/go-nostr"
)

// Canonical serialization must not HTML-escape; the identity hash is
// taken over the exact NIP-01 byte form.
var canonicalJSON = jsoniter.Config{EscapeHTML: false}.Froze()

// SerializeForID returns the canonical serialization the event id is
// the SHA-256 of: [0, pubkey, created_at, kind, tags, content].
func SerializeForID(event *nostr.Event) ([]byte, error) {
	// Absent tags serialize as [], never null
	tags := event.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}
	return canonicalJSON.Marshal([]interface{}{
		0,
		event.PubKey,
		event.CreatedAt,
		event.Kind,
		tags,
		event.Content,
	})
}

// ComputeID recomputes the event id from the event's fields.
func ComputeID(event *nostr.Event) (string, error) {
	serialized, err := SerializeForID(event)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(serialized)
	return hex.EncodeToString(hash[:]), nil
}

// Verify reports whether the event's id matches its fields and its
// signature is a valid BIP-340 signature of the id under its pubkey.
// Every failure mode yields false; callers never see an error.
func Verify(event *nostr.Event) bool {
	serialized, err := SerializeForID(event)
	if err != nil {
		return false
	}

	hash := sha256.Sum256(serialized)
	if hex.EncodeToString(hash[:]) != event.ID {
		return false
	}

	signatureBytes, err := hex.DecodeString(event.Sig)
	if err != nil {
		return false
	}
	// ParseSignature enforces r < p and s < n
	signature, err := schnorr.ParseSignature(signatureBytes)
	if err != nil {
		return false
	}

	pubKeyBytes, err := hex.DecodeString(event.PubKey)
	if err != nil {
		return false
	}
	// ParsePubKey lifts the x-only key to the even-y curve point
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return signature.Verify(hash[:], pubKey)
}
