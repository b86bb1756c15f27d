// Package kinds classifies event kinds into their persistence policies
// and provides accessors for the well-known tags those policies read.
package kinds

import (
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

const (
	KindDeletion = 5
	KindContacts = 3
	KindGiftWrap = 1059
)

// IsEphemeral reports whether events of this kind are broadcast but
// never persisted.
func IsEphemeral(kind int) bool {
	return kind >= 20000 && kind < 30000
}

// IsReplaceable reports whether (pubkey, kind) holds at most one
// persisted event.
func IsReplaceable(kind int) bool {
	return kind == 0 || kind == 3 || (kind >= 10000 && kind < 20000)
}

// IsParameterizedReplaceable reports whether (pubkey, kind, d-tag)
// holds at most one persisted event.
func IsParameterizedReplaceable(kind int) bool {
	return kind >= 30000 && kind < 40000
}

func IsDeletion(kind int) bool {
	return kind == KindDeletion
}

// IsRegular covers everything that is persisted immutably.
func IsRegular(kind int) bool {
	return !IsEphemeral(kind) && !IsReplaceable(kind) &&
		!IsParameterizedReplaceable(kind) && !IsDeletion(kind)
}

// DTag returns the value of the first "d" tag, or "" if the tag is
// missing or has no value.
func DTag(tags nostr.Tags) string {
	for _, tag := range tags {
		if len(tag) >= 1 && tag[0] == "d" {
			if len(tag) >= 2 {
				return tag[1]
			}
			return ""
		}
	}
	return ""
}

// ETags returns the values of all "e" tags.
func ETags(tags nostr.Tags) []string {
	return tagValues(tags, "e")
}

// PTags returns the values of all "p" tags.
func PTags(tags nostr.Tags) []string {
	return tagValues(tags, "p")
}

func tagValues(tags nostr.Tags, name string) []string {
	var values []string
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			values = append(values, tag[1])
		}
	}
	return values
}

// Expiration returns the NIP-40 expiration timestamp of the event, if
// it carries one. Missing or unparsable values report ok == false.
func Expiration(tags nostr.Tags) (int64, bool) {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "expiration" {
			ts, err := strconv.ParseInt(tag[1], 10, 64)
			if err != nil {
				return 0, false
			}
			return ts, true
		}
	}
	return 0, false
}

// IsExpired reports whether the event carries an expiration timestamp
// at or before now (unix seconds).
func IsExpired(ev *nostr.Event, now int64) bool {
	ts, ok := Expiration(ev.Tags)
	return ok && ts <= now
}
