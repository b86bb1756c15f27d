// Package kind5 implements the deletion engine. A kind-5 event is a
// request to remove the events its "e" tags reference; the relay
// honors each target independently under the authorization rules and
// never surfaces per-target outcomes to the publisher.
package kind5

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/kinds"
	"github.com/mattn/crystal-nostr-relay/lib/logging"
	"github.com/mattn/crystal-nostr-relay/lib/stores"
)

// ProcessDeletion walks the deletion request's "e" tags and removes
// every target the requester is authorized to delete. Absent and
// unauthorized targets are skipped silently. Returns the number of
// events actually deleted.
func ProcessDeletion(store stores.Store, request *nostr.Event) int {
	deleted := 0

	for _, targetID := range kinds.ETags(request.Tags) {
		target, err := store.GetEvent(targetID)
		if err != nil {
			logging.Errorf("Deletion lookup failed for %s: %v", targetID, err)
			continue
		}
		if target == nil {
			continue
		}

		if !authorized(request, target) {
			logging.Debugf("Unauthorized deletion of %s by %s skipped", targetID, request.PubKey)
			continue
		}

		if err := store.DeleteEvent(targetID); err != nil {
			logging.Errorf("Failed to delete event %s: %v", targetID, err)
			continue
		}
		deleted++
	}

	return deleted
}

// authorized reports whether the requester may delete the target.
// Gift-wrap events (kind 1059) are deletable by any of their "p" tag
// recipients; everything else only by its author.
func authorized(request, target *nostr.Event) bool {
	if target.Kind == kinds.KindGiftWrap {
		for _, recipient := range kinds.PTags(target.Tags) {
			if recipient == request.PubKey {
				return true
			}
		}
		return false
	}
	return target.PubKey == request.PubKey
}
