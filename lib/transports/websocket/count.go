package websocket

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/logging"
)

// handleCountMessage answers a COUNT frame with the sum of the store's
// per-filter counts. Events matching several filters are counted once
// per filter; clients wanting exact figures should use disjoint
// filters.
func handleCountMessage(client *Client, env *nostr.CountEnvelope) {
	var total int64

	for _, filter := range env.Filters {
		count, err := client.store.CountEvents(filter)
		if err != nil {
			logging.Errorf("Count query failed for subscription %s: %v", env.SubscriptionID, err)
			client.send(nostr.NoticeEnvelope("count failed"))
			return
		}
		total += count
	}

	client.send(nostr.CountEnvelope{
		SubscriptionID: env.SubscriptionID,
		Count:          &total,
	})
}
