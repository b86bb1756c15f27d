package websocket

import (
	"github.com/nbd-wtf/go-nostr"
)

// handleReqMessage installs (or replaces) a subscription. Backfill,
// the EOSE marker, and live delivery are all driven by the
// subscription's own goroutines.
func handleReqMessage(client *Client, env *nostr.ReqEnvelope) {
	if env.SubscriptionID == "" {
		client.send(nostr.NoticeEnvelope("REQ requires a subscription id"))
		return
	}

	client.Subscribe(env.SubscriptionID, env.Filters)
}
