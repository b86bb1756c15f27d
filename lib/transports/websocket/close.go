package websocket

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/logging"
)

// handleCloseMessage cancels the named subscription. CLOSE is
// idempotent; closing an unknown id is not an error.
func handleCloseMessage(client *Client, env *nostr.CloseEnvelope) {
	subID := string(*env)

	if !client.Unsubscribe(subID) {
		logging.Debugf("CLOSE for unknown subscription %s from client %s", subID, client.ID)
	}
}
