package websocket

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/handlers/nostr/universal"
)

// handleEventMessage runs the published event through the acceptance
// pipeline and acknowledges with an OK frame. Acknowledgements go out
// in receive order because the message loop is single-threaded per
// connection.
func handleEventMessage(client *Client, env *nostr.EventEnvelope, pipeline *universal.Pipeline) {
	accepted, reason := pipeline.Accept(&env.Event)

	client.send(nostr.OKEnvelope{
		EventID: env.Event.ID,
		OK:      accepted,
		Reason:  reason,
	})
}
