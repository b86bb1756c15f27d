package websocket

import (
	"fmt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/config"
	"github.com/mattn/crystal-nostr-relay/lib/handlers/nostr/universal"
	"github.com/mattn/crystal-nostr-relay/lib/logging"
	"github.com/mattn/crystal-nostr-relay/lib/stores"
)

// BuildServer assembles the fiber app: the NIP-11 middleware and the
// WebSocket endpoint at the root path.
func BuildServer(store stores.Store, pipeline *universal.Pipeline) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(handleRelayInfoRequests)

	app.Get("/", websocket.New(func(conn *websocket.Conn) {
		handleConnection(conn, store, pipeline)
	}))

	return app
}

// StartServer starts the broadcast processor and blocks serving the
// configured port.
func StartServer(app *fiber.App) error {
	StartNotificationProcessor()

	port := config.GetPort()
	logging.Infof("Relay listening on port %d", port)

	return app.Listen(fmt.Sprintf(":%d", port))
}

// Shutdown stops accepting connections and drains the broadcast
// processor.
func Shutdown(app *fiber.App) error {
	stopNotificationProcessor()
	return app.Shutdown()
}

// handleConnection owns one client session: register, loop over
// incoming frames, tear down on the first read error.
func handleConnection(conn *websocket.Conn, store stores.Store, pipeline *universal.Pipeline) {
	client := newClient(conn, store)
	registerClient(client)
	defer client.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !isConnectionClosedError(err) {
				logging.Debugf("Read error for client %s: %v", client.ID, err)
			}
			return
		}

		processMessage(client, message, pipeline)
	}
}

// processMessage decodes one frame and dispatches it. Malformed or
// unknown frames produce a NOTICE and the session continues.
func processMessage(client *Client, message []byte, pipeline *universal.Pipeline) {
	rawMessage := nostr.ParseMessage(message)

	switch env := rawMessage.(type) {
	case *nostr.EventEnvelope:
		handleEventMessage(client, env, pipeline)

	case *nostr.ReqEnvelope:
		handleReqMessage(client, env)

	case *nostr.CountEnvelope:
		handleCountMessage(client, env)

	case *nostr.CloseEnvelope:
		handleCloseMessage(client, env)

	case nil:
		client.send(nostr.NoticeEnvelope("could not parse message"))

	default:
		client.send(nostr.NoticeEnvelope("unsupported message type"))
	}
}
