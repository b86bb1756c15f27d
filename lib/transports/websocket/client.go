package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mattn/crystal-nostr-relay/lib/config"
	"github.com/mattn/crystal-nostr-relay/lib/filters"
	"github.com/mattn/crystal-nostr-relay/lib/logging"
	"github.com/mattn/crystal-nostr-relay/lib/stores"
)

// notifyBuffer bounds the per-client fan-out channel between the bus
// processor and the client's notifier goroutine.
const notifyBuffer = 100

// Client is one WebSocket connection and everything it owns: its
// subscriptions, a write mutex serializing frames from the sender
// goroutines, and a notifier goroutine that runs the per-subscription
// matching off the bus processor's path.
type Client struct {
	ID   string
	conn *websocket.Conn

	writeMu       sync.Mutex
	writeJSON     func(v interface{}) error
	subscriptions *xsync.MapOf[string, *Subscription]

	store  stores.Store
	notify chan *nostr.Event

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

func newClient(conn *websocket.Conn, store stores.Store) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		ID:            uuid.NewString(),
		conn:          conn,
		subscriptions: xsync.NewMapOf[string, *Subscription](),
		store:         store,
		notify:        make(chan *nostr.Event, notifyBuffer),
		ctx:           ctx,
		cancel:        cancel,
	}
	if conn != nil {
		client.writeJSON = conn.WriteJSON
	}

	go client.runNotifier()

	return client
}

// send writes one frame under the connection's write mutex. Sender
// goroutines and the message loop share the socket.
func (client *Client) send(msg interface{}) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	if err := client.writeJSON(msg); err != nil {
		if !isConnectionClosedError(err) {
			logging.Debugf("Error writing to client %s: %v", client.ID, err)
		}
		return err
	}
	return nil
}

func (client *Client) sendEvent(subID string, event *nostr.Event) {
	client.send(nostr.EventEnvelope{SubscriptionID: &subID, Event: *event})
}

// Subscribe installs a subscription and starts its sender and backfill
// goroutines. A REQ reusing an existing id replaces the old
// subscription first.
func (client *Client) Subscribe(id string, fs nostr.Filters) {
	if prior, ok := client.subscriptions.LoadAndDelete(id); ok {
		prior.cancel()
	}

	sub := newSubscription(id, fs, config.GetQueueCapacity())
	client.subscriptions.Store(id, sub)

	go client.runSender(sub)
	go client.runBackfill(sub)
}

// Unsubscribe cancels the subscription with the given id. Unknown ids
// are a no-op.
func (client *Client) Unsubscribe(id string) bool {
	if sub, ok := client.subscriptions.LoadAndDelete(id); ok {
		sub.cancel()
		return true
	}
	return false
}

// enqueueNotification hands an accepted event to this client's
// notifier without blocking the bus processor.
func (client *Client) enqueueNotification(event *nostr.Event) {
	if client.closed.Load() {
		return
	}
	select {
	case client.notify <- event:
	default:
		logging.Debugf("Client %s notification buffer full, dropping event %s", client.ID, event.ID)
	}
}

// runNotifier matches each broadcast event against this client's
// subscriptions and enqueues it where it fits. One goroutine per
// client keeps a slow client from stalling the others.
func (client *Client) runNotifier() {
	for {
		select {
		case <-client.ctx.Done():
			return
		case event := <-client.notify:
			client.subscriptions.Range(func(id string, sub *Subscription) bool {
				if filters.MatchAny(sub.filters, event) {
					sub.offer(event)
				}
				return true
			})
		}
	}
}

// Close tears the client down at most once: cancels every
// subscription, stops the notifier, and deregisters. Safe to call
// from any goroutine.
func (client *Client) Close() {
	if !client.closed.CompareAndSwap(false, true) {
		return
	}

	client.cancel()
	client.subscriptions.Range(func(id string, sub *Subscription) bool {
		sub.cancel()
		client.subscriptions.Delete(id)
		return true
	})

	removeClient(client)
}
