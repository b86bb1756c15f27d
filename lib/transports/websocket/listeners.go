package websocket

import (
	"sync"

	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mattn/crystal-nostr-relay/lib/logging"
)

// Process-wide registry of connected clients.
var clients = xsync.NewMapOf[string, *Client]()

// Buffered channel for async event notifications. Accepted events are
// queued here by the bus and fanned out by a dedicated goroutine.
var notificationChan = make(chan *nostr.Event, 1000)

var (
	notificationProcessorOnce sync.Once
	shutdownChan              = make(chan struct{})
	shutdownOnce              sync.Once
)

func registerClient(client *Client) {
	clients.Store(client.ID, client)
}

func removeClient(client *Client) {
	clients.Delete(client.ID)
}

// Bus is the broadcast hand-off the acceptance pipeline publishes
// through. Broadcast never blocks the publisher's message loop.
type Bus struct{}

func (Bus) Broadcast(event *nostr.Event) {
	notifyListeners(event)
}

// StartNotificationProcessor starts the background goroutine that fans
// accepted events out to clients. Safe to call multiple times; only
// starts once.
func StartNotificationProcessor() {
	notificationProcessorOnce.Do(func() {
		go func() {
			for {
				select {
				case event := <-notificationChan:
					processNotification(event)
				case <-shutdownChan:
					// Drain remaining notifications before exiting
					for {
						select {
						case event := <-notificationChan:
							processNotification(event)
						default:
							return
						}
					}
				}
			}
		}()
		logging.Info("Notification processor started")
	})
}

// processNotification hands the event to every client's notifier. The
// per-subscription matching happens on each client's own goroutine, so
// the processor only does non-blocking channel sends here.
func processNotification(event *nostr.Event) {
	clients.Range(func(id string, client *Client) bool {
		client.enqueueNotification(event)
		return true
	})
}

// notifyListeners queues an event for asynchronous fan-out. A full
// channel drops the notification rather than blocking the publisher.
func notifyListeners(event *nostr.Event) {
	select {
	case notificationChan <- event:
	default:
		logging.Infof("Notification channel full, dropping notification for event %s", event.ID)
	}
}

func stopNotificationProcessor() {
	shutdownOnce.Do(func() {
		close(shutdownChan)
	})
}
