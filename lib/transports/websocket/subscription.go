package websocket

import (
	"context"
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/logging"
)

// Subscription is one REQ held by a client: a bounded delivery queue
// fed by backfill and live dispatch, drained by a dedicated sender
// goroutine that emits exactly one EOSE once backfill completes.
type Subscription struct {
	ID      string
	filters nostr.Filters

	queue chan *nostr.Event
	eose  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newSubscription(id string, fs nostr.Filters, capacity int) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscription{
		ID:      id,
		filters: fs,
		queue:   make(chan *nostr.Event, capacity),
		eose:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// offer enqueues a live event without blocking. A full queue drops the
// event: slow consumers lose live events rather than stalling the bus.
func (sub *Subscription) offer(event *nostr.Event) {
	select {
	case <-sub.ctx.Done():
	case sub.queue <- event:
	default:
		logging.Debugf("Subscription %s queue full, dropping event %s", sub.ID, event.ID)
	}
}

// push enqueues a historical event, blocking until there is room.
// Reports false once the subscription is cancelled.
func (sub *Subscription) push(event *nostr.Event) bool {
	select {
	case <-sub.ctx.Done():
		return false
	case sub.queue <- event:
		return true
	}
}

// runSender delivers queued events in enqueue order. When backfill
// signals completion it drains whatever is still queued, emits the
// EOSE marker, and keeps forwarding live events until cancellation.
func (client *Client) runSender(sub *Subscription) {
	eose := sub.eose

	for {
		select {
		case <-sub.ctx.Done():
			return
		case event := <-sub.queue:
			client.sendEvent(sub.ID, event)
		case <-eose:
			for drained := false; !drained; {
				select {
				case event := <-sub.queue:
					client.sendEvent(sub.ID, event)
				default:
					drained = true
				}
			}
			client.send(nostr.EOSEEnvelope(sub.ID))
			eose = nil
		}
	}
}

// runBackfill queries the stored matches for every filter,
// deduplicates across overlapping filters, merges them newest-first,
// and streams the result into the queue before firing the one-shot
// EOSE signal. Cancellation aborts without signalling.
func (client *Client) runBackfill(sub *Subscription) {
	seen := make(map[string]struct{})
	var backlog []*nostr.Event

	for _, filter := range sub.filters {
		if sub.ctx.Err() != nil {
			return
		}

		events, err := client.store.QueryEvents(filter)
		if err != nil {
			logging.Errorf("Historical query failed for subscription %s: %v", sub.ID, err)
			continue
		}

		for _, event := range events {
			if _, dup := seen[event.ID]; dup {
				continue
			}
			seen[event.ID] = struct{}{}
			backlog = append(backlog, event)
		}
	}

	// Each query is newest-first on its own; ordering must hold across
	// filters too.
	sort.SliceStable(backlog, func(i, j int) bool {
		return backlog[i].CreatedAt > backlog[j].CreatedAt
	})

	for _, event := range backlog {
		if !sub.push(event) {
			return
		}
	}

	close(sub.eose)
}
