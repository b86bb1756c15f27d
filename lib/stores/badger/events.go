package badger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/nbd-wtf/go-nostr"

	"github.com/mattn/crystal-nostr-relay/lib/filters"
	"github.com/mattn/crystal-nostr-relay/lib/kinds"
	"github.com/mattn/crystal-nostr-relay/lib/stores"
)

// ───────────────────────────────────────────────────────────────────
// Key Schema (raw BadgerDB on the event path)
//
//   evt:{eventID}                                      → CBOR(storedEvent)
//   eti:{kind}:{hexTime16}:{eventID}                   → nil   (kind-time)
//   eai:{pubkey}:{hexTime16}:{eventID}                 → nil   (author-time)
//   ets:{hexTime16}:{eventID}                          → nil   (global time)
//   tag:{tagName}:{tagValue}\x00{hexTime16}:{eventID}  → nil   (tag)
//   exp:{hexTime16}:{eventID}                          → nil   (expiration)
//   cor:{pubkey}:{kind}:{dTag}                         → CBOR(coordinate)
//
// hexTime16 = timeHex(createdAt): the signed timestamp with its sign
// bit flipped, as 16 zero-padded hex chars, so lexicographic order
// equals numeric order even for pre-1970 values. cor: holds the
// single surviving event per replaceable coordinate.
// ───────────────────────────────────────────────────────────────────

const (
	prefixEvent      = "evt:"
	prefixKindTime   = "eti:"
	prefixAuthorTime = "eai:"
	prefixEventTime  = "ets:"
	prefixTag        = "tag:"
	prefixExpiration = "exp:"
	prefixCoordinate = "cor:"
)

// storedEvent is the CBOR value stored at evt:{id}.
// The event ID lives in the key so it is not duplicated here.
type storedEvent struct {
	PubKey    string     `cbor:"p"`
	CreatedAt int64      `cbor:"c"`
	Kind      int        `cbor:"k"`
	Tags      nostr.Tags `cbor:"t"`
	Content   string     `cbor:"n"`
	Sig       string     `cbor:"s"`
}

// coordinate records which event currently occupies a replaceable
// (pubkey, kind[, d-tag]) slot.
type coordinate struct {
	ID        string `cbor:"i"`
	CreatedAt int64  `cbor:"c"`
}

// ──────── key builders ────────

// timeHex encodes a signed timestamp as 16 hex chars whose
// lexicographic order matches numeric order. Flipping the sign bit
// keeps negative timestamps below positive ones instead of wrapping
// them to the top of the keyspace.
func timeHex(ts int64) string {
	return fmt.Sprintf("%016x", uint64(ts)^(1<<63))
}

func parseTimeHex(s string) int64 {
	v, _ := strconv.ParseUint(s, 16, 64)
	return int64(v ^ (1 << 63))
}

func eventKey(id string) []byte {
	return []byte(prefixEvent + id)
}

func kindTimeKey(kind int, ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:%s", prefixKindTime, kind, timeHex(ts), id))
}

func authorTimeKey(pub string, ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAuthorTime, pub, timeHex(ts), id))
}

func eventTimeKey(ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixEventTime, timeHex(ts), id))
}

func tagIndexKey(name, value string, ts int64, id string) []byte {
	// \x00 separates variable-length tagValue from the fixed-length suffix
	return []byte(fmt.Sprintf("%s%s:%s\x00%s:%s", prefixTag, name, value, timeHex(ts), id))
}

func expirationKey(ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixExpiration, timeHex(ts), id))
}

func coordinateKey(pub string, kind int, dTag string) []byte {
	return []byte(fmt.Sprintf("%s%s:%d:%s", prefixCoordinate, pub, kind, dTag))
}

// ──────── key parsers ────────

// extractEventIDFromKey returns the last 64 characters of any index key
// (event IDs are always 64-char hex at the tail).
func extractEventIDFromKey(key []byte) string {
	if len(key) < 64 {
		return ""
	}
	return string(key[len(key)-64:])
}

// extractTimestampFromKey returns the embedded timestamp. Layout: …{16hex}:{64id}
func extractTimestampFromKey(key []byte) int64 {
	if len(key) < 64+1+16 {
		return 0
	}
	return parseTimeHex(string(key[len(key)-64-1-16 : len(key)-64-1]))
}

// ──────── seek helpers (reverse iteration) ────────

// seekEnd returns prefix + 0xFF padding so a reverse iterator starts
// past all matching keys.
func seekEnd(prefix []byte) []byte {
	out := make([]byte, 0, len(prefix)+80)
	out = append(out, prefix...)
	for i := 0; i < 80; i++ {
		out = append(out, 0xFF)
	}
	return out
}

// seekBefore positions a reverse iterator at or before a given
// timestamp within a prefix (for Until bounds).
func seekBefore(prefix []byte, until int64) []byte {
	ts := timeHex(until) + ":"
	out := make([]byte, 0, len(prefix)+17+64)
	out = append(out, prefix...)
	out = append(out, []byte(ts)...)
	for i := 0; i < 64; i++ {
		out = append(out, 0xFF)
	}
	return out
}

// ──────── low-level helpers ────────

// getEvent fetches and decodes a single event by ID within a read transaction.
func getEvent(tx *badger.Txn, id string) (*nostr.Event, error) {
	item, err := tx.Get(eventKey(id))
	if err != nil {
		return nil, err
	}
	var se storedEvent
	err = item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &se)
	})
	if err != nil {
		return nil, err
	}
	return &nostr.Event{
		ID:        id,
		PubKey:    se.PubKey,
		CreatedAt: nostr.Timestamp(se.CreatedAt),
		Kind:      se.Kind,
		Tags:      se.Tags,
		Content:   se.Content,
		Sig:       se.Sig,
	}, nil
}

// writeEvent writes the event value and every index key.
func writeEvent(tx *badger.Txn, ev *nostr.Event) error {
	ts := int64(ev.CreatedAt)

	val, err := cbor.Marshal(storedEvent{
		PubKey:    ev.PubKey,
		CreatedAt: ts,
		Kind:      ev.Kind,
		Tags:      ev.Tags,
		Content:   ev.Content,
		Sig:       ev.Sig,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := tx.Set(eventKey(ev.ID), val); err != nil {
		return err
	}
	if err := tx.Set(kindTimeKey(ev.Kind, ts, ev.ID), nil); err != nil {
		return err
	}
	if err := tx.Set(authorTimeKey(ev.PubKey, ts, ev.ID), nil); err != nil {
		return err
	}
	if err := tx.Set(eventTimeKey(ts, ev.ID), nil); err != nil {
		return err
	}
	for _, tag := range ev.Tags {
		if len(tag) < 2 || len(tag[0]) != 1 {
			continue
		}
		if err := tx.Set(tagIndexKey(tag[0], tag[1], ts, ev.ID), nil); err != nil {
			return err
		}
	}
	if expTS, ok := kinds.Expiration(ev.Tags); ok {
		if err := tx.Set(expirationKey(expTS, ev.ID), nil); err != nil {
			return err
		}
	}
	return nil
}

// dropEvent removes the event value and every index key.
func dropEvent(tx *badger.Txn, ev *nostr.Event) error {
	ts := int64(ev.CreatedAt)

	if err := tx.Delete(eventKey(ev.ID)); err != nil {
		return err
	}
	// Best-effort index deletes
	_ = tx.Delete(kindTimeKey(ev.Kind, ts, ev.ID))
	_ = tx.Delete(authorTimeKey(ev.PubKey, ts, ev.ID))
	_ = tx.Delete(eventTimeKey(ts, ev.ID))
	for _, tag := range ev.Tags {
		if len(tag) < 2 || len(tag[0]) != 1 {
			continue
		}
		_ = tx.Delete(tagIndexKey(tag[0], tag[1], ts, ev.ID))
	}
	if expTS, ok := kinds.Expiration(ev.Tags); ok {
		_ = tx.Delete(expirationKey(expTS, ev.ID))
	}
	return nil
}

// supersedes reports whether the incoming event wins a replaceable
// slot against the current occupant: strictly newer created_at, or
// equal created_at with the lexicographically smaller id.
func supersedes(incoming *nostr.Event, current coordinate) bool {
	if int64(incoming.CreatedAt) != current.CreatedAt {
		return int64(incoming.CreatedAt) > current.CreatedAt
	}
	return incoming.ID < current.ID
}

// ──────── StoreEvent ────────

// StoreEvent inserts the event. Duplicate ids are a no-op. For
// replaceable kinds the delete-then-insert runs inside this single
// transaction; an incoming event that loses the slot tiebreak is
// dropped without error so the coordinate keeps exactly one occupant.
func (store *BadgerStore) StoreEvent(ev *nostr.Event) error {
	if store.IsClosed() {
		return fmt.Errorf("database is closed")
	}

	return store.Database.Badger().Update(func(tx *badger.Txn) error {
		// Duplicate id → no-op success
		if _, err := tx.Get(eventKey(ev.ID)); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		replaceable := kinds.IsReplaceable(ev.Kind) || kinds.IsParameterizedReplaceable(ev.Kind)
		if replaceable {
			dTag := ""
			if kinds.IsParameterizedReplaceable(ev.Kind) {
				dTag = kinds.DTag(ev.Tags)
			}
			corKey := coordinateKey(ev.PubKey, ev.Kind, dTag)

			item, err := tx.Get(corKey)
			if err == nil {
				var current coordinate
				if err := item.Value(func(val []byte) error {
					return cbor.Unmarshal(val, &current)
				}); err != nil {
					return err
				}
				if !supersedes(ev, current) {
					// Slot already holds a newer event; drop the incoming one.
					return nil
				}
				if old, err := getEvent(tx, current.ID); err == nil {
					if err := dropEvent(tx, old); err != nil {
						return err
					}
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			corVal, err := cbor.Marshal(coordinate{ID: ev.ID, CreatedAt: int64(ev.CreatedAt)})
			if err != nil {
				return err
			}
			if err := tx.Set(corKey, corVal); err != nil {
				return err
			}
		}

		return writeEvent(tx, ev)
	})
}

// ──────── GetEvent / DeleteEvent ────────

// GetEvent returns the stored event, or (nil, nil) when absent.
func (store *BadgerStore) GetEvent(id string) (*nostr.Event, error) {
	if store.IsClosed() {
		return nil, fmt.Errorf("database is closed")
	}

	var ev *nostr.Event
	err := store.Database.Badger().View(func(tx *badger.Txn) error {
		var e error
		ev, e = getEvent(tx, id)
		if e == badger.ErrKeyNotFound {
			ev = nil
			return nil
		}
		return e
	})
	return ev, err
}

// DeleteEvent removes the event and its indexes. Absent ids are a no-op.
func (store *BadgerStore) DeleteEvent(id string) error {
	if store.IsClosed() {
		return fmt.Errorf("database is closed")
	}

	return store.Database.Badger().Update(func(tx *badger.Txn) error {
		ev, err := getEvent(tx, id)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		if err := dropEvent(tx, ev); err != nil {
			return err
		}

		// Release the replaceable slot if this event held it
		if kinds.IsReplaceable(ev.Kind) || kinds.IsParameterizedReplaceable(ev.Kind) {
			dTag := ""
			if kinds.IsParameterizedReplaceable(ev.Kind) {
				dTag = kinds.DTag(ev.Tags)
			}
			corKey := coordinateKey(ev.PubKey, ev.Kind, dTag)
			if item, err := tx.Get(corKey); err == nil {
				var current coordinate
				if err := item.Value(func(val []byte) error {
					return cbor.Unmarshal(val, &current)
				}); err == nil && current.ID == id {
					_ = tx.Delete(corKey)
				}
			}
		}
		return nil
	})
}

// ──────── QueryEvents / CountEvents ────────

func (store *BadgerStore) QueryEvents(filter nostr.Filter) ([]*nostr.Event, error) {
	if store.IsClosed() {
		return nil, fmt.Errorf("database is closed")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = stores.DefaultQueryLimit
	}

	var events []*nostr.Event
	err := store.Database.Badger().View(func(tx *badger.Txn) error {
		return iteratePrefixes(tx, planQuery(filter), filter, limit, func(ev *nostr.Event) bool {
			events = append(events, ev)
			return true
		})
	})
	if err != nil {
		return nil, err
	}

	// Multiple prefixes may interleave timestamps – re-sort and truncate.
	if len(events) > 1 {
		sort.Slice(events, func(i, j int) bool {
			return events[i].CreatedAt > events[j].CreatedAt
		})
	}
	if len(events) > limit {
		events = events[:limit]
	}

	return events, nil
}

// CountEvents counts matches without a limit.
func (store *BadgerStore) CountEvents(filter nostr.Filter) (int64, error) {
	if store.IsClosed() {
		return 0, fmt.Errorf("database is closed")
	}

	var count int64
	err := store.Database.Badger().View(func(tx *badger.Txn) error {
		return iteratePrefixes(tx, planQuery(filter), filter, 0, func(*nostr.Event) bool {
			count++
			return true
		})
	})
	return count, err
}

// ──────── query planning ────────

type queryPlan struct {
	prefixes [][]byte
	// timeOrdered is true when every prefix pins a full index value, so
	// keys under it sort by timestamp and Since/Until can cut iteration.
	timeOrdered bool
	// direct ids (64-char) are point lookups instead of scans
	directIDs []string
}

// planQuery picks the cheapest index for the filter, mirroring the
// write-side key schema. Prefix-valued ids/authors fall back to wider
// scans that the in-memory match narrows down.
func planQuery(filter nostr.Filter) queryPlan {
	switch {
	case len(filter.IDs) > 0:
		var plan queryPlan
		for _, id := range filter.IDs {
			if len(id) == 64 {
				plan.directIDs = append(plan.directIDs, id)
			} else {
				plan.prefixes = append(plan.prefixes, []byte(prefixEvent+id))
			}
		}
		return plan

	case len(filter.Tags) > 0:
		var name string
		var values []string
		for k, v := range filter.Tags {
			name = strings.TrimPrefix(k, "#")
			values = v
			break
		}
		prefixes := make([][]byte, len(values))
		for i, v := range values {
			prefixes[i] = []byte(fmt.Sprintf("%s%s:%s\x00", prefixTag, name, v))
		}
		return queryPlan{prefixes: prefixes, timeOrdered: true}

	case len(filter.Authors) > 0:
		prefixes := make([][]byte, len(filter.Authors))
		timeOrdered := true
		for i, a := range filter.Authors {
			if len(a) == 64 {
				prefixes[i] = []byte(prefixAuthorTime + a + ":")
			} else {
				// Author prefix spans multiple pubkeys; keys are no
				// longer time-sorted under it.
				prefixes[i] = []byte(prefixAuthorTime + a)
				timeOrdered = false
			}
		}
		return queryPlan{prefixes: prefixes, timeOrdered: timeOrdered}

	case len(filter.Kinds) > 0:
		prefixes := make([][]byte, len(filter.Kinds))
		for i, k := range filter.Kinds {
			prefixes[i] = []byte(fmt.Sprintf("%s%d:", prefixKindTime, k))
		}
		return queryPlan{prefixes: prefixes, timeOrdered: true}

	default:
		return queryPlan{prefixes: [][]byte{[]byte(prefixEventTime)}, timeOrdered: true}
	}
}

// iteratePrefixes walks the planned index newest-first, applies the
// full filter plus expiration suppression, and hands each match to
// emit. A positive limit caps the matches taken from each time-ordered
// prefix: the newest limit matches per prefix are enough to hold the
// global top limit after the caller's merge. emit returns false to
// stop early.
func iteratePrefixes(tx *badger.Txn, plan queryPlan, filter nostr.Filter, limit int, emit func(*nostr.Event) bool) error {
	now := time.Now().Unix()
	seen := make(map[string]struct{})

	// accept reports whether the event counted as a match and whether
	// iteration should continue.
	accept := func(ev *nostr.Event) (matched, cont bool) {
		if _, dup := seen[ev.ID]; dup {
			return false, true
		}
		seen[ev.ID] = struct{}{}
		if kinds.IsExpired(ev, now) {
			return false, true
		}
		if !filters.Match(filter, ev) {
			return false, true
		}
		return true, emit(ev)
	}

	for _, id := range plan.directIDs {
		ev, err := getEvent(tx, id)
		if err == badger.ErrKeyNotFound {
			continue
		}
		if err != nil {
			return err
		}
		if _, cont := accept(ev); !cont {
			return nil
		}
	}

	for _, prefix := range plan.prefixes {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // index keys carry no value
		opts.Reverse = true
		opts.Prefix = prefix // required for reverse prefix iteration

		it := tx.NewIterator(opts)

		sk := seekEnd(prefix)
		if plan.timeOrdered && filter.Until != nil {
			sk = seekBefore(prefix, int64(*filter.Until))
		}

		matches := 0
		stopped := false
		for it.Seek(sk); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			var ev *nostr.Event
			var err error
			if strings.HasPrefix(string(key), prefixEvent) {
				// evt: scan (id prefix) – the key tail is the id
				ev, err = getEvent(tx, string(key[len(prefixEvent):]))
			} else {
				if plan.timeOrdered && filter.Since != nil &&
					extractTimestampFromKey(key) < int64(*filter.Since) {
					// Everything older can be skipped
					break
				}
				ev, err = getEvent(tx, extractEventIDFromKey(key))
			}
			if err != nil {
				continue
			}

			matched, cont := accept(ev)
			if matched {
				matches++
			}
			if !cont {
				stopped = true
				break
			}
			if limit > 0 && plan.timeOrdered && matches >= limit {
				// This prefix already contributed its newest limit matches
				break
			}
		}
		it.Close()
		if stopped {
			return nil
		}
	}

	return nil
}

// ──────── expiration sweep ────────

// DeleteExpired removes every event whose expiration timestamp is at
// or before now. Returns the number of events deleted.
func (store *BadgerStore) DeleteExpired(now int64) (int, error) {
	if store.IsClosed() {
		return 0, fmt.Errorf("database is closed")
	}

	var ids []string
	err := store.Database.Badger().View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(prefixExpiration)
		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if extractTimestampFromKey(key) > now {
				break
			}
			ids = append(ids, extractEventIDFromKey(key))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := store.DeleteEvent(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
