package filters

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func testEvent() *nostr.Event {
	return &nostr.Event{
		ID:        "abcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890",
		PubKey:    "1111222233334444555566667777888899990000aaaabbbbccccddddeeeeffff",
		CreatedAt: 1000,
		Kind:      1,
		Tags:      nostr.Tags{{"e", "target"}, {"p", "recipient"}, {"t", "nostr"}},
		Content:   "hello",
	}
}

func ts(v int64) *nostr.Timestamp {
	t := nostr.Timestamp(v)
	return &t
}

func TestMatch_EmptyFilterMatchesAll(t *testing.T) {
	if !Match(nostr.Filter{}, testEvent()) {
		t.Error("empty filter must match every event")
	}
}

func TestMatch_IDPrefix(t *testing.T) {
	ev := testEvent()

	if !Match(nostr.Filter{IDs: []string{ev.ID}}, ev) {
		t.Error("full id must match")
	}
	if !Match(nostr.Filter{IDs: []string{"abcdef"}}, ev) {
		t.Error("id prefix must match")
	}
	if Match(nostr.Filter{IDs: []string{"ffff"}}, ev) {
		t.Error("non-matching id prefix must not match")
	}
}

func TestMatch_AuthorPrefix(t *testing.T) {
	ev := testEvent()

	if !Match(nostr.Filter{Authors: []string{"11112222"}}, ev) {
		t.Error("author prefix must match")
	}
	if Match(nostr.Filter{Authors: []string{"9999"}}, ev) {
		t.Error("non-matching author must not match")
	}
}

func TestMatch_Kinds(t *testing.T) {
	ev := testEvent()

	if !Match(nostr.Filter{Kinds: []int{0, 1, 2}}, ev) {
		t.Error("kind in set must match")
	}
	if Match(nostr.Filter{Kinds: []int{0, 2}}, ev) {
		t.Error("kind not in set must not match")
	}
}

func TestMatch_SinceUntilInclusive(t *testing.T) {
	ev := testEvent() // CreatedAt 1000

	if !Match(nostr.Filter{Since: ts(1000), Until: ts(1000)}, ev) {
		t.Error("since and until are inclusive bounds")
	}
	if Match(nostr.Filter{Since: ts(1001)}, ev) {
		t.Error("event older than since must not match")
	}
	if Match(nostr.Filter{Until: ts(999)}, ev) {
		t.Error("event newer than until must not match")
	}
}

func TestMatch_Tags(t *testing.T) {
	ev := testEvent()

	if !Match(nostr.Filter{Tags: nostr.TagMap{"#e": {"target"}}}, ev) {
		t.Error("tag value in set must match")
	}
	if !Match(nostr.Filter{Tags: nostr.TagMap{"#e": {"other", "target"}}}, ev) {
		t.Error("any tag value in set must match (OR within a name)")
	}
	if Match(nostr.Filter{Tags: nostr.TagMap{"#e": {"missing"}}}, ev) {
		t.Error("absent tag value must not match")
	}
	// AND across tag names
	if !Match(nostr.Filter{Tags: nostr.TagMap{"#e": {"target"}, "#p": {"recipient"}}}, ev) {
		t.Error("all named tags present must match")
	}
	if Match(nostr.Filter{Tags: nostr.TagMap{"#e": {"target"}, "#p": {"other"}}}, ev) {
		t.Error("one failing tag name must fail the filter")
	}
}

func TestMatch_CombinedFields(t *testing.T) {
	ev := testEvent()
	filter := nostr.Filter{
		Authors: []string{"1111"},
		Kinds:   []int{1},
		Since:   ts(500),
		Tags:    nostr.TagMap{"#t": {"nostr"}},
	}
	if !Match(filter, ev) {
		t.Error("every specified field matches, so the filter must match")
	}

	filter.Kinds = []int{2}
	if Match(filter, ev) {
		t.Error("one failing field must fail the whole filter")
	}
}

func TestMatchAny(t *testing.T) {
	ev := testEvent()
	fs := nostr.Filters{
		{Kinds: []int{7}},
		{Authors: []string{"1111"}},
	}
	if !MatchAny(fs, ev) {
		t.Error("second filter matches, MatchAny must be true")
	}
	if MatchAny(nostr.Filters{{Kinds: []int{7}}}, ev) {
		t.Error("no filter matches, MatchAny must be false")
	}
	if MatchAny(nostr.Filters{}, ev) {
		t.Error("empty filter set matches nothing")
	}
}
