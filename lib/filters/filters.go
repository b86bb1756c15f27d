// Package filters implements the in-memory filter match used for live
// dispatch and as the oracle for storage query results.
package filters

import (
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// Match reports whether the event satisfies every specified field of
// the filter. IDs and authors are prefix sets per NIP-01; an empty
// filter matches everything.
func Match(f nostr.Filter, ev *nostr.Event) bool {
	if len(f.IDs) > 0 && !matchesPrefix(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !matchesPrefix(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since != nil && ev.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && ev.CreatedAt > *f.Until {
		return false
	}
	// Tags – AND across tag names, OR within values
	for tagKey, wantValues := range f.Tags {
		name := strings.TrimPrefix(tagKey, "#")
		if !hasTagValue(ev.Tags, name, wantValues) {
			return false
		}
	}
	return true
}

// MatchAny reports whether any filter in the set matches the event
// (OR semantics across filters).
func MatchAny(fs nostr.Filters, ev *nostr.Event) bool {
	for _, f := range fs {
		if Match(f, ev) {
			return true
		}
	}
	return false
}

func matchesPrefix(prefixes []string, value string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

func containsInt(ii []int, v int) bool {
	for _, x := range ii {
		if x == v {
			return true
		}
	}
	return false
}

func hasTagValue(tags nostr.Tags, name string, wanted []string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			for _, wv := range wanted {
				if tag[1] == wv {
					return true
				}
			}
		}
	}
	return false
}
