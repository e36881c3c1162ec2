// Package filter implements the REQ filter algebra: a Filter's fields
// are AND'd together, while the several filters carried by one REQ are
// OR'd against each other (see MatchAny for the latter).
package filter

import (
	"encoding/json"

	"github.com/relaycore/nostrd/internal/event"
)

// Filter is one subscription criterion. A nil or empty slice field means
// "unconstrained"; only a populated slice restricts the match.
type Filter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	E       []string `json:"e,omitempty"`
	P       []string `json:"p,omitempty"`
	Since   uint64   `json:"since,omitempty"`
	Until   uint64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`

	hasSince bool
	hasUntil bool
	hasLimit bool
}

// wireFilter is the on-the-wire shape: it accepts both the bare field
// names and the "#e"/"#p" aliases on input, but always emits the
// "#e"/"#p" spelling.
type wireFilter struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	E       []string `json:"e,omitempty"`
	P       []string `json:"p,omitempty"`
	HashE   []string `json:"#e,omitempty"`
	HashP   []string `json:"#p,omitempty"`
	Since   *uint64  `json:"since,omitempty"`
	Until   *uint64  `json:"until,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
}

func (f Filter) MarshalJSON() ([]byte, error) {
	w := wireFilter{
		IDs:     f.IDs,
		Authors: f.Authors,
		Kinds:   f.Kinds,
		HashE:   f.E,
		HashP:   f.P,
	}
	if f.hasSince {
		w.Since = &f.Since
	}
	if f.hasUntil {
		w.Until = &f.Until
	}
	if f.hasLimit {
		w.Limit = &f.Limit
	}
	return json.Marshal(w)
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var w wireFilter
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = Filter{
		IDs:     w.IDs,
		Authors: w.Authors,
		Kinds:   w.Kinds,
		E:       firstNonNil(w.E, w.HashE),
		P:       firstNonNil(w.P, w.HashP),
	}
	if w.Since != nil {
		f.Since, f.hasSince = *w.Since, true
	}
	if w.Until != nil {
		f.Until, f.hasUntil = *w.Until, true
	}
	if w.Limit != nil {
		f.Limit, f.hasLimit = *w.Limit, true
	}
	return nil
}

func firstNonNil(a, b []string) []string {
	if a != nil {
		return a
	}
	return b
}

// HasLimit reports whether the filter carries an explicit limit. Limit
// only bounds the initial backlog scan; it is never consulted by
// live-match broadcast.
func (f Filter) HasLimit() (int, bool) {
	return f.Limit, f.hasLimit
}

// Match reports whether ev satisfies every constrained field of f.
// ids/authors use prefix matching; e/p match only the event's FIRST
// "e"/"p" tag, a deliberately preserved quirk of the relay this was
// ported from rather than a check against every tag.
func Match(ev *event.Event, f Filter) bool {
	if len(f.IDs) > 0 && !matchPrefixAny(ev.ID, f.IDs) {
		return false
	}
	if len(f.Authors) > 0 && !matchPrefixAny(ev.PubKey, f.Authors) {
		return false
	}
	if len(f.Kinds) > 0 && !matchKind(ev.Kind, f.Kinds) {
		return false
	}
	if len(f.E) > 0 {
		id, ok := ev.Tags.FirstEventID()
		if !ok || !containsString(f.E, id) {
			return false
		}
	}
	if len(f.P) > 0 {
		pks, ok := ev.Tags.FirstPubKeys()
		if !ok || !intersects(f.P, pks) {
			return false
		}
	}
	if (f.hasSince || f.Since != 0) && ev.CreatedAt < f.Since {
		return false
	}
	if (f.hasUntil || f.Until != 0) && ev.CreatedAt > f.Until {
		return false
	}
	return true
}

// MatchAny reports whether ev satisfies at least one of filters (the
// OR semantics of a multi-filter REQ). An empty filter list matches
// nothing.
func MatchAny(ev *event.Event, filters []Filter) bool {
	for _, f := range filters {
		if Match(ev, f) {
			return true
		}
	}
	return false
}

func matchPrefixAny(value string, prefixes []string) bool {
	for _, p := range prefixes {
		if matchPrefix(value, p) {
			return true
		}
	}
	return false
}

// matchPrefix reports whether value equals prefix, or prefix is a
// strict prefix of value (the filter entry is shorter than a full
// 64-char id/pubkey).
func matchPrefix(value, prefix string) bool {
	if value == prefix {
		return true
	}
	if len(prefix) < 64 && len(value) >= len(prefix) && value[:len(prefix)] == prefix {
		return true
	}
	return false
}

func matchKind(kind int, kinds []int) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
