package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tag is one entry of an event's tag list. Concrete implementations are
// EventTag, PubKeyTag and GenericTag.
type Tag interface {
	// Wire returns the tag's on-the-wire form: a flat array of strings
	// with the tag kind ("e", "p", or a custom prefix) in position 0.
	Wire() []string
}

// EventTag is an "e" tag: a reference to another event, optionally
// carrying a recommended relay and a thread marker.
type EventTag struct {
	EventID  string
	RelayURL string
	HasRelay bool
	Marker   Marker
	HasMarker bool
}

func (t EventTag) Wire() []string {
	out := []string{"e", t.EventID}
	if t.HasRelay {
		out = append(out, t.RelayURL)
	}
	if t.HasMarker {
		if len(out) == 2 {
			out = append(out, "")
		}
		out = append(out, string(t.Marker))
	}
	return out
}

// PubKeyTag is a "p" tag: one or more participant pubkeys, optionally
// followed by a recommended relay URL.
type PubKeyTag struct {
	PubKeys  []string
	RelayURL string
	HasRelay bool
}

func (t PubKeyTag) Wire() []string {
	out := append([]string{"p"}, t.PubKeys...)
	if t.HasRelay {
		out = append(out, t.RelayURL)
	}
	return out
}

// GenericTag is any tag whose prefix isn't "e" or "p", preserved
// verbatim so relays stay forward-compatible with tags they don't
// interpret.
type GenericTag struct {
	Kind   string
	Fields []string
}

func (t GenericTag) Wire() []string {
	return append([]string{t.Kind}, t.Fields...)
}

// looksLikeURL is a conservative heuristic distinguishing a trailing
// relay-URL field from a trailing pubkey in a "p" tag of ambiguous
// length, mirroring the source's is-it-a-URL check.
func looksLikeURL(s string) bool {
	return s == "" || strings.Contains(s, "://")
}

// ParseTag decodes one wire-form tag (already split into fields) into
// a Tag. An empty fields slice is an error; every other shape is
// accepted, falling back to GenericTag for anything not recognized.
func ParseTag(fields []string) (Tag, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("event: empty tag")
	}
	kind := fields[0]
	rest := fields[1:]

	switch kind {
	case "e":
		return parseEventTag(rest), nil
	case "p":
		return parsePubKeyTag(rest), nil
	default:
		return GenericTag{Kind: kind, Fields: append([]string(nil), rest...)}, nil
	}
}

func parseEventTag(rest []string) Tag {
	switch len(rest) {
	case 0:
		return GenericTag{Kind: "e"}
	case 1:
		return EventTag{EventID: rest[0]}
	case 2:
		t := EventTag{EventID: rest[0]}
		if rest[1] != "" {
			t.RelayURL, t.HasRelay = rest[1], true
		}
		return t
	default:
		t := EventTag{EventID: rest[0]}
		if rest[1] != "" {
			t.RelayURL, t.HasRelay = rest[1], true
		}
		if rest[2] != "" {
			if m, ok := ParseMarker(rest[2]); ok {
				t.Marker, t.HasMarker = m, true
			}
		}
		return t
	}
}

func parsePubKeyTag(rest []string) Tag {
	if len(rest) == 0 {
		return GenericTag{Kind: "p"}
	}
	if len(rest) == 1 {
		return PubKeyTag{PubKeys: []string{rest[0]}}
	}

	last := rest[len(rest)-1]
	if looksLikeURL(last) {
		t := PubKeyTag{PubKeys: append([]string(nil), rest[:len(rest)-1]...)}
		if last != "" {
			t.RelayURL, t.HasRelay = last, true
		}
		return t
	}
	return PubKeyTag{PubKeys: append([]string(nil), rest...)}
}

// Tags is a tag list with JSON array-of-arrays wire encoding.
type Tags []Tag

func (ts Tags) MarshalJSON() ([]byte, error) {
	wire := make([][]string, len(ts))
	for i, t := range ts {
		wire[i] = t.Wire()
	}
	return json.Marshal(wire)
}

func (ts *Tags) UnmarshalJSON(data []byte) error {
	var wire [][]string
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(Tags, 0, len(wire))
	for _, fields := range wire {
		tag, err := ParseTag(fields)
		if err != nil {
			return err
		}
		out = append(out, tag)
	}
	*ts = out
	return nil
}

// FirstEventID returns the event id of the first "e" tag and whether
// one was present. Filters match only against this first tag by
// design (see Filter.Match), preserved for wire compatibility with
// the relay this was ported from.
func (ts Tags) FirstEventID() (string, bool) {
	for _, t := range ts {
		if et, ok := t.(EventTag); ok {
			return et.EventID, true
		}
	}
	return "", false
}

// FirstPubKeys returns the pubkey list of the first "p" tag and
// whether one was present.
func (ts Tags) FirstPubKeys() ([]string, bool) {
	for _, t := range ts {
		if pt, ok := t.(PubKeyTag); ok {
			return pt.PubKeys, true
		}
	}
	return nil, false
}
