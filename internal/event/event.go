package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Recognized event kinds. Any other integer value is a Custom kind,
// preserved as-is rather than rejected.
const (
	KindMetadata       = 0
	KindText           = 1
	KindRecommendRelay = 2
)

// Event is the atomic, content-addressed, signed unit of data
// exchanged between relay and client. Immutable once signed: nothing
// in this package mutates an Event after construction.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt uint64 `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// canonicalPreimage holds the fixed-order fields hashed to produce an
// event's id. Marshaling this struct as a JSON array (not object)
// reproduces the exact byte sequence other Nostr implementations hash,
// so ids stay interoperable across relays.
type canonicalPreimage struct {
	zero      int
	pubkey    string
	createdAt uint64
	kind      int
	tags      Tags
	content   string
}

func (p canonicalPreimage) MarshalJSON() ([]byte, error) {
	tagsJSON, err := p.tags.MarshalJSON()
	if err != nil {
		return nil, err
	}
	pubkey, err := json.Marshal(p.pubkey)
	if err != nil {
		return nil, err
	}
	content, err := json.Marshal(p.content)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`[0,%s,%d,%d,%s,%s]`, pubkey, p.createdAt, p.kind, tagsJSON, content)), nil
}

// Serialize returns the canonical pre-image bytes whose SHA-256 is the
// event id: [0,"<pubkey>",<created_at>,<kind>,<tags>,"<content>"].
func (e *Event) Serialize() ([]byte, error) {
	pre := canonicalPreimage{
		pubkey:    e.PubKey,
		createdAt: e.CreatedAt,
		kind:      e.Kind,
		tags:      e.Tags,
		content:   e.Content,
	}
	return json.Marshal(pre)
}

// ComputeID returns the lowercase hex SHA-256 of the canonical
// pre-image.
func (e *Event) ComputeID() (string, error) {
	data, err := e.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CheckID recomputes the event id and compares it against e.ID.
func (e *Event) CheckID() bool {
	id, err := e.ComputeID()
	if err != nil {
		return false
	}
	return id == e.ID
}

// IsCustomKind reports whether kind is outside the three recognized
// values.
func (e *Event) IsCustomKind() bool {
	switch e.Kind {
	case KindMetadata, KindText, KindRecommendRelay:
		return false
	default:
		return true
	}
}
