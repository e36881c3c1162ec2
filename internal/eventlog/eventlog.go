// Package eventlog is the relay's durable event store: every accepted
// event is appended under a monotonically increasing key so ScanAll
// replays them in arrival order for REQ backlog queries.
package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/kvstore"
)

const namespace = "events"

// Log is the append-only, durable sequence of accepted events.
type Log struct {
	store kvstore.Store

	mu   sync.Mutex
	next uint64
}

// Open loads a Log backed by store, resuming its sequence counter
// from the highest key already present.
func Open(ctx context.Context, store kvstore.Store) (*Log, error) {
	entries, err := store.Iter(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("eventlog: load: %w", err)
	}

	var next uint64
	for _, e := range entries {
		seq := decodeKey(e.Key)
		if seq+1 > next {
			next = seq + 1
		}
	}
	return &Log{store: store, next: next}, nil
}

// Append durably stores ev under the next sequence key. Callers must
// have already validated ev's id and signature; Append itself does no
// verification.
func (l *Log) Append(ctx context.Context, ev *event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshal: %w", err)
	}

	l.mu.Lock()
	seq := l.next
	l.next++
	l.mu.Unlock()

	if err := l.store.Put(ctx, namespace, encodeKey(seq), data); err != nil {
		return fmt.Errorf("eventlog: append: %w", err)
	}
	return nil
}

// ScanAll returns every stored event in append order. This is the
// backlog a fresh REQ subscription is matched against before EOSE.
func (l *Log) ScanAll(ctx context.Context) ([]*event.Event, error) {
	entries, err := l.store.Iter(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("eventlog: scan: %w", err)
	}

	out := make([]*event.Event, 0, len(entries))
	for _, e := range entries {
		var ev event.Event
		if err := json.Unmarshal(e.Value, &ev); err != nil {
			return nil, fmt.Errorf("eventlog: decode %s: %w", e.Key, err)
		}
		out = append(out, &ev)
	}
	return out, nil
}

// Len reports how many events have been appended so far.
func (l *Log) Len(ctx context.Context) (int, error) {
	entries, err := l.store.Iter(ctx, namespace)
	if err != nil {
		return 0, fmt.Errorf("eventlog: len: %w", err)
	}
	return len(entries), nil
}

// encodeKey formats seq as a fixed-width, lexicographically-ordered
// hex string so kvstore.Iter's key-ordered scan equals append order.
func encodeKey(seq uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return hex.EncodeToString(buf[:])
}

func decodeKey(key string) uint64 {
	buf, err := hex.DecodeString(key)
	if err != nil || len(buf) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}
