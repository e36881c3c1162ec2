// Package relay implements the relay core: the concurrent server side
// of the protocol, holding connected clients, the in-memory event
// vector used to answer REQ backlog queries, and the durable event
// log those events are mirrored into.
package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/eventlog"
	"github.com/relaycore/nostrd/internal/filter"
)

// Relay holds all server-side state for one running relay. Its three
// internal locks are always acquired in this order — clientsMu, then
// eventsMu — never reversed, to rule out deadlock between the
// broadcast path and the ingest path. The event log guards its own
// state independently and is always touched last.
type Relay struct {
	clientsMu sync.Mutex
	clients   map[string]*ClientConn

	eventsMu sync.Mutex
	events   []*event.Event

	log *eventlog.Log

	stats Stats
}

// Stats are the atomic counters the admin HTTP surface reports.
type Stats struct {
	Clients       atomic.Int64
	Events        atomic.Int64
	Subscriptions atomic.Int64
}

// New constructs a Relay, replaying log's backlog into the in-memory
// event vector.
func New(ctx context.Context, log *eventlog.Log) (*Relay, error) {
	backlog, err := log.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("relay: load backlog: %w", err)
	}
	r := &Relay{
		clients: make(map[string]*ClientConn),
		events:  backlog,
		log:     log,
	}
	r.stats.Events.Store(int64(len(backlog)))
	return r, nil
}

// Snapshot returns the current counter values for the admin API.
func (r *Relay) Snapshot() (clients int64, events int64, subs int64) {
	return r.stats.Clients.Load(), r.stats.Events.Load(), r.stats.Subscriptions.Load()
}

func (r *Relay) addClient(c *ClientConn) {
	r.clientsMu.Lock()
	r.clients[c.id] = c
	r.clientsMu.Unlock()
	r.stats.Clients.Inc()
}

func (r *Relay) removeClient(c *ClientConn) {
	r.clientsMu.Lock()
	delete(r.clients, c.id)
	r.clientsMu.Unlock()
	r.stats.Clients.Dec()
	r.stats.Subscriptions.Sub(int64(c.subCount()))
}

// ingest durably appends ev and fans it out to every subscription
// whose filters match it, holding clientsMu for the whole operation
// so no client can be added or removed mid-broadcast. Resubmitting an
// id already present in the in-memory vector is a no-op: no second log
// entry, no second fan-out.
func (r *Relay) ingest(ctx context.Context, ev *event.Event) error {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()

	r.eventsMu.Lock()
	if r.hasEvent(ev.ID) {
		r.eventsMu.Unlock()
		return nil
	}
	r.events = append(r.events, ev)
	r.eventsMu.Unlock()

	if err := r.log.Append(ctx, ev); err != nil {
		return err
	}
	r.stats.Events.Inc()

	for _, c := range r.clients {
		c.forEachSub(func(subID string, filters []filter.Filter) {
			if filter.MatchAny(ev, filters) {
				c.enqueue(subID, ev)
			}
		})
	}
	return nil
}

// hasEvent reports whether id is already in the in-memory vector.
// Callers hold eventsMu.
func (r *Relay) hasEvent(id string) bool {
	for _, ev := range r.events {
		if ev.ID == id {
			return true
		}
	}
	return false
}

// backlogFor returns, per filter and in filter order, the stored
// events matching that filter — newest first, truncated by the
// filter's own limit using the off-by-one rule preserved from the
// relay this was ported from: when the requested limit is not
// strictly less than the match count, one fewer than the full match
// count is returned instead of the full set.
func (r *Relay) backlogFor(filters []filter.Filter) []*event.Event {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	var out []*event.Event
	for _, f := range filters {
		var matched []*event.Event
		for _, ev := range r.events {
			if filter.Match(ev, f) {
				matched = append(matched, ev)
			}
		}
		sortNewestFirst(matched)

		if n := len(matched); n != 0 {
			if limit, ok := f.HasLimit(); ok {
				var effective int
				if limit < n {
					effective = limit
				} else {
					effective = n - 1
				}
				matched = matched[:effective]
			}
		}
		out = append(out, matched...)
	}
	return out
}

func sortNewestFirst(events []*event.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
}
