package relay

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/filter"
	"github.com/relaycore/nostrd/internal/schnorr"
	"github.com/relaycore/nostrd/internal/wire"
)

// handleEvent validates and, if accepted, durably stores and
// broadcasts a client-submitted event. Any validation failure is an
// InvalidEvent: the event is dropped with no NOTICE, per the relay's
// silent-drop ingress policy.
func (r *Relay) handleEvent(ctx context.Context, c *ClientConn, ev *event.Event) {
	if !ev.CheckID() {
		return
	}
	if !schnorr.Verify(ev.Sig, ev.ID, ev.PubKey) {
		return
	}

	if err := r.ingest(ctx, ev); err != nil {
		// LogFailure: the durable log no longer mirrors accepted events.
		log.Fatal().Err(err).Str("event", ev.ID).Msg("ingest event")
	}
}

// handleReq installs (or replaces) a subscription's filter set and
// replies with the matching backlog followed by EOSE. Unlike the live
// broadcast path (filter.MatchAny), the backlog is built per filter and
// concatenated in filter order (see backlogFor), so an event matching
// several filters is sent once per matching filter.
func (r *Relay) handleReq(ctx context.Context, c *ClientConn, subID string, filters []filter.Filter) {
	c.subsMu.Lock()
	_, existed := c.subs[subID]
	c.subs[subID] = filters
	c.subsMu.Unlock()
	if !existed {
		r.stats.Subscriptions.Inc()
	}

	for _, ev := range r.backlogFor(filters) {
		c.enqueue(subID, ev)
	}

	frame, err := wire.EncodeEOSE(subID)
	if err != nil {
		log.Error().Err(err).Str("sub", subID).Msg("encode EOSE frame")
		return
	}
	c.enqueueRaw(frame)
}

// handleClose ends a subscription and confirms it with a
// "Subscription ended." NOTICE. Closing an unknown subscription id is
// reported to the client via a "Subscription not found." NOTICE rather
// than silently ignored, per the UnknownSubscription error rule.
func (r *Relay) handleClose(c *ClientConn, subID string) {
	c.subsMu.Lock()
	_, known := c.subs[subID]
	c.subsMu.Unlock()

	if !known {
		frame, err := wire.EncodeNotice("Subscription not found.")
		if err == nil {
			c.enqueueRaw(frame)
		}
		return
	}

	c.dropSub(subID)
	r.stats.Subscriptions.Dec()

	frame, err := wire.EncodeNotice("Subscription ended.")
	if err == nil {
		c.enqueueRaw(frame)
	}
}
