package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/filter"
	"github.com/relaycore/nostrd/internal/wire"
)

const (
	pingInterval = 20 * time.Second
	sendBuffer   = 64
)

// ClientConn is one connected websocket client: its active
// subscriptions and its single outbound channel. The channel has one
// consumer (the writer goroutine) and many producers (any ingest call
// that fans an event out to this client); producers never block on a
// full channel, they drop the frame instead.
type ClientConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	subsMu sync.Mutex
	subs   map[string][]filter.Filter
}

func newClientConn(conn *websocket.Conn) *ClientConn {
	return &ClientConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string][]filter.Filter),
	}
}

func (c *ClientConn) setSub(subID string, filters []filter.Filter) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs[subID] = filters
}

func (c *ClientConn) dropSub(subID string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	delete(c.subs, subID)
}

func (c *ClientConn) subCount() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

func (c *ClientConn) forEachSub(fn func(subID string, filters []filter.Filter)) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for subID, filters := range c.subs {
		fn(subID, filters)
	}
}

// enqueue non-blockingly encodes and queues an EVENT frame for subID.
// A full outbound channel means the client isn't draining fast enough;
// the frame is dropped rather than stalling the broadcaster.
func (c *ClientConn) enqueue(subID string, ev *event.Event) {
	frame, err := wire.EncodeEvent(subID, ev)
	if err != nil {
		log.Error().Err(err).Str("client", c.id).Msg("encode EVENT frame")
		return
	}
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("client", c.id).Str("sub", subID).Msg("outbound buffer full, dropping frame")
	}
}

func (c *ClientConn) enqueueRaw(frame []byte) {
	select {
	case c.send <- frame:
	default:
		log.Warn().Str("client", c.id).Msg("outbound buffer full, dropping frame")
	}
}

// Serve runs one client connection to completion: a reader goroutine
// decoding inbound frames, a writer goroutine draining the outbound
// channel, and a pinger keeping intermediaries from timing out the
// socket. Any one task ending tears down the other two.
func (r *Relay) Serve(ctx context.Context, conn *websocket.Conn) error {
	c := newClientConn(conn)
	r.addClient(c)
	defer r.removeClient(c)
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	go func() {
		// Unblock the reader's ReadMessage once any task has ended.
		<-gctx.Done()
		_ = conn.Close()
	}()
	group.Go(func() error { return r.readLoop(gctx, c, cancel) })
	group.Go(func() error { return writeLoop(gctx, c) })
	group.Go(func() error { return pingLoop(gctx, c) })

	err := group.Wait()
	close(c.send)
	return err
}

func (r *Relay) readLoop(ctx context.Context, c *ClientConn, cancel context.CancelFunc) error {
	defer cancel()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		r.handleFrame(ctx, c, data)
	}
}

func writeLoop(ctx context.Context, c *ClientConn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		}
	}
}

func pingLoop(ctx context.Context, c *ClientConn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func (r *Relay) handleFrame(ctx context.Context, c *ClientConn, data []byte) {
	msg, err := wire.ParseClientMessage(data)
	if err != nil {
		// ProtocolParse: malformed frame, silently ignored.
		return
	}

	switch m := msg.(type) {
	case wire.EventMessage:
		r.handleEvent(ctx, c, m.Event)
	case wire.ReqMessage:
		r.handleReq(ctx, c, m.SubID, m.Filters)
	case wire.CloseMessage:
		r.handleClose(c, m.SubID)
	}
}
