// Package pool implements the client side of the wire protocol: a
// pool of concurrent outbound relay connections, each driven by its
// own reader/writer/pinger/notifier task group, with broadcast and per-relay
// send primitives layered on top.
package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/filter"
	"github.com/relaycore/nostrd/internal/schnorr"
	"github.com/relaycore/nostrd/internal/wire"

	"github.com/rs/zerolog/log"
)

var (
	// ErrRelayExists is returned by AddRelay for a URL already
	// registered in the pool.
	ErrRelayExists = errors.New("pool: relay already exists")
	// ErrRelayNotFound is returned for operations against a URL the
	// pool has never heard of.
	ErrRelayNotFound = errors.New("pool: relay not found")
	// ErrNotConnected is returned by send operations against a relay
	// that is registered but not currently connected.
	ErrNotConnected = errors.New("pool: not connected to relay")
)

const (
	sendBuffer    = 64
	inboundBuffer = 64
	pingInterval  = 20 * time.Second
)

// InboundFrame pairs a parsed relay->client message with the URL of
// the relay that sent it.
type InboundFrame struct {
	RelayURL string
	Message  wire.ServerMessage
}

// RelayConn is one outbound connection owned by the pool, keyed by
// its relay URL.
type RelayConn struct {
	URL            string
	Outbound       chan []byte
	Inbound        chan InboundFrame
	Connected      *atomic.Bool
	CloseRequested *atomic.Bool

	conn   *websocket.Conn
	cancel context.CancelFunc
}

// Pool manages N concurrent relay connections for a single logical
// client. There is no reconnection logic: a dropped connection stays
// dropped until the caller calls Connect again.
type Pool struct {
	relays *xsync.MapOf[string, *RelayConn]
	events chan InboundFrame
}

// New creates an empty pool. Call AddRelay then Connect for each
// relay the client should talk to.
func New() *Pool {
	return &Pool{
		relays: xsync.NewMapOf[string, *RelayConn](),
		events: make(chan InboundFrame, inboundBuffer),
	}
}

// Events returns the channel every connected relay's notifier task
// forwards verified inbound frames onto.
func (p *Pool) Events() <-chan InboundFrame {
	return p.events
}

// AddRelay registers url with the pool in a disconnected state.
func (p *Pool) AddRelay(url string) error {
	rc := &RelayConn{
		URL:            url,
		Outbound:       make(chan []byte, sendBuffer),
		Inbound:        make(chan InboundFrame, inboundBuffer),
		Connected:      atomic.NewBool(false),
		CloseRequested: atomic.NewBool(false),
	}
	if _, loaded := p.relays.LoadOrStore(url, rc); loaded {
		return ErrRelayExists
	}
	return nil
}

// RemoveRelay disconnects url, if connected, and drops it from the
// pool.
func (p *Pool) RemoveRelay(url string) {
	if rc, ok := p.relays.LoadAndDelete(url); ok {
		p.disconnect(rc)
	}
}

// Connect dials url and starts its reader/writer/pinger/notifier tasks.
// url must already be registered via AddRelay.
func (p *Pool) Connect(ctx context.Context, url string) error {
	rc, ok := p.relays.Load(url)
	if !ok {
		return ErrRelayNotFound
	}
	if rc.Connected.Load() {
		return nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("pool: dial %s: %w", url, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	rc.conn = conn
	rc.cancel = cancel
	rc.Connected.Store(true)
	rc.CloseRequested.Store(false)

	group, gctx := errgroup.WithContext(connCtx)
	group.Go(func() error { return p.readLoop(gctx, rc) })
	group.Go(func() error { return p.writeLoop(gctx, rc) })
	group.Go(func() error { return p.pingLoop(gctx, rc) })
	group.Go(func() error { return p.notifyLoop(gctx, rc) })

	go func() {
		if err := group.Wait(); err != nil {
			log.Debug().Err(err).Str("url", rc.URL).Msg("relay connection task group exited")
		}
		rc.Connected.Store(false)
		_ = rc.conn.Close()
	}()

	log.Info().Str("url", url).Msg("connected to relay")
	return nil
}

// DisconnectRelay closes url's connection without removing it from
// the pool; Connect can be called again later to re-dial.
func (p *Pool) DisconnectRelay(url string) error {
	rc, ok := p.relays.Load(url)
	if !ok {
		return ErrRelayNotFound
	}
	p.disconnect(rc)
	return nil
}

func (p *Pool) disconnect(rc *RelayConn) {
	rc.CloseRequested.Store(true)
	if rc.cancel != nil {
		rc.cancel()
	}
}

// Broadcast enqueues frame on every currently connected relay's
// outbound channel, dropping (and logging) on any relay whose channel
// is full rather than blocking.
func (p *Pool) Broadcast(frame []byte) {
	p.relays.Range(func(url string, rc *RelayConn) bool {
		if !rc.Connected.Load() {
			return true
		}
		enqueue(rc, frame)
		return true
	})
}

// SendTo enqueues frame on a single named relay's outbound channel.
func (p *Pool) SendTo(url string, frame []byte) error {
	rc, ok := p.relays.Load(url)
	if !ok {
		return ErrRelayNotFound
	}
	if !rc.Connected.Load() {
		return ErrNotConnected
	}
	enqueue(rc, frame)
	return nil
}

func enqueue(rc *RelayConn, frame []byte) {
	select {
	case rc.Outbound <- frame:
	default:
		log.Warn().Str("url", rc.URL).Msg("outbound buffer full, dropping frame")
	}
}

// Publish signs nothing itself — ev must already be signed — and
// broadcasts it as a client->relay EVENT frame to every connected
// relay.
func (p *Pool) Publish(ev *event.Event) error {
	frame, err := wire.EncodeClientEvent(ev)
	if err != nil {
		return fmt.Errorf("pool: encode event: %w", err)
	}
	p.Broadcast(frame)
	return nil
}

// Subscribe opens or refreshes subID with filters on every connected
// relay. It satisfies substore.Resubscriber.
func (p *Pool) Subscribe(_ context.Context, subID string, filters []filter.Filter) error {
	frame, err := wire.EncodeReq(subID, filters)
	if err != nil {
		return fmt.Errorf("pool: encode REQ: %w", err)
	}
	p.Broadcast(frame)
	return nil
}

// Unsubscribe closes subID on every connected relay.
func (p *Pool) Unsubscribe(subID string) error {
	frame, err := wire.EncodeClose(subID)
	if err != nil {
		return fmt.Errorf("pool: encode CLOSE: %w", err)
	}
	p.Broadcast(frame)
	return nil
}

func (p *Pool) readLoop(ctx context.Context, rc *RelayConn) error {
	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read %s: %w", rc.URL, err)
		}
		msg, err := wire.ParseServerMessage(data)
		if err != nil {
			log.Debug().Err(err).Str("url", rc.URL).Msg("dropping unparseable frame")
			continue
		}
		if em, ok := msg.(wire.ServerEventMessage); ok && !verifyInbound(em.Event) {
			log.Debug().Str("url", rc.URL).Str("id", em.Event.ID).Msg("dropping inbound event with invalid id or signature")
			continue
		}
		select {
		case rc.Inbound <- InboundFrame{RelayURL: rc.URL, Message: msg}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			log.Warn().Str("url", rc.URL).Msg("inbound buffer full, dropping frame")
		}
	}
}

func verifyInbound(ev *event.Event) bool {
	if !ev.CheckID() {
		return false
	}
	return schnorr.Verify(ev.Sig, ev.ID, ev.PubKey)
}

func (p *Pool) writeLoop(ctx context.Context, rc *RelayConn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-rc.Outbound:
			if !ok {
				return nil
			}
			if err := rc.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write %s: %w", rc.URL, err)
			}
		}
	}
}

func (p *Pool) pingLoop(ctx context.Context, rc *RelayConn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := rc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping %s: %w", rc.URL, err)
			}
		}
	}
}

// notifyLoop forwards rc's per-connection Inbound frames onto the
// pool-wide Events() channel, so a caller can range over one channel
// regardless of how many relays are connected.
func (p *Pool) notifyLoop(ctx context.Context, rc *RelayConn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-rc.Inbound:
			if !ok {
				return nil
			}
			select {
			case p.events <- frame:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
