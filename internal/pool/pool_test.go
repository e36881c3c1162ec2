package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/schnorr"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func signedTestEvent(t *testing.T) *event.Event {
	t.Helper()
	kp, err := schnorr.Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}
	ev := &event.Event{
		PubKey:    kp.PublicKeyHex,
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      event.Tags{},
		Content:   "hello",
	}
	id, err := ev.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	ev.ID = id
	sig, err := schnorr.Sign(id, kp.PrivateKeyHex)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ev.Sig = sig
	return ev
}

func TestAddRelay_DuplicateReturnsError(t *testing.T) {
	p := New()
	if err := p.AddRelay("wss://relay.example"); err != nil {
		t.Fatalf("AddRelay: %v", err)
	}
	if err := p.AddRelay("wss://relay.example"); err != ErrRelayExists {
		t.Errorf("AddRelay() error = %v, want ErrRelayExists", err)
	}
}

func TestConnect_UnknownRelayReturnsError(t *testing.T) {
	p := New()
	if err := p.Connect(context.Background(), "wss://never-added.example"); err != ErrRelayNotFound {
		t.Errorf("Connect() error = %v, want ErrRelayNotFound", err)
	}
}

func TestSendTo_NotConnectedReturnsError(t *testing.T) {
	p := New()
	if err := p.AddRelay("wss://relay.example"); err != nil {
		t.Fatalf("AddRelay: %v", err)
	}
	if err := p.SendTo("wss://relay.example", []byte(`["CLOSE","sub1"]`)); err != ErrNotConnected {
		t.Errorf("SendTo() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_SentOverWire(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
	}))
	defer srv.Close()

	p := New()
	url := wsURL(srv)
	if err := p.AddRelay(url); err != nil {
		t.Fatalf("AddRelay: %v", err)
	}
	if err := p.Connect(context.Background(), url); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ev := signedTestEvent(t)
	if err := p.Publish(ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-received:
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if len(frame) != 2 {
			t.Fatalf("frame length = %d, want 2", len(frame))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received the published event")
	}
}

func TestEvents_ForwardsValidInboundEvent(t *testing.T) {
	ev := signedTestEvent(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		data, _ := json.Marshal([]any{"EVENT", "sub1", ev})
		_ = conn.WriteMessage(websocket.TextMessage, data)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	p := New()
	url := wsURL(srv)
	if err := p.AddRelay(url); err != nil {
		t.Fatalf("AddRelay: %v", err)
	}
	if err := p.Connect(context.Background(), url); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case frame := <-p.Events():
		if frame.RelayURL != url {
			t.Errorf("frame.RelayURL = %q, want %q", frame.RelayURL, url)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pool never forwarded the inbound event")
	}
}

func TestEvents_DropsEventWithInvalidSignature(t *testing.T) {
	ev := signedTestEvent(t)
	ev.Sig = strings.Repeat("00", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		data, _ := json.Marshal([]any{"EVENT", "sub1", ev})
		_ = conn.WriteMessage(websocket.TextMessage, data)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := New()
	url := wsURL(srv)
	if err := p.AddRelay(url); err != nil {
		t.Fatalf("AddRelay: %v", err)
	}
	if err := p.Connect(context.Background(), url); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case frame := <-p.Events():
		t.Fatalf("Events() delivered a frame with an invalid signature: %+v", frame)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRemoveRelay_ThenSendToFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	p := New()
	url := wsURL(srv)
	if err := p.AddRelay(url); err != nil {
		t.Fatalf("AddRelay: %v", err)
	}
	if err := p.Connect(context.Background(), url); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	p.RemoveRelay(url)

	if err := p.SendTo(url, []byte(`["CLOSE","sub1"]`)); err != ErrRelayNotFound {
		t.Errorf("SendTo() after RemoveRelay error = %v, want ErrRelayNotFound", err)
	}
}
