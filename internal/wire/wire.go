// Package wire implements the client/relay message codec: the five
// JSON-array frame shapes exchanged over the websocket connection
// (EVENT, REQ, CLOSE from the client; EVENT, EOSE, NOTICE from the
// relay), plus the OK acknowledgement the ambient stack layers on top
// for ingest feedback. Both directions get a parser and an encoder:
// a relay parses ClientMessage frames and encodes server frames, a
// client pool does the reverse.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/relaycore/nostrd/internal/event"
	"github.com/relaycore/nostrd/internal/filter"
)

// ClientMessage is one decoded frame sent by a client to a relay.
type ClientMessage interface {
	isClientMessage()
}

// EventMessage carries a client-submitted event: ["EVENT", <event>].
type EventMessage struct {
	Event *event.Event
}

func (EventMessage) isClientMessage() {}

// ReqMessage opens or refreshes a subscription:
// ["REQ", <sub_id>, <filter>, <filter>, ...].
type ReqMessage struct {
	SubID   string
	Filters []filter.Filter
}

func (ReqMessage) isClientMessage() {}

// CloseMessage ends a subscription: ["CLOSE", <sub_id>].
type CloseMessage struct {
	SubID string
}

func (CloseMessage) isClientMessage() {}

// ParseClientMessage decodes a raw websocket text frame into one of
// EventMessage, ReqMessage or CloseMessage.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("wire: malformed frame: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("wire: empty frame")
	}

	var kind string
	if err := json.Unmarshal(fields[0], &kind); err != nil {
		return nil, fmt.Errorf("wire: malformed frame kind: %w", err)
	}

	switch kind {
	case "EVENT":
		if len(fields) < 2 {
			return nil, fmt.Errorf("wire: EVENT missing event payload")
		}
		var ev event.Event
		if err := json.Unmarshal(fields[1], &ev); err != nil {
			return nil, fmt.Errorf("wire: malformed event: %w", err)
		}
		return EventMessage{Event: &ev}, nil

	case "REQ":
		if len(fields) < 2 {
			return nil, fmt.Errorf("wire: REQ missing subscription id")
		}
		var subID string
		if err := json.Unmarshal(fields[1], &subID); err != nil {
			return nil, fmt.Errorf("wire: malformed subscription id: %w", err)
		}
		filters := make([]filter.Filter, 0, len(fields)-2)
		for _, raw := range fields[2:] {
			var f filter.Filter
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("wire: malformed filter: %w", err)
			}
			filters = append(filters, f)
		}
		return ReqMessage{SubID: subID, Filters: filters}, nil

	case "CLOSE":
		if len(fields) < 2 {
			return nil, fmt.Errorf("wire: CLOSE missing subscription id")
		}
		var subID string
		if err := json.Unmarshal(fields[1], &subID); err != nil {
			return nil, fmt.Errorf("wire: malformed subscription id: %w", err)
		}
		return CloseMessage{SubID: subID}, nil

	default:
		return nil, fmt.Errorf("wire: unknown message type %q", kind)
	}
}

// EncodeEvent builds a relay->client EVENT frame.
func EncodeEvent(subID string, ev *event.Event) ([]byte, error) {
	return json.Marshal([]any{"EVENT", subID, ev})
}

// EncodeEOSE builds an End-Of-Stored-Events frame, sent once after a
// subscription's backlog scan completes.
func EncodeEOSE(subID string) ([]byte, error) {
	return json.Marshal([]any{"EOSE", subID})
}

// EncodeNotice builds a human-readable protocol error frame.
func EncodeNotice(message string) ([]byte, error) {
	return json.Marshal([]any{"NOTICE", message})
}

// EncodeOK builds an ingest acknowledgement frame. eventID is empty
// when the submitted frame couldn't even be parsed into an event.
func EncodeOK(eventID string, accepted bool, message string) ([]byte, error) {
	return json.Marshal([]any{"OK", eventID, accepted, message})
}

// EncodeClientEvent builds a client->relay EVENT frame.
func EncodeClientEvent(ev *event.Event) ([]byte, error) {
	return json.Marshal([]any{"EVENT", ev})
}

// EncodeReq builds a client->relay REQ frame opening or refreshing
// subID with filters.
func EncodeReq(subID string, filters []filter.Filter) ([]byte, error) {
	fields := make([]any, 0, len(filters)+2)
	fields = append(fields, "REQ", subID)
	for _, f := range filters {
		fields = append(fields, f)
	}
	return json.Marshal(fields)
}

// EncodeClose builds a client->relay CLOSE frame.
func EncodeClose(subID string) ([]byte, error) {
	return json.Marshal([]any{"CLOSE", subID})
}

// ServerMessage is one decoded frame sent by a relay to a client.
type ServerMessage interface {
	isServerMessage()
}

// ServerEventMessage carries a relay-pushed event for a subscription.
type ServerEventMessage struct {
	SubID string
	Event *event.Event
}

func (ServerEventMessage) isServerMessage() {}

// EOSEMessage marks the end of a subscription's stored-event backlog.
type EOSEMessage struct {
	SubID string
}

func (EOSEMessage) isServerMessage() {}

// NoticeMessage is a human-readable relay message, usually an error.
type NoticeMessage struct {
	Message string
}

func (NoticeMessage) isServerMessage() {}

// OKMessage acknowledges (or rejects) a submitted event.
type OKMessage struct {
	EventID  string
	Accepted bool
	Message  string
}

func (OKMessage) isServerMessage() {}

// ParseServerMessage decodes a raw websocket text frame received by a
// client into one of ServerEventMessage, EOSEMessage, NoticeMessage or
// OKMessage.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("wire: malformed frame: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("wire: empty frame")
	}

	var kind string
	if err := json.Unmarshal(fields[0], &kind); err != nil {
		return nil, fmt.Errorf("wire: malformed frame kind: %w", err)
	}

	switch kind {
	case "EVENT":
		if len(fields) < 3 {
			return nil, fmt.Errorf("wire: EVENT missing subscription id or event payload")
		}
		var subID string
		if err := json.Unmarshal(fields[1], &subID); err != nil {
			return nil, fmt.Errorf("wire: malformed subscription id: %w", err)
		}
		var ev event.Event
		if err := json.Unmarshal(fields[2], &ev); err != nil {
			return nil, fmt.Errorf("wire: malformed event: %w", err)
		}
		return ServerEventMessage{SubID: subID, Event: &ev}, nil

	case "EOSE":
		if len(fields) < 2 {
			return nil, fmt.Errorf("wire: EOSE missing subscription id")
		}
		var subID string
		if err := json.Unmarshal(fields[1], &subID); err != nil {
			return nil, fmt.Errorf("wire: malformed subscription id: %w", err)
		}
		return EOSEMessage{SubID: subID}, nil

	case "NOTICE":
		if len(fields) < 2 {
			return nil, fmt.Errorf("wire: NOTICE missing message")
		}
		var message string
		if err := json.Unmarshal(fields[1], &message); err != nil {
			return nil, fmt.Errorf("wire: malformed notice message: %w", err)
		}
		return NoticeMessage{Message: message}, nil

	case "OK":
		if len(fields) < 4 {
			return nil, fmt.Errorf("wire: OK missing fields")
		}
		var eventID string
		if err := json.Unmarshal(fields[1], &eventID); err != nil {
			return nil, fmt.Errorf("wire: malformed event id: %w", err)
		}
		var accepted bool
		if err := json.Unmarshal(fields[2], &accepted); err != nil {
			return nil, fmt.Errorf("wire: malformed accepted flag: %w", err)
		}
		var message string
		if err := json.Unmarshal(fields[3], &message); err != nil {
			return nil, fmt.Errorf("wire: malformed OK message: %w", err)
		}
		return OKMessage{EventID: eventID, Accepted: accepted, Message: message}, nil

	default:
		return nil, fmt.Errorf("wire: unknown message type %q", kind)
	}
}
