package schema

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
)

// RequestKind enumerates the closed set of inbound connection commands.
type RequestKind string

const (
	// KindPublish submits an event to the hub pipeline.
	KindPublish RequestKind = "publish"
	// KindSubscribe registers the connection on a topic.
	KindSubscribe RequestKind = "subscribe"
	// KindUnsubscribe removes the connection from a topic.
	KindUnsubscribe RequestKind = "unsubscribe"
	// KindReplay queries the bounded event history.
	KindReplay RequestKind = "replay"
)

// Request is the tagged union carried on subscriber connections.
type Request struct {
	Type      RequestKind    `json:"type"`
	RequestID string         `json:"requestId,omitempty"`
	Topic     string         `json:"topic,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	Source    string         `json:"source,omitempty"`
	Filters   *Filters       `json:"filters,omitempty"`
	Since     *time.Time     `json:"since,omitempty"`
	Limit     int            `json:"limit,omitempty"`
}

// DecodeRequest parses an inbound frame and rejects unknown request kinds.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, errs.New("schema/request", errs.CodeInvalid, errs.WithMessage("malformed request frame"), errs.WithCause(err))
	}
	switch req.Type {
	case KindPublish, KindSubscribe, KindUnsubscribe, KindReplay:
		return req, nil
	case "":
		return Request{}, errs.New("schema/request", errs.CodeInvalid, errs.WithMessage("request type required"))
	default:
		return Request{}, errs.New("schema/request", errs.CodeInvalid, errs.WithMessage(fmt.Sprintf("unknown request type %q", req.Type)))
	}
}

// ValidatePublish enforces the synchronous publish preconditions.
func (r Request) ValidatePublish() error {
	if strings.TrimSpace(r.Topic) == "" {
		return errs.New("schema/publish", errs.CodeInvalid, errs.WithMessage("topic required"))
	}
	if r.Payload == nil {
		return errs.New("schema/publish", errs.CodeInvalid, errs.WithMessage("payload required"))
	}
	return nil
}

// ValidateSubscribe enforces the subscribe/unsubscribe preconditions.
func (r Request) ValidateSubscribe() error {
	if strings.TrimSpace(r.Topic) == "" {
		return errs.New("schema/subscribe", errs.CodeInvalid, errs.WithMessage("topic required"))
	}
	return nil
}

// PublishReceipt acknowledges an accepted publish.
type PublishReceipt struct {
	EventID   string    `json:"eventId"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the outbound frame pushed to subscriber connections.
type Envelope struct {
	Type         string          `json:"type"`
	RequestID    string          `json:"requestId,omitempty"`
	ConnectionID string          `json:"connectionId,omitempty"`
	Topic        string          `json:"topic,omitempty"`
	Event        *Event          `json:"event,omitempty"`
	Events       []Event         `json:"events,omitempty"`
	Receipt      *PublishReceipt `json:"receipt,omitempty"`
	Code         string          `json:"code,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// WelcomeEnvelope greets a freshly established connection.
func WelcomeEnvelope(connectionID string) Envelope {
	return Envelope{Type: "welcome", ConnectionID: connectionID}
}

// EventEnvelope wraps a delivered event.
func EventEnvelope(evt Event) Envelope {
	return Envelope{Type: "event", Event: &evt}
}

// AckEnvelope confirms a subscribe or unsubscribe command.
func AckEnvelope(kind RequestKind, topic, requestID string) Envelope {
	return Envelope{Type: string(kind) + "d", Topic: topic, RequestID: requestID}
}

// ReceiptEnvelope acknowledges an accepted publish.
func ReceiptEnvelope(receipt PublishReceipt, requestID string) Envelope {
	return Envelope{Type: "published", Receipt: &receipt, RequestID: requestID}
}

// ReplayEnvelope carries a history query result.
func ReplayEnvelope(events []Event, requestID string) Envelope {
	if events == nil {
		events = []Event{}
	}
	return Envelope{Type: "replay", Events: events, RequestID: requestID}
}

// ErrorEnvelope reports a rejected command back to the connection.
func ErrorEnvelope(err error, requestID string) Envelope {
	code := string(errs.CodeOf(err))
	if code == "" {
		code = string(errs.CodeUnavailable)
	}
	return Envelope{Type: "error", Code: code, Message: err.Error(), RequestID: requestID}
}
