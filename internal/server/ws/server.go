// Package ws accepts subscriber WebSocket connections and bridges them onto
// the hub: inbound frames carry the request union, outbound frames carry
// envelopes pushed through a bounded per-connection send queue.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/vigoferrel/qbtc-futures-system-sub008/errs"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/hub"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/observability"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/schema"
)

const (
	readLimitBytes = 1 << 20
	writeTimeout   = 5 * time.Second
	closeReasonMax = 120
)

// Options tunes per-connection buffering and inbound rate limiting.
type Options struct {
	SendBuffer int
	RateLimit  float64
	RateBurst  int
}

func (o Options) normalize() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 50
	}
	if o.RateBurst <= 0 {
		o.RateBurst = 100
	}
	return o
}

// Server upgrades HTTP requests to subscriber connections.
type Server struct {
	hub  *hub.Hub
	opts Options
}

// NewServer constructs a WebSocket front end over the hub.
func NewServer(h *hub.Hub, opts Options) *Server {
	server := new(Server)
	server.hub = h
	server.opts = opts.normalize()
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		observability.Log().Debug("websocket accept failed", observability.F("error", err))
		return
	}
	conn.SetReadLimit(readLimitBytes)

	transport := newWSTransport(conn, s.opts.SendBuffer)
	go transport.writeLoop()

	connID := s.hub.Register(transport)
	s.push(transport, schema.WelcomeEnvelope(connID))

	s.readLoop(r.Context(), conn, transport, connID)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, transport *wsTransport, connID string) {
	limiter := rate.NewLimiter(rate.Limit(s.opts.RateLimit), s.opts.RateBurst)
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			s.hub.Teardown(connID, "connection read failed")
			return
		}
		if !limiter.Allow() {
			s.push(transport, schema.ErrorEnvelope(errs.New("server/ws", errs.CodeUnavailable,
				errs.WithMessage("inbound rate limit exceeded")), ""))
			continue
		}
		s.hub.Touch(connID)

		req, err := schema.DecodeRequest(frame)
		if err != nil {
			s.push(transport, schema.ErrorEnvelope(err, ""))
			continue
		}
		s.push(transport, s.dispatch(req, connID))
	}
}

func (s *Server) dispatch(req schema.Request, connID string) schema.Envelope {
	switch req.Type {
	case schema.KindPublish:
		receipt, err := s.hub.Publish(req, connID)
		if err != nil {
			return schema.ErrorEnvelope(err, req.RequestID)
		}
		return schema.ReceiptEnvelope(receipt, req.RequestID)
	case schema.KindSubscribe:
		if err := req.ValidateSubscribe(); err != nil {
			return schema.ErrorEnvelope(err, req.RequestID)
		}
		if _, err := s.hub.Subscribe(req.Topic, connID, req.Filters); err != nil {
			return schema.ErrorEnvelope(err, req.RequestID)
		}
		return schema.AckEnvelope(req.Type, req.Topic, req.RequestID)
	case schema.KindUnsubscribe:
		if err := req.ValidateSubscribe(); err != nil {
			return schema.ErrorEnvelope(err, req.RequestID)
		}
		if err := s.hub.Unsubscribe(req.Topic, connID); err != nil {
			return schema.ErrorEnvelope(err, req.RequestID)
		}
		return schema.AckEnvelope(req.Type, req.Topic, req.RequestID)
	case schema.KindReplay:
		since := time.Time{}
		if req.Since != nil {
			since = *req.Since
		}
		events := s.hub.History().Query(req.Topic, since, req.Limit)
		return schema.ReplayEnvelope(events, req.RequestID)
	default:
		return schema.ErrorEnvelope(errs.New("server/ws", errs.CodeInvalid,
			errs.WithMessage("unsupported request type")), req.RequestID)
	}
}

func (s *Server) push(transport *wsTransport, env schema.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		observability.Log().Error("encode envelope failed", observability.F("error", err))
		return
	}
	if err := transport.Send(frame); err != nil {
		observability.Log().Debug("drop outbound frame", observability.F("error", err))
	}
}

// wsTransport adapts a websocket connection to the hub transport contract.
// Send never blocks on network I/O; a dedicated writer drains the queue.
type wsTransport struct {
	conn     *websocket.Conn
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newWSTransport(conn *websocket.Conn, sendBuffer int) *wsTransport {
	transport := new(wsTransport)
	transport.conn = conn
	transport.outbound = make(chan []byte, sendBuffer)
	transport.closed = make(chan struct{})
	return transport
}

func (t *wsTransport) Send(payload []byte) error {
	select {
	case <-t.closed:
		return errs.New("server/ws", errs.CodeTransport, errs.WithMessage("connection closed"))
	default:
	}
	select {
	case t.outbound <- payload:
		return nil
	default:
		return errs.New("server/ws", errs.CodeTransport, errs.WithMessage("send buffer full"))
	}
}

func (t *wsTransport) Open() bool {
	select {
	case <-t.closed:
		return false
	default:
		return true
	}
}

func (t *wsTransport) Close(reason string) {
	t.once.Do(func() {
		close(t.closed)
		if len(reason) > closeReasonMax {
			reason = reason[:closeReasonMax]
		}
		_ = t.conn.Close(websocket.StatusNormalClosure, reason)
	})
}

func (t *wsTransport) writeLoop() {
	for {
		select {
		case <-t.closed:
			return
		case frame := <-t.outbound:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := t.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				t.Close("write failed")
				return
			}
		}
	}
}
