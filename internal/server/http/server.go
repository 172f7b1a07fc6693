// Package httpserver exposes the administrative HTTP surface of the event
// hub: statistics, routing tables, dead-letter inspection, history queries,
// and breaker controls.
package httpserver

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/health"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/hub"
	"github.com/vigoferrel/qbtc-futures-system-sub008/internal/router"
)

const (
	statsPath        = "/stats"
	routesPath       = "/routes"
	topicsPath       = "/topics"
	connectionsPath  = "/connections"
	historyPath      = "/history"
	dlqPath          = "/dlq"
	dlqDrainPath     = "/dlq/drain"
	breakerPath      = "/breaker"
	breakerResetPath = "/breaker/reset"
	healthzPath      = "/healthz"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	hub    *hub.Hub
	health *health.Poller
}

// NewHandler creates the administrative HTTP handler over the hub.
func NewHandler(h *hub.Hub, poller *health.Poller) http.Handler {
	server := &httpServer{hub: h, health: poller}
	mux := http.NewServeMux()

	mux.Handle(statsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getStats,
	}))
	mux.Handle(routesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getRoutes,
	}))
	mux.Handle(topicsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getTopics,
	}))
	mux.Handle(connectionsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getConnections,
	}))
	mux.Handle(historyPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getHistory,
	}))
	mux.Handle(dlqPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getDLQ,
	}))
	mux.Handle(dlqDrainPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.drainDLQ,
	}))
	mux.Handle(breakerPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getBreaker,
	}))
	mux.Handle(breakerResetPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.resetBreaker,
	}))
	mux.Handle(healthzPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getHealthz,
	}))

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func (s *httpServer) getStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.hub.Stats().Snapshot(s.hub.DLQ().Len())
	writeJSON(w, http.StatusOK, snap)
}

func (s *httpServer) getRoutes(w http.ResponseWriter, _ *http.Request) {
	if s.hub.Router() == nil {
		writeJSON(w, http.StatusOK, router.Snapshot{Sent: map[string]uint64{}})
		return
	}
	writeJSON(w, http.StatusOK, s.hub.Router().Snapshot())
}

func (s *httpServer) getTopics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.hub.TopicsSnapshot()})
}

func (s *httpServer) getConnections(w http.ResponseWriter, _ *http.Request) {
	conns := s.hub.ConnectionsSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{"connections": conns, "count": len(conns)})
}

func (s *httpServer) getHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	topic := strings.TrimSpace(query.Get("topic"))

	since := time.Time{}
	if raw := query.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	events := s.hub.History().Query(topic, since, limit)
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func (s *httpServer) getDLQ(w http.ResponseWriter, _ *http.Request) {
	entries := s.hub.DLQ().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "size": len(entries)})
}

func (s *httpServer) drainDLQ(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	drained := s.hub.DrainDLQ(limit)
	writeJSON(w, http.StatusOK, map[string]any{"drained": drained, "remaining": s.hub.DLQ().Len()})
}

func (s *httpServer) getBreaker(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Breaker().Snapshot())
}

func (s *httpServer) resetBreaker(w http.ResponseWriter, _ *http.Request) {
	s.hub.Breaker().Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "breaker": s.hub.Breaker().Snapshot()})
}

func (s *httpServer) getHealthz(w http.ResponseWriter, _ *http.Request) {
	services := map[string]bool{}
	if s.health != nil {
		services = s.health.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "services": services})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
