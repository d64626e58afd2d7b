package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

// SSEHandler streams view invalidations to connected browsers. Each client
// only hears about its own session.
type SSEHandler struct {
	sessions  Sessions
	clients   map[string]map[chan entities.ViewInvalidation]bool // session -> clients
	mu        sync.RWMutex
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(sessions Sessions) *SSEHandler {
	return &SSEHandler{
		sessions:  sessions,
		clients:   make(map[string]map[chan entities.ViewInvalidation]bool),
		heartbeat: 30 * time.Second,
	}
}

// Publish delivers inv to every client of its session. Slow clients miss
// events rather than block the publisher.
func (h *SSEHandler) Publish(inv entities.ViewInvalidation) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for clientChan := range h.clients[inv.SessionID] {
		select {
		case clientChan <- inv:
		default:
		}
	}
}

// StreamView handles GET /api/dispatch/stream
func (h *SSEHandler) StreamView(w http.ResponseWriter, r *http.Request) {
	actor, ok := entities.ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Make sure the session exists so its poller feeds this stream.
	h.sessions.GetOrCreate(actor)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientID := uuid.NewString()
	session := actor.SessionKey()
	clientChan := make(chan entities.ViewInvalidation, 10)

	h.registerClient(session, clientChan)
	defer h.unregisterClient(session, clientChan)

	h.sendEvent(w, "connected", map[string]interface{}{
		"client_id": clientID,
		"timestamp": time.Now(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Str("client_id", clientID).Msg("client disconnected from dispatch stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case inv := <-clientChan:
			h.sendEvent(w, "invalidate", inv)
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) registerClient(session string, clientChan chan entities.ViewInvalidation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[session] == nil {
		h.clients[session] = make(map[chan entities.ViewInvalidation]bool)
	}
	h.clients[session][clientChan] = true
	log.Debug().Str("session", session).Int("clients", len(h.clients[session])).Msg("stream client registered")
}

func (h *SSEHandler) unregisterClient(session string, clientChan chan entities.ViewInvalidation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[session]; exists {
		delete(clients, clientChan)
		if len(clients) == 0 {
			delete(h.clients, session)
		}
	}
}

func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal stream event")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
