package ws

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peerline/peerline/internal/core/domain"
	"github.com/peerline/peerline/internal/core/port"
)

// Hub is the connection registry: it maps live participant identities to
// their transport handles and delivers envelopes to them. Lookup is guarded
// by a read/write lock only; actual delivery goes through each client's own
// ordered queue, so one slow participant never stalls the rest.
//
// Implements port.Gateway and port.ClientRegistry.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ParticipantID]port.Client
	stopped bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[domain.ParticipantID]port.Client),
	}
}

func (h *Hub) Register(c port.Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return domain.ErrTransportLost
	}
	if _, ok := h.clients[c.ID()]; ok {
		return domain.ErrAlreadyRegistered
	}
	h.clients[c.ID()] = c
	log.Info().Str("client_id", c.ID().String()).Msg("Client registered")
	return nil
}

func (h *Hub) Unregister(id domain.ParticipantID) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if ok {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Str("client_id", id.String()).Msg("Error closing client connection")
		}
		log.Info().Str("client_id", id.String()).Msg("Client unregistered")
	}
}

func (h *Hub) Connected(id domain.ParticipantID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[id]
	return ok
}

// Send enqueues env for id. A participant whose queue is full is
// disconnected rather than allowed to stall its room.
func (h *Hub) Send(ctx context.Context, id domain.ParticipantID, env domain.Envelope) error {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return domain.ErrInvalidTarget
	}
	if err := c.Deliver(env); err != nil {
		log.Warn().Err(err).Str("client_id", id.String()).Msg("Dropping unresponsive client")
		h.Unregister(id)
		return domain.ErrInvalidTarget
	}
	return nil
}

// Stop closes every remaining connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	remaining := make([]port.Client, 0, len(h.clients))
	for _, c := range h.clients {
		remaining = append(remaining, c)
	}
	h.clients = make(map[domain.ParticipantID]port.Client)
	h.mu.Unlock()

	for _, c := range remaining {
		c.Close()
	}
}
