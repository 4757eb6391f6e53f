package service

import (
	"context"
	"sync"

	"github.com/peerline/peerline/internal/core/domain"
	"github.com/peerline/peerline/internal/core/port"
)

// fakeGateway records every envelope sent to each participant and doubles as
// the client registry, standing in for the websocket hub.
type fakeGateway struct {
	mu      sync.Mutex
	clients map[domain.ParticipantID]port.Client
	inbox   map[domain.ParticipantID][]domain.Envelope
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		clients: make(map[domain.ParticipantID]port.Client),
		inbox:   make(map[domain.ParticipantID][]domain.Envelope),
	}
}

func (g *fakeGateway) Register(c port.Client) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[c.ID()]; ok {
		return domain.ErrAlreadyRegistered
	}
	g.clients[c.ID()] = c
	return nil
}

func (g *fakeGateway) Unregister(id domain.ParticipantID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, id)
}

func (g *fakeGateway) Connected(id domain.ParticipantID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.clients[id]
	return ok
}

func (g *fakeGateway) Send(ctx context.Context, to domain.ParticipantID, env domain.Envelope) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[to]; !ok {
		return domain.ErrInvalidTarget
	}
	g.inbox[to] = append(g.inbox[to], env)
	return nil
}

func (g *fakeGateway) connect(ids ...domain.ParticipantID) {
	for _, id := range ids {
		_ = g.Register(fakeClient{id: id})
	}
}

func (g *fakeGateway) sent(to domain.ParticipantID) []domain.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.Envelope(nil), g.inbox[to]...)
}

func (g *fakeGateway) sentOfType(to domain.ParticipantID, t domain.EnvelopeType) []domain.Envelope {
	var out []domain.Envelope
	for _, env := range g.sent(to) {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type fakeClient struct {
	id domain.ParticipantID
}

func (c fakeClient) ID() domain.ParticipantID          { return c.id }
func (c fakeClient) Deliver(env domain.Envelope) error { return nil }
func (c fakeClient) Close() error                      { return nil }

// fakeLog is an in-memory port.MessageLog that records dropped rooms.
type fakeLog struct {
	mu      sync.Mutex
	byRoom  map[domain.RoomID][]domain.Message
	dropped []domain.RoomID
}

func newFakeLog() *fakeLog {
	return &fakeLog{byRoom: make(map[domain.RoomID][]domain.Message)}
}

func (l *fakeLog) Append(ctx context.Context, msg domain.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byRoom[msg.RoomID] = append(l.byRoom[msg.RoomID], msg)
	return nil
}

func (l *fakeLog) Recent(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Message(nil), l.byRoom[room]...), nil
}

func (l *fakeLog) DropRoom(ctx context.Context, room domain.RoomID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byRoom, room)
	l.dropped = append(l.dropped, room)
	return nil
}
