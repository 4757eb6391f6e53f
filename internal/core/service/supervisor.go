package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/peerline/peerline/internal/core/domain"
	"github.com/peerline/peerline/internal/core/port"
)

// Supervisor is the process-wide orchestrator: it owns connection lifecycle,
// dispatches inbound envelopes to the room registry, chat service and relay,
// and applies the auto-call policy.
type Supervisor struct {
	clients  port.ClientRegistry
	gateway  port.Gateway
	rooms    *RoomRegistry
	chat     *ChatService
	relay    *Relay
	autoCall bool

	mu       sync.Mutex
	prompted map[domain.PairKey]struct{}
}

func NewSupervisor(clients port.ClientRegistry, gateway port.Gateway, rooms *RoomRegistry, chat *ChatService, relay *Relay, autoCall bool) *Supervisor {
	return &Supervisor{
		clients:  clients,
		gateway:  gateway,
		rooms:    rooms,
		chat:     chat,
		relay:    relay,
		autoCall: autoCall,
		prompted: make(map[domain.PairKey]struct{}),
	}
}

// Connect registers the participant's transport handle.
func (s *Supervisor) Connect(c port.Client) error {
	return s.clients.Register(c)
}

// Disconnect releases everything the participant held: room membership
// (remaining members get user-left), in-flight negotiations (counterparts get
// a transport-lost failure) and the connection itself.
func (s *Supervisor) Disconnect(ctx context.Context, id domain.ParticipantID) {
	if roomID, ok := s.rooms.Leave(ctx, id); ok {
		log.Debug().Str("participant", id.String()).Str("room", roomID.String()).Msg("left room on disconnect")
	}
	s.relay.FailAll(ctx, id, domain.ErrTransportLost)
	s.forgetPrompts(id)
	s.clients.Unregister(id)
}

// HandleEnvelope dispatches one inbound envelope. Rejections are reported to
// the sender as an error envelope and never affect other participants.
func (s *Supervisor) HandleEnvelope(ctx context.Context, from domain.ParticipantID, env domain.Envelope) {
	var err error
	switch {
	case env.Type == domain.EnvelopeJoin:
		err = s.handleJoin(ctx, from, env.Room)
	case env.Type == domain.EnvelopeLeave:
		s.handleLeave(ctx, from)
	case env.Type == domain.EnvelopeChat:
		err = s.handleChat(ctx, from, env)
	case env.Type.IsSignal():
		err = s.relay.HandleSignal(ctx, from, env)
	default:
		err = domain.ErrProtocolViolation
	}

	if err != nil {
		log.Debug().Err(err).
			Str("participant", from.String()).
			Str("type", string(env.Type)).
			Msg("envelope rejected")
		if sendErr := s.gateway.Send(ctx, from, domain.NewErrorEnvelope(err, from)); sendErr != nil {
			log.Warn().Err(sendErr).Str("participant", from.String()).Msg("error envelope delivery failed")
		}
	}
}

func (s *Supervisor) handleJoin(ctx context.Context, from domain.ParticipantID, roomID domain.RoomID) error {
	if roomID == "" {
		roomID = domain.NewRoomID()
	}

	prior, hasPrior := s.rooms.RoomOf(from)

	snap, err := s.rooms.Join(ctx, from, roomID)
	if err != nil {
		return err
	}

	// Moving rooms ends the negotiations of the old one. A rejected switch
	// returns above and leaves them untouched.
	if hasPrior && prior != roomID {
		s.relay.CloseAll(ctx, from)
		s.forgetPrompts(from)
	}

	info, err := domain.NewRoomInfoEnvelope(roomID, snap)
	if err != nil {
		return err
	}
	if err := s.gateway.Send(ctx, from, info); err != nil {
		return err
	}

	s.maybePromptCall(ctx, from, roomID, snap)
	return nil
}

func (s *Supervisor) handleLeave(ctx context.Context, from domain.ParticipantID) {
	s.relay.CloseAll(ctx, from)
	s.forgetPrompts(from)
	s.rooms.Leave(ctx, from)
}

func (s *Supervisor) handleChat(ctx context.Context, from domain.ParticipantID, env domain.Envelope) error {
	var payload domain.ChatPayload
	if err := unmarshalChat(env.Payload, &payload); err != nil {
		return err
	}
	return s.chat.Send(ctx, from, payload.Content)
}

// maybePromptCall applies the auto-call policy: when the room reaches exactly
// two members, the earlier-joined member is prompted once to offer to the
// newcomer. The prompt bookkeeping is per pair, so repeated membership events
// never produce a second prompt.
func (s *Supervisor) maybePromptCall(ctx context.Context, joiner domain.ParticipantID, roomID domain.RoomID, snap domain.RoomSnapshot) {
	if !s.autoCall || len(snap.Members) != 1 {
		return
	}
	earlier := snap.Members[0]
	key := domain.NewPairKey(joiner, earlier)

	s.mu.Lock()
	if _, seen := s.prompted[key]; seen {
		s.mu.Unlock()
		return
	}
	s.prompted[key] = struct{}{}
	s.mu.Unlock()

	prompt := domain.Envelope{
		Type: domain.EnvelopeCallPrompt,
		From: joiner,
		To:   earlier,
		Room: roomID,
	}
	if err := s.gateway.Send(ctx, earlier, prompt); err != nil {
		log.Warn().Err(err).Str("to", earlier.String()).Msg("call prompt delivery failed")
	}
}

func unmarshalChat(raw json.RawMessage, p *domain.ChatPayload) error {
	if len(raw) == 0 {
		return domain.ErrEmptyMessage
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("%w: malformed chat payload", domain.ErrProtocolViolation)
	}
	return nil
}

func (s *Supervisor) forgetPrompts(id domain.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.prompted {
		if key.Has(id) {
			delete(s.prompted, key)
		}
	}
}
