package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/peerline/peerline/internal/core/domain"
	"github.com/peerline/peerline/internal/core/port"
)

// RoomRegistry tracks which participant belongs to which room. Each room
// carries its own lock: membership changes and the events they emit are
// serialized per room, so every member observes the same relative order,
// while independent rooms proceed fully in parallel.
type RoomRegistry struct {
	gateway  port.Gateway
	messages port.MessageLog
	capacity int

	mu       sync.RWMutex
	rooms    map[domain.RoomID]*room
	byMember map[domain.ParticipantID]domain.RoomID
}

type room struct {
	mu        sync.Mutex
	members   []domain.ParticipantID // join order
	reclaimed bool
}

// NewRoomRegistry creates a registry. capacity bounds room membership; a join
// into a full room is rejected with domain.ErrRoomFull.
func NewRoomRegistry(gateway port.Gateway, messages port.MessageLog, capacity int) *RoomRegistry {
	return &RoomRegistry{
		gateway:  gateway,
		messages: messages,
		capacity: capacity,
		rooms:    make(map[domain.RoomID]*room),
		byMember: make(map[domain.ParticipantID]domain.RoomID),
	}
}

// Join moves id into roomID and returns the room snapshot built atomically
// with the admission: the joiner cannot miss a membership event emitted to
// the others in the same instant. Existing members receive user-joined.
// Admission is decided before the prior room is touched, so a rejected
// switch leaves the old membership intact; on success the prior room is left
// afterwards (remaining members get user-left). Joining the current room
// again just refreshes the snapshot.
func (r *RoomRegistry) Join(ctx context.Context, id domain.ParticipantID, roomID domain.RoomID) (domain.RoomSnapshot, error) {
	prior, hasPrior := r.RoomOf(id)
	if hasPrior && prior == roomID {
		return r.snapshotFor(ctx, id, roomID)
	}

	rm := r.acquireRoom(roomID)

	if r.capacity > 0 && len(rm.members) >= r.capacity {
		rm.mu.Unlock()
		return domain.RoomSnapshot{}, domain.ErrRoomFull
	}

	others := make([]domain.ParticipantID, 0, len(rm.members))
	others = append(others, rm.members...)
	rm.members = append(rm.members, id)

	r.mu.Lock()
	priorRoom := r.rooms[prior]
	r.byMember[id] = roomID
	r.mu.Unlock()

	snap := domain.RoomSnapshot{
		Members:        others,
		RecentMessages: r.recentPayloads(ctx, roomID),
	}

	joined := domain.Envelope{Type: domain.EnvelopeUserJoined, From: id, Room: roomID}
	for _, m := range others {
		if err := r.gateway.Send(ctx, m, joined); err != nil {
			log.Warn().Err(err).Str("member", m.String()).Msg("user-joined delivery failed")
		}
	}
	rm.mu.Unlock()

	if hasPrior && priorRoom != nil {
		r.removeFrom(ctx, priorRoom, prior, id)
	}
	return snap, nil
}

// Leave removes id from its room, notifies the remaining members and reclaims
// the room once empty. Reports the room left, if any.
func (r *RoomRegistry) Leave(ctx context.Context, id domain.ParticipantID) (domain.RoomID, bool) {
	r.mu.Lock()
	roomID, ok := r.byMember[id]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	rm := r.rooms[roomID]
	delete(r.byMember, id)
	r.mu.Unlock()
	if rm == nil {
		return roomID, true
	}
	r.removeFrom(ctx, rm, roomID, id)
	return roomID, true
}

// removeFrom drops id from rm's member list, broadcasts user-left to the
// remaining members and reclaims the room once empty. Never called with
// another room's lock held.
func (r *RoomRegistry) removeFrom(ctx context.Context, rm *room, roomID domain.RoomID, id domain.ParticipantID) {
	rm.mu.Lock()
	rm.members = lo.Filter(rm.members, func(m domain.ParticipantID, _ int) bool { return m != id })
	remaining := append([]domain.ParticipantID(nil), rm.members...)
	empty := len(remaining) == 0
	if empty {
		rm.reclaimed = true
	}
	left := domain.Envelope{Type: domain.EnvelopeUserLeft, From: id, Room: roomID}
	for _, m := range remaining {
		if err := r.gateway.Send(ctx, m, left); err != nil {
			log.Warn().Err(err).Str("member", m.String()).Msg("user-left delivery failed")
		}
	}
	rm.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[roomID] == rm {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
		if err := r.messages.DropRoom(ctx, roomID); err != nil {
			log.Warn().Err(err).Str("room", roomID.String()).Msg("dropping room log failed")
		}
	}
}

// RoomOf reports the room id currently belongs to.
func (r *RoomRegistry) RoomOf(id domain.ParticipantID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byMember[id]
	return roomID, ok
}

// Members returns the current member set of roomID in join order.
func (r *RoomRegistry) Members(roomID domain.RoomID) ([]domain.ParticipantID, error) {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm == nil {
		return nil, domain.ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return append([]domain.ParticipantID(nil), rm.members...), nil
}

// Broadcast delivers env to every member of roomID, serialized on the room.
func (r *RoomRegistry) Broadcast(ctx context.Context, roomID domain.RoomID, env domain.Envelope) error {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm == nil {
		return domain.ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, m := range rm.members {
		if err := r.gateway.Send(ctx, m, env); err != nil {
			log.Warn().Err(err).Str("member", m.String()).Msg("broadcast delivery failed")
		}
	}
	return nil
}

// acquireRoom returns the live room for roomID with its lock held, creating
// it on first join. A room reclaimed between lookup and lock is retried.
func (r *RoomRegistry) acquireRoom(roomID domain.RoomID) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[roomID]
		if !ok {
			rm = &room{}
			r.rooms[roomID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.reclaimed {
			rm.mu.Unlock()
			continue
		}
		return rm
	}
}

func (r *RoomRegistry) snapshotFor(ctx context.Context, id domain.ParticipantID, roomID domain.RoomID) (domain.RoomSnapshot, error) {
	members, err := r.Members(roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return domain.RoomSnapshot{
		Members:        lo.Filter(members, func(m domain.ParticipantID, _ int) bool { return m != id }),
		RecentMessages: r.recentPayloads(ctx, roomID),
	}, nil
}

func (r *RoomRegistry) recentPayloads(ctx context.Context, roomID domain.RoomID) []domain.ChatPayload {
	recent, err := r.messages.Recent(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Str("room", roomID.String()).Msg("reading room log failed")
		recent = nil
	}
	return lo.Map(recent, func(m domain.Message, _ int) domain.ChatPayload {
		return m.Payload()
	})
}
