package memory

import (
	"context"
	"sync"

	"github.com/peerline/peerline/internal/core/domain"
)

// MessageRepository keeps a bounded per-room chat log in memory. History is
// dropped with the room; nothing outlives the active session.
type MessageRepository struct {
	mu     sync.Mutex
	limit  int
	byRoom map[domain.RoomID][]domain.Message
}

func NewMessageRepository(limit int) *MessageRepository {
	return &MessageRepository{
		limit:  limit,
		byRoom: make(map[domain.RoomID][]domain.Message),
	}
}

func (r *MessageRepository) Append(ctx context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append(r.byRoom[msg.RoomID], msg)
	if r.limit > 0 && len(msgs) > r.limit {
		msgs = msgs[len(msgs)-r.limit:]
	}
	r.byRoom[msg.RoomID] = msgs
	return nil
}

func (r *MessageRepository) Recent(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.byRoom[room]...), nil
}

func (r *MessageRepository) DropRoom(ctx context.Context, room domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byRoom, room)
	return nil
}
