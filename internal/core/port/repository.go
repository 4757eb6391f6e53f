package port

import (
	"context"

	"github.com/peerline/peerline/internal/core/domain"
)

// MessageLog keeps the recent chat history of active rooms. History does not
// outlive the room.
type MessageLog interface {
	Append(ctx context.Context, msg domain.Message) error
	Recent(ctx context.Context, room domain.RoomID) ([]domain.Message, error)
	DropRoom(ctx context.Context, room domain.RoomID) error
}
