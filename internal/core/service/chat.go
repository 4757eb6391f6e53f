package service

import (
	"context"
	"encoding/json"

	"github.com/peerline/peerline/internal/core/domain"
	"github.com/peerline/peerline/internal/core/port"
)

type ChatService struct {
	messages port.MessageLog
	rooms    *RoomRegistry
}

func NewChatService(messages port.MessageLog, rooms *RoomRegistry) *ChatService {
	return &ChatService{
		messages: messages,
		rooms:    rooms,
	}
}

// Send appends the message to the sender's room log and broadcasts it to the
// room, sender included.
func (s *ChatService) Send(ctx context.Context, sender domain.ParticipantID, content string) error {
	roomID, ok := s.rooms.RoomOf(sender)
	if !ok {
		return domain.ErrRoomNotFound
	}

	msg, err := domain.NewMessage(sender, roomID, content)
	if err != nil {
		return err
	}
	if err := s.messages.Append(ctx, *msg); err != nil {
		return err
	}

	payload, err := json.Marshal(msg.Payload())
	if err != nil {
		return err
	}
	return s.rooms.Broadcast(ctx, roomID, domain.Envelope{
		Type:    domain.EnvelopeChat,
		From:    sender,
		Room:    roomID,
		Payload: payload,
	})
}
