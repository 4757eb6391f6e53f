package domain

import (
	"time"
)

type Message struct {
	ID        MessageID
	RoomID    RoomID
	SenderID  ParticipantID
	Content   string
	CreatedAt time.Time
}

// Payload converts the message to its wire representation.
func (m Message) Payload() ChatPayload {
	return ChatPayload{
		Sender:  m.SenderID,
		Content: m.Content,
		SentAt:  m.CreatedAt.Format(time.RFC3339Nano),
	}
}

func NewMessage(senderID ParticipantID, roomID RoomID, content string) (*Message, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}
	return &Message{
		ID:        NewMessageID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}
