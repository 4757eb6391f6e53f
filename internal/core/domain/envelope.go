package domain

import (
	"encoding/json"
)

type EnvelopeType string

const (
	// Client -> server.
	EnvelopeJoin      EnvelopeType = "join"
	EnvelopeLeave     EnvelopeType = "leave"
	EnvelopeOffer     EnvelopeType = "offer"
	EnvelopeAnswer    EnvelopeType = "answer"
	EnvelopeCandidate EnvelopeType = "candidate"
	EnvelopeBye       EnvelopeType = "bye"
	EnvelopeChat      EnvelopeType = "chat"

	// Server -> client.
	EnvelopeWelcome    EnvelopeType = "welcome"
	EnvelopeRoomInfo   EnvelopeType = "room-info"
	EnvelopeUserJoined EnvelopeType = "user-joined"
	EnvelopeUserLeft   EnvelopeType = "user-left"
	EnvelopeCallPrompt EnvelopeType = "call-prompt"
	EnvelopeError      EnvelopeType = "error"
)

// Envelope is the sole wire contract between peers and the core. The payload
// of offer/answer/candidate envelopes is an opaque blob the core never
// inspects beyond the discriminant.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	From    ParticipantID   `json:"from,omitempty"`
	To      ParticipantID   `json:"to,omitempty"`
	Room    RoomID          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// IsSignal reports whether t is one of the negotiation envelope types that
// flow through the signaling relay.
func (t EnvelopeType) IsSignal() bool {
	switch t {
	case EnvelopeOffer, EnvelopeAnswer, EnvelopeCandidate, EnvelopeBye:
		return true
	}
	return false
}

// ChatPayload is the payload of chat envelopes and of the recentMessages
// entries in a room snapshot.
type ChatPayload struct {
	Sender  ParticipantID `json:"sender"`
	Content string        `json:"content"`
	SentAt  string        `json:"sentAt"`
}

// RoomSnapshot is delivered to a joining participant atomically with its
// admission, so it cannot miss membership events emitted in the same instant.
type RoomSnapshot struct {
	Members        []ParticipantID `json:"members"`
	RecentMessages []ChatPayload   `json:"recentMessages"`
}

func NewSignalEnvelope(t EnvelopeType, from, to ParticipantID, payload json.RawMessage) Envelope {
	return Envelope{Type: t, From: from, To: to, Payload: payload}
}

func NewErrorEnvelope(err error, to ParticipantID) Envelope {
	return Envelope{Type: EnvelopeError, To: to, Reason: Reason(err)}
}

func NewRoomInfoEnvelope(room RoomID, snap RoomSnapshot) (Envelope, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: EnvelopeRoomInfo, Room: room, Payload: payload}, nil
}
