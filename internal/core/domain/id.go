package domain

import (
	"github.com/google/uuid"
)

// ParticipantID is the stable identity assigned to a connection for its
// lifetime. It is an opaque string; ordering between two IDs is used only
// for deterministic glare resolution.
type ParticipantID string

// RoomID names a room. Caller-supplied; a generated one is used when the
// caller provides none.
type RoomID string

type MessageID uuid.UUID

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.New().String())
}

func NewRoomID() RoomID {
	return RoomID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func (id ParticipantID) String() string { return string(id) }

func (id RoomID) String() string { return string(id) }

func (id MessageID) String() string { return uuid.UUID(id).String() }

// PairKey identifies the unordered pair of participants behind a negotiation
// session. NewPairKey canonicalizes so {a,b} and {b,a} map to the same key.
type PairKey struct {
	Lo ParticipantID
	Hi ParticipantID
}

func NewPairKey(a, b ParticipantID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// Other returns the counterpart of id within the pair.
func (k PairKey) Other(id ParticipantID) ParticipantID {
	if id == k.Lo {
		return k.Hi
	}
	return k.Lo
}

// Has reports whether id is one of the two participants.
func (k PairKey) Has(id ParticipantID) bool {
	return id == k.Lo || id == k.Hi
}
