package domain

import "errors"

var (
	// ErrInvalidTarget is returned when an envelope addresses an unknown or
	// disconnected participant.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrProtocolViolation is returned when an envelope type is illegal for
	// the pair's current negotiation state (duplicate offer, answer with no
	// outstanding offer, ...).
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrNegotiationTimeout is the failure reason when no answer arrives
	// within the configured bound.
	ErrNegotiationTimeout = errors.New("negotiation timeout")

	// ErrTransportLost is the failure reason when a participant's connection
	// drops mid-negotiation.
	ErrTransportLost = errors.New("transport lost")

	ErrRoomFull          = errors.New("room full")
	ErrRoomNotFound      = errors.New("room not found")
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrEmptyMessage      = errors.New("message content cannot be empty")
	ErrSessionClosed     = errors.New("session closed")
)

// Reason maps an error to the wire-level reason code carried by error
// envelopes and terminal session events.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTarget):
		return "invalid-target"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol-violation"
	case errors.Is(err, ErrNegotiationTimeout):
		return "negotiation-timeout"
	case errors.Is(err, ErrTransportLost):
		return "transport-lost"
	case errors.Is(err, ErrRoomFull):
		return "room-full"
	case errors.Is(err, ErrRoomNotFound):
		return "room-not-found"
	case errors.Is(err, ErrSessionClosed):
		return "session-closed"
	default:
		return "internal"
	}
}
