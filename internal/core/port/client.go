package port

import "github.com/peerline/peerline/internal/core/domain"

// Client is one connected participant's transport handle as seen by the core.
// Deliver must not block on the peer: implementations enqueue and report an
// error when the participant cannot keep up.
type Client interface {
	ID() domain.ParticipantID
	Deliver(env domain.Envelope) error
	Close() error
}
