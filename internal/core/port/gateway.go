package port

import (
	"context"

	"github.com/peerline/peerline/internal/core/domain"
)

// Gateway delivers envelopes to currently connected participants. Delivery to
// a given target preserves the order in which envelopes were handed over.
type Gateway interface {
	// Send enqueues env for to. Returns domain.ErrInvalidTarget when the
	// participant is unknown or already disconnected.
	Send(ctx context.Context, to domain.ParticipantID, env domain.Envelope) error
	Connected(to domain.ParticipantID) bool
}

// ClientRegistry owns the connection -> identity association.
type ClientRegistry interface {
	// Register fails with domain.ErrAlreadyRegistered when the handle's
	// identity is already live.
	Register(c Client) error
	Unregister(id domain.ParticipantID)
}
