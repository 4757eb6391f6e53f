package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerline/peerline/internal/core/domain"
	"github.com/peerline/peerline/internal/core/port"
)

// Relay routes signaling envelopes between participants. It resolves the
// target, feeds the envelope to the pair's negotiation session and carries
// out the deliveries the session asks for. Payloads are never inspected.
type Relay struct {
	gateway     port.Gateway
	timeout     time.Duration
	bufferLimit int

	mu       sync.Mutex
	sessions map[domain.PairKey]*sessionEntry
}

type sessionEntry struct {
	sess  *domain.Session
	timer *time.Timer
}

func NewRelay(gateway port.Gateway, timeout time.Duration, bufferLimit int) *Relay {
	return &Relay{
		gateway:     gateway,
		timeout:     timeout,
		bufferLimit: bufferLimit,
		sessions:    make(map[domain.PairKey]*sessionEntry),
	}
}

// HandleSignal processes one offer/answer/candidate/bye envelope from `from`.
// The returned error describes why the envelope was rejected; the caller
// reports it to the sender as an error envelope. Other participants are never
// affected by a rejection.
func (r *Relay) HandleSignal(ctx context.Context, from domain.ParticipantID, env domain.Envelope) error {
	to := env.To
	if to == "" || to == from {
		return domain.ErrInvalidTarget
	}
	if !r.gateway.Connected(to) {
		return domain.ErrInvalidTarget
	}

	switch env.Type {
	case domain.EnvelopeOffer:
		return r.handleOffer(ctx, from, to, env)
	case domain.EnvelopeAnswer:
		return r.handleAnswer(ctx, from, to, env)
	case domain.EnvelopeCandidate:
		return r.handleCandidate(ctx, from, to, env)
	case domain.EnvelopeBye:
		return r.handleBye(ctx, from, to)
	default:
		return domain.ErrProtocolViolation
	}
}

func (r *Relay) handleOffer(ctx context.Context, from, to domain.ParticipantID, env domain.Envelope) error {
	entry := r.getOrCreate(from, to)
	deliveries, err := entry.sess.ApplyOffer(from, env.Payload)
	if err != nil {
		return err
	}
	for _, d := range deliveries {
		if sendErr := r.gateway.Send(ctx, d.To, d.Env); sendErr != nil {
			// Target vanished between resolution and delivery.
			r.failSession(ctx, entry.sess.Key(), domain.ErrTransportLost)
			return domain.ErrInvalidTarget
		}
	}
	// A discarded glare offer produced no deliveries; only a carried offer
	// advances the pair to waiting-answer.
	if len(deliveries) > 0 {
		entry.sess.OfferDelivered()
	}
	return nil
}

func (r *Relay) handleAnswer(ctx context.Context, from, to domain.ParticipantID, env domain.Envelope) error {
	key := domain.NewPairKey(from, to)
	entry := r.lookup(key)
	if entry == nil {
		return domain.ErrProtocolViolation
	}
	deliveries, err := entry.sess.ApplyAnswer(from, env.Payload)
	if err != nil {
		return err
	}
	r.deliver(ctx, deliveries)
	if entry.sess.State() == domain.SessionConnected {
		r.disarm(key)
	}
	return nil
}

func (r *Relay) handleCandidate(ctx context.Context, from, to domain.ParticipantID, env domain.Envelope) error {
	entry := r.getOrCreate(from, to)
	deliveries, err := entry.sess.ApplyCandidate(from, env.Payload)
	if err != nil {
		return err
	}
	r.deliver(ctx, deliveries)
	return nil
}

func (r *Relay) handleBye(ctx context.Context, from, to domain.ParticipantID) error {
	key := domain.NewPairKey(from, to)
	entry := r.lookup(key)
	if entry == nil {
		return nil
	}
	r.deliver(ctx, entry.sess.Close(from))
	r.remove(key)
	return nil
}

// CloseAll ends every session id takes part in, notifying each counterpart.
// Used when a participant leaves its room.
func (r *Relay) CloseAll(ctx context.Context, id domain.ParticipantID) {
	for key, entry := range r.snapshotFor(id) {
		r.deliver(ctx, entry.sess.Close(id))
		r.remove(key)
	}
}

// FailAll fails every session id takes part in with cause, notifying each
// counterpart. Used on transport loss; delivery to the lost side is skipped.
func (r *Relay) FailAll(ctx context.Context, id domain.ParticipantID, cause error) {
	for key, entry := range r.snapshotFor(id) {
		for _, d := range entry.sess.Fail(cause) {
			if d.To == id {
				continue
			}
			if err := r.gateway.Send(ctx, d.To, d.Env); err != nil {
				log.Warn().Err(err).Str("to", d.To.String()).Msg("failure notice delivery failed")
			}
		}
		r.remove(key)
	}
}

// Session exposes the live session for a pair, if any.
func (r *Relay) Session(a, b domain.ParticipantID) (*domain.Session, bool) {
	entry := r.lookup(domain.NewPairKey(a, b))
	if entry == nil {
		return nil, false
	}
	return entry.sess, true
}

func (r *Relay) getOrCreate(a, b domain.ParticipantID) *sessionEntry {
	key := domain.NewPairKey(a, b)
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[key]; ok {
		return entry
	}
	entry := &sessionEntry{sess: domain.NewSession(a, b, r.bufferLimit)}
	if r.timeout > 0 {
		entry.timer = time.AfterFunc(r.timeout, func() {
			r.failSession(context.Background(), key, domain.ErrNegotiationTimeout)
		})
	}
	r.sessions[key] = entry
	return entry
}

func (r *Relay) lookup(key domain.PairKey) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key]
}

func (r *Relay) snapshotFor(id domain.ParticipantID) map[domain.PairKey]*sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	involved := make(map[domain.PairKey]*sessionEntry)
	for key, entry := range r.sessions {
		if key.Has(id) {
			involved[key] = entry
		}
	}
	return involved
}

func (r *Relay) failSession(ctx context.Context, key domain.PairKey, cause error) {
	entry := r.lookup(key)
	if entry == nil {
		return
	}
	deliveries := entry.sess.Fail(cause)
	if len(deliveries) > 0 {
		log.Debug().
			Str("pair", key.Lo.String()+"/"+key.Hi.String()).
			Str("reason", domain.Reason(cause)).
			Msg("negotiation failed")
	}
	r.deliver(ctx, deliveries)
	r.remove(key)
}

func (r *Relay) remove(key domain.PairKey) {
	r.mu.Lock()
	entry, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	if ok && entry.timer != nil {
		entry.timer.Stop()
	}
}

func (r *Relay) disarm(key domain.PairKey) {
	r.mu.Lock()
	entry, ok := r.sessions[key]
	r.mu.Unlock()
	if ok && entry.timer != nil {
		entry.timer.Stop()
	}
}

func (r *Relay) deliver(ctx context.Context, deliveries []domain.Delivery) {
	for _, d := range deliveries {
		if err := r.gateway.Send(ctx, d.To, d.Env); err != nil {
			log.Warn().Err(err).Str("to", d.To.String()).Msg("delivery failed")
		}
	}
}
