package domain

import (
	"encoding/json"
	"fmt"
	"sync"
)

type SessionState string

const (
	SessionIdle          SessionState = "idle"
	SessionOffering      SessionState = "offering"
	SessionWaitingAnswer SessionState = "waiting-answer"
	SessionAnswering     SessionState = "answering"
	SessionConnected     SessionState = "connected"
	SessionClosed        SessionState = "closed"
	SessionFailed        SessionState = "failed"
)

// Delivery is an envelope the machine wants carried to a participant. The
// machine itself performs no I/O; the relay executes deliveries in order.
type Delivery struct {
	To  ParticipantID
	Env Envelope
}

// Session is the negotiation state machine for one unordered pair of
// participants. At most one logical session exists per pair; at most one side
// holds the offerer role at a time. Candidates addressed to a side whose
// remote description is not yet consumable are buffered per side, bounded by
// bufferLimit (0 lifts the bound), and replayed in arrival order once the
// pair connects.
//
// All methods are safe for concurrent use; operations on a single pair are
// serialized by the session's own lock, so independent pairs never contend.
type Session struct {
	mu          sync.Mutex
	key         PairKey
	state       SessionState
	offerer     ParticipantID
	pending     map[ParticipantID][]Envelope
	bufferLimit int
}

func NewSession(a, b ParticipantID, bufferLimit int) *Session {
	return &Session{
		key:         NewPairKey(a, b),
		state:       SessionIdle,
		pending:     make(map[ParticipantID][]Envelope, 2),
		bufferLimit: bufferLimit,
	}
}

func (s *Session) Key() PairKey { return s.key }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SideState is the state as seen from one participant's perspective: while
// the pair awaits an answer, the non-offerer side is answering.
func (s *Session) SideState(id ParticipantID) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionWaitingAnswer && id != s.offerer {
		return SessionAnswering
	}
	return s.state
}

func (s *Session) Offerer() ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offerer
}

func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SessionClosed || s.state == SessionFailed
}

// ApplyOffer records from as the offerer and asks the relay to deliver the
// offer to the counterpart. A simultaneous offer from the other side (glare)
// is resolved by total order of the identity strings: the lexicographically
// smaller identity's offer wins, the loser's offer is discarded without error
// and the loser becomes the answerer. Both peers converge on the same outcome
// from the identities alone.
func (s *Session) ApplyOffer(from ParticipantID, payload json.RawMessage) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionIdle:
		s.offerer = from
		s.state = SessionOffering
		return []Delivery{{
			To:  s.key.Other(from),
			Env: NewSignalEnvelope(EnvelopeOffer, from, s.key.Other(from), payload),
		}}, nil

	case SessionOffering, SessionWaitingAnswer:
		if from == s.offerer {
			return nil, fmt.Errorf("%w: duplicate offer", ErrProtocolViolation)
		}
		// Glare. The smaller identity keeps the offerer role.
		if s.offerer == s.key.Lo {
			return nil, nil
		}
		s.offerer = from
		s.state = SessionOffering
		return []Delivery{{
			To:  s.key.Other(from),
			Env: NewSignalEnvelope(EnvelopeOffer, from, s.key.Other(from), payload),
		}}, nil

	case SessionConnected:
		return nil, fmt.Errorf("%w: offer for connected session", ErrProtocolViolation)

	default:
		return nil, ErrSessionClosed
	}
}

// OfferDelivered marks the in-flight offer as handed to the target. The pair
// now waits for the answer; the relay does not block.
func (s *Session) OfferDelivered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionOffering {
		s.state = SessionWaitingAnswer
	}
}

// ApplyAnswer completes the exchange: the pair connects and every buffered
// candidate is released, in original arrival order, to the side that can now
// consume it. A second answer for an already-connected pair is a protocol
// violation and does not alter state.
func (s *Session) ApplyAnswer(from ParticipantID, payload json.RawMessage) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionOffering, SessionWaitingAnswer:
		if from == s.offerer {
			return nil, fmt.Errorf("%w: answer from offerer", ErrProtocolViolation)
		}
		s.state = SessionConnected
		deliveries := []Delivery{{
			To:  s.offerer,
			Env: NewSignalEnvelope(EnvelopeAnswer, from, s.offerer, payload),
		}}
		deliveries = append(deliveries, s.drainLocked(s.offerer)...)
		deliveries = append(deliveries, s.drainLocked(from)...)
		return deliveries, nil

	case SessionConnected:
		return nil, fmt.Errorf("%w: duplicate answer", ErrProtocolViolation)

	case SessionIdle:
		return nil, fmt.Errorf("%w: answer with no outstanding offer", ErrProtocolViolation)

	default:
		return nil, ErrSessionClosed
	}
}

// ApplyCandidate forwards the candidate when the receiving side can consume
// it, and buffers it otherwise. When a side's buffer is full the oldest entry
// is evicted and the sender is told its connectivity is degraded, rather than
// growing memory silently.
func (s *Session) ApplyCandidate(from ParticipantID, payload json.RawMessage) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	to := s.key.Other(from)
	env := NewSignalEnvelope(EnvelopeCandidate, from, to, payload)

	switch s.state {
	case SessionConnected:
		return []Delivery{{To: to, Env: env}}, nil

	case SessionClosed, SessionFailed:
		return nil, ErrSessionClosed

	default:
		var deliveries []Delivery
		if s.bufferLimit > 0 && len(s.pending[to]) >= s.bufferLimit {
			s.pending[to] = s.pending[to][1:]
			deliveries = append(deliveries, Delivery{
				To:  from,
				Env: Envelope{Type: EnvelopeError, To: from, Reason: "candidate-buffer-overflow"},
			})
		}
		s.pending[to] = append(s.pending[to], env)
		return deliveries, nil
	}
}

// Close moves the session to its terminal Closed state and notifies the
// counterpart. Closing an already-terminal session is a no-op, so explicit
// end-call, leave and disconnect may race freely.
func (s *Session) Close(by ParticipantID) []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed || s.state == SessionFailed {
		return nil
	}
	s.state = SessionClosed
	s.pending = make(map[ParticipantID][]Envelope)

	other := s.key.Other(by)
	return []Delivery{{
		To:  other,
		Env: Envelope{Type: EnvelopeBye, From: by, To: other, Reason: "peer-closed"},
	}}
}

// Fail moves the session to Failed and reports the reason to both sides.
// Buffered candidates are released for collection immediately.
func (s *Session) Fail(cause error) []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed || s.state == SessionFailed {
		return nil
	}
	s.state = SessionFailed
	s.pending = make(map[ParticipantID][]Envelope)

	reason := Reason(cause)
	return []Delivery{
		{To: s.key.Lo, Env: Envelope{Type: EnvelopeError, To: s.key.Lo, From: s.key.Hi, Reason: reason}},
		{To: s.key.Hi, Env: Envelope{Type: EnvelopeError, To: s.key.Hi, From: s.key.Lo, Reason: reason}},
	}
}

// BufferedFor returns how many candidates are held for id. Test and
// introspection helper.
func (s *Session) BufferedFor(id ParticipantID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[id])
}

func (s *Session) drainLocked(to ParticipantID) []Delivery {
	buffered := s.pending[to]
	delete(s.pending, to)
	deliveries := make([]Delivery, 0, len(buffered))
	for _, env := range buffered {
		deliveries = append(deliveries, Delivery{To: to, Env: env})
	}
	return deliveries
}
