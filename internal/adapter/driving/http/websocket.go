package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peerline/peerline/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// TODO: only for dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

var validate = validator.New()

// incomingDTO mirrors domain.Envelope on the wire. From is never taken from
// the client; the server stamps the connection's identity.
type incomingDTO struct {
	Type    string          `json:"type" validate:"required,oneof=join leave offer answer candidate bye chat"`
	To      string          `json:"to,omitempty"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSClient adapts one gorilla connection to port.Client. Outbound envelopes
// pass through a buffered queue drained by a single write pump, preserving
// delivery order per target.
type WSClient struct {
	id   domain.ParticipantID
	conn *websocket.Conn
	send chan domain.Envelope
	once sync.Once
	done chan struct{}
}

func newWSClient(id domain.ParticipantID, conn *websocket.Conn, queueDepth int) *WSClient {
	return &WSClient{
		id:   id,
		conn: conn,
		send: make(chan domain.Envelope, queueDepth),
		done: make(chan struct{}),
	}
}

func (c *WSClient) ID() domain.ParticipantID { return c.id }

func (c *WSClient) Deliver(env domain.Envelope) error {
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return domain.ErrTransportLost
	default:
		return errors.New("send queue full")
	}
}

func (c *WSClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSClient) writePump() {
	for {
		select {
		case env := <-c.send:
			if err := c.conn.WriteJSON(env); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	clientID := domain.NewParticipantID()
	client := newWSClient(clientID, conn, h.SendQueueDepth)

	l := log.With().Str("client_id", clientID.String()).Logger()
	l.Info().Msg("New client connected")

	if err := h.Supervisor.Connect(client); err != nil {
		l.Error().Err(err).Msg("Failed to register client")
		conn.Close()
		return
	}
	go client.writePump()

	defer func() {
		l.Info().Msg("Client disconnected")
		h.Supervisor.Disconnect(r.Context(), clientID)
		client.Close()
	}()

	// Tell the participant its assigned identity before anything else.
	if err := client.Deliver(domain.Envelope{Type: domain.EnvelopeWelcome, To: clientID}); err != nil {
		l.Error().Err(err).Msg("Failed to deliver welcome")
		return
	}

	for {
		var req incomingDTO
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		if err := validate.Struct(req); err != nil {
			l.Debug().Err(err).Msg("Invalid envelope")
			if err := client.Deliver(domain.NewErrorEnvelope(domain.ErrProtocolViolation, clientID)); err != nil {
				break
			}
			continue
		}

		h.Supervisor.HandleEnvelope(r.Context(), clientID, domain.Envelope{
			Type:    domain.EnvelopeType(req.Type),
			From:    clientID,
			To:      domain.ParticipantID(req.To),
			Room:    domain.RoomID(req.Room),
			Payload: req.Payload,
		})
	}
}
