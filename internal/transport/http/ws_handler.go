package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"livequiz/internal/app"
	"livequiz/internal/domain"
	"livequiz/internal/relay"
)

// SessionIndexer mirrors session liveness into a shared index (Redis in
// production). NoopIndexer stands in when no index is configured.
type SessionIndexer interface {
	Mark(ctx context.Context, session *domain.Session)
	Refresh(ctx context.Context, session *domain.Session)
	Clear(ctx context.Context, session *domain.Session)
	TokenForCode(ctx context.Context, code string) (string, bool)
}

// NoopIndexer satisfies SessionIndexer without doing anything.
type NoopIndexer struct{}

func (NoopIndexer) Mark(context.Context, *domain.Session)    {}
func (NoopIndexer) Refresh(context.Context, *domain.Session) {}
func (NoopIndexer) Clear(context.Context, *domain.Session)   {}
func (NoopIndexer) TokenForCode(context.Context, string) (string, bool) {
	return "", false
}

type WSHandler struct {
	engine   *app.Engine
	relay    *relay.Relay
	index    SessionIndexer
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, r *relay.Relay, index SessionIndexer) *WSHandler {
	if index == nil {
		index = NoopIndexer{}
	}
	return &WSHandler{
		engine: engine,
		relay:  r,
		index:  index,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Order    int    `json:"order"`
	AnswerID string `json:"answer_id"`
}

type orderPayload struct {
	Order int `json:"order"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type joinAck struct {
	Status string `json:"status"`
	Room   string `json:"room,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and wires it into the session room:
// validate, ack, snapshot, then relay events out while dispatching inbound
// commands to the engine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}
	identity := app.Identity{
		UserID: r.URL.Query().Get("userId"),
		Name:   r.URL.Query().Get("name"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.engine.SessionByToken(ctx, token)
	if err != nil || !session.IsActive {
		_ = conn.WriteJSON(outboundMessage{Type: "joined", Payload: joinAck{Status: "error"}})
		return
	}
	h.index.Refresh(ctx, session)

	isHost := identity.UserID != "" && identity.UserID == session.HostID
	if !isHost && (identity.UserID != "" || identity.Name != "") {
		if _, err := h.engine.Join(ctx, token, identity); err != nil {
			_ = conn.WriteJSON(outboundMessage{Type: "joined", Payload: joinAck{Status: "error"}})
			_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
	}

	sub := h.relay.Join(token)
	defer h.relay.Leave(token, sub)

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: ev.Name, Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "joined", Payload: joinAck{Status: "joined", Room: token}}
	// Late joiners get a full snapshot immediately, not just future events.
	if status, err := h.engine.Status(ctx, token); err == nil {
		send <- outboundMessage{Type: domain.EventSessionState, Payload: status.SessionState}
		if status.Update != nil {
			send <- outboundMessage{Type: domain.EventAnswerUpdate, Payload: *status.Update}
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, send, token, identity, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, send chan<- outboundMessage, token string, identity app.Identity, inbound inboundMessage) {
	switch inbound.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errorMessage("invalid answer payload")
			return
		}
		result, err := h.engine.SubmitAnswer(ctx, token, identity, payload.Order, payload.AnswerID)
		if err != nil {
			send <- errorMessage(err.Error())
			return
		}
		send <- outboundMessage{Type: "answer_result", Payload: result}

	case "joker":
		var payload orderPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errorMessage("invalid joker payload")
			return
		}
		result, err := h.engine.UseJoker(ctx, token, identity, payload.Order)
		if err != nil {
			send <- errorMessage(err.Error())
			return
		}
		// The reduced option set goes to the requester only; broadcasting it
		// would leak the eliminated options to the rest of the room.
		send <- outboundMessage{Type: "joker_result", Payload: result}

	case "start":
		var payload orderPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- errorMessage("invalid start payload")
			return
		}
		if _, err := h.engine.StartQuestion(ctx, token, identity, payload.Order); err != nil {
			send <- errorMessage(err.Error())
		}

	case "finish":
		if err := h.engine.Finish(ctx, token, identity); err != nil {
			send <- errorMessage(err.Error())
			return
		}
		if session, err := h.engine.SessionByToken(ctx, token); err == nil {
			h.index.Clear(ctx, session)
		}

	case "leave":
		// The read loop exits when the client closes; leave is just an
		// explicit way to stop receiving without closing the socket wiring.
		send <- outboundMessage{Type: "left", Payload: joinAck{Status: "left"}}

	default:
		send <- errorMessage("unsupported message type")
	}
}

func errorMessage(msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
}

// statusCode maps engine errors onto HTTP-equivalent classes for the REST
// surface; the websocket path sends the message text as-is.
func statusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotStarted),
		errors.Is(err, domain.ErrTimeExpired),
		errors.Is(err, domain.ErrSessionFinished),
		errors.Is(err, domain.ErrJokersExhausted),
		errors.Is(err, domain.ErrAlreadyAnswered),
		errors.Is(err, domain.ErrQuizEmpty):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
