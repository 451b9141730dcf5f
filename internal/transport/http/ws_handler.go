package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/quiz"
	"github.com/gorilla/websocket"
)

// WSHandler runs one quiz attempt per websocket connection.
type WSHandler struct {
	service  *app.AttemptService
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, log *slog.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		log:      log,
		upgrader: newUpgrader(),
	}
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Option int `json:"option"`
}

type gotoPayload struct {
	Index int `json:"index"`
}

type submitPayload struct {
	Confirmed bool `json:"confirmed"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type startedPayload struct {
	AttemptID string    `json:"attemptId"`
	View      quiz.View `json:"view"`
}

type tickPayload struct {
	Remaining int `json:"remaining"`
}

type confirmPayload struct {
	Unanswered int `json:"unanswered"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// connWriter owns all writes to a connection. Producers never block once the
// connection is gone, which matters for timer hooks that fire on their own
// goroutine.
type connWriter struct {
	conn   *websocket.Conn
	log    *slog.Logger
	send   chan outboundMessage
	closed chan struct{}
	done   chan struct{}
}

func newConnWriter(conn *websocket.Conn, log *slog.Logger) *connWriter {
	w := &connWriter{
		conn:   conn,
		log:    log,
		send:   make(chan outboundMessage, 16),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *connWriter) run() {
	defer close(w.done)
	for {
		select {
		case msg := <-w.send:
			if err := w.conn.WriteJSON(msg); err != nil {
				w.log.Debug("ws write failed", "err", err)
				return
			}
			if msg.Type == "result" {
				// Attempt is over; ask the client to hang up.
				_ = w.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt completed"),
					time.Now().Add(time.Second))
			}
		case <-w.closed:
			return
		}
	}
}

func (w *connWriter) emit(msgType string, payload any) {
	select {
	case w.send <- outboundMessage{Type: msgType, Payload: payload}:
	case <-w.closed:
	}
}

func (w *connWriter) stop() {
	close(w.closed)
	<-w.done
}

// ServeWS upgrades the request and drives an attempt from client commands.
// Query: quizId, userId, name.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")
	username := r.URL.Query().Get("name")
	if quizID == "" || userID == "" || username == "" {
		http.Error(w, "missing quizId, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	out := newConnWriter(conn, h.log)
	defer out.stop()

	ctx := r.Context()
	attempt, err := h.service.StartAttempt(ctx, quizID, userID, username, app.AttemptHooks{
		OnTick: func(remaining int) {
			out.emit("tick", tickPayload{Remaining: remaining})
		},
		OnComplete: func(record domain.ResultRecord) {
			out.emit("result", record)
		},
	})
	if err != nil {
		out.emit("error", errorPayload{Message: err.Error()})
		return
	}
	defer func() {
		// Walking away mid-attempt forfeits it.
		if attempt.Session.Status() == domain.StatusInProgress {
			_ = h.service.Abandon(ctx, attempt.ID)
		}
	}()

	out.emit("started", startedPayload{AttemptID: attempt.ID, View: attempt.Session.Snapshot()})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		h.dispatch(r, attempt.ID, inbound, out)
	}
}

func (h *WSHandler) dispatch(r *http.Request, attemptID string, inbound inboundMessage, out *connWriter) {
	ctx := r.Context()
	var (
		view quiz.View
		err  error
	)
	switch inbound.Type {
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			out.emit("error", errorPayload{Message: "invalid select payload"})
			return
		}
		view, err = h.service.SelectAnswer(ctx, attemptID, payload.Option)
	case "goto":
		var payload gotoPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			out.emit("error", errorPayload{Message: "invalid goto payload"})
			return
		}
		view, err = h.service.GoToQuestion(ctx, attemptID, payload.Index)
	case "next":
		view, err = h.service.Next(ctx, attemptID)
	case "previous":
		view, err = h.service.Previous(ctx, attemptID)
	case "submit":
		var payload submitPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				out.emit("error", errorPayload{Message: "invalid submit payload"})
				return
			}
		}
		record, err := h.service.Submit(ctx, attemptID, payload.Confirmed)
		var confirm *domain.ConfirmationRequiredError
		switch {
		case errors.As(err, &confirm):
			out.emit("confirm", confirmPayload{Unanswered: confirm.Unanswered})
		case err != nil:
			h.emitError(out, attemptID, err)
		default:
			out.emit("result", record)
		}
		return
	case "abandon":
		if err := h.service.Abandon(ctx, attemptID); err != nil {
			h.emitError(out, attemptID, err)
			return
		}
		out.emit("abandoned", struct{}{})
		return
	default:
		out.emit("error", errorPayload{Message: "unsupported message type"})
		return
	}

	if err != nil {
		h.emitError(out, attemptID, err)
		return
	}
	out.emit("state", view)
}

func (h *WSHandler) emitError(out *connWriter, attemptID string, err error) {
	if !app.IsContractError(err) {
		h.log.Error("attempt command failed", "attempt", attemptID, "err", err)
	}
	out.emit("error", errorPayload{Message: err.Error()})
}
