package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const defaultHistoryLimit = 20

// LeaderboardHandler serves ranked boards and per-user history.
type LeaderboardHandler struct {
	service  *app.AttemptService
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewLeaderboardHandler(service *app.AttemptService, log *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{service: service, log: log, upgrader: newUpgrader()}
}

// GetLeaderboard handles GET /quizzes/{quizID}/leaderboard.
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	quizID := mux.Vars(r)["quizID"]
	board, err := h.service.Leaderboard(r.Context(), quizID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ListQuizzes handles GET /quizzes?topicId=.
func (h *LeaderboardHandler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.service.ListQuizzes(r.Context(), r.URL.Query().Get("topicId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

// GetStats handles GET /quizzes/{quizID}/stats.
func (h *LeaderboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), mux.Vars(r)["quizID"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetUserResults handles GET /users/{userID}/results?limit=N.
func (h *LeaderboardHandler) GetUserResults(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorPayload{Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records, err := h.service.UserHistory(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// ServeLiveLeaderboard streams the board for ?quizId= whenever a result lands.
func (h *LeaderboardHandler) ServeLiveLeaderboard(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	updates, cancel, err := h.service.SubscribeLeaderboard(r.Context(), quizID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case board, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: board}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *LeaderboardHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		status = http.StatusNotFound
	case app.IsContractError(err):
		status = http.StatusBadRequest
	default:
		h.log.Error("request failed", "err", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
