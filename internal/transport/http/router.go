package http

import (
	"log/slog"
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"github.com/gorilla/mux"
)

// NewRouter mounts every HTTP and websocket route of the service.
func NewRouter(service *app.AttemptService, log *slog.Logger) *mux.Router {
	attempts := NewWSHandler(service, log)
	boards := NewLeaderboardHandler(service, log)

	r := mux.NewRouter()
	r.Use(requestLogger(log))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", attempts.ServeWS)
	r.HandleFunc("/ws/leaderboard", boards.ServeLiveLeaderboard)
	r.HandleFunc("/quizzes", boards.ListQuizzes).Methods(http.MethodGet)
	r.HandleFunc("/quizzes/{quizID}/leaderboard", boards.GetLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/quizzes/{quizID}/stats", boards.GetStats).Methods(http.MethodGet)
	r.HandleFunc("/users/{userID}/results", boards.GetUserResults).Methods(http.MethodGet)
	return r
}

func requestLogger(log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("http request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
		})
	}
}
