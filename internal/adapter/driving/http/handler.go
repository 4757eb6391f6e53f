package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/peerline/peerline/internal/core/service"
)

type Handler struct {
	Supervisor     *service.Supervisor
	SendQueueDepth int
}

func NewHandler(supervisor *service.Supervisor, sendQueueDepth int) *Handler {
	return &Handler{
		Supervisor:     supervisor,
		SendQueueDepth: sendQueueDepth,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ws", h.ServeWS)

	return r
}
