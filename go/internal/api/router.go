package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewHandler builds the REST router.
func NewHandler(sessionHandler *SessionHandler, voteHandler *VoteHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{code}", sessionHandler.Get)
			r.Post("/{code}/join", sessionHandler.Join)
			r.Post("/{code}/start", sessionHandler.Start)
			r.Post("/{code}/end", sessionHandler.End)
			r.Post("/{code}/reset", sessionHandler.Reset)
			r.Post("/{code}/replace", sessionHandler.Replace)

			r.Post("/{code}/votes", voteHandler.Cast)
			r.Get("/{code}/votes", voteHandler.List)
		})
	})

	return r
}
