package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/filevault/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the full handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/refresh", s.refresh)
		r.Post("/forgot-password", s.forgotPassword)
		r.Post("/reset-password", s.resetPassword)
	})

	r.Route("/api/files", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/", s.upload)
		r.Get("/", s.listMine)
		r.Get("/public", s.listPublic)
		r.Get("/shared", s.listShared)
		r.Delete("/shares/{grantID}", s.revoke)

		r.Route("/{fileID}", func(r chi.Router) {
			r.Get("/", s.download)
			r.Delete("/", s.deleteFile)
			r.Put("/visibility", s.setVisibility)
			r.Post("/shares", s.share)
			r.Get("/shares", s.listGrants)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
