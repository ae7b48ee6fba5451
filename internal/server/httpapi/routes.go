package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(s.session)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/"+IndexPage, http.StatusFound)
	})

	r.Route("/meta", func(m chi.Router) {
		m.Get("/login", s.loginForm)
		m.Post("/login", s.loginBegin)
		m.Get("/login-callback", s.loginCallback)
		m.Post("/logout", s.logout)

		m.Get("/raw/*", s.raw)
		m.Get("/history/*", s.history)
		m.Get("/profile", s.profile)

		m.Group(func(w chi.Router) {
			w.Use(s.requireWriter)
			w.Post("/render", s.preview)
			w.Get("/new/*", s.newForm)
			w.Post("/new/*", s.create)
			w.Get("/edit/*", s.editForm)
			w.Post("/edit/*", s.update)
		})

		m.With(s.requireAdministrator).Post("/admin-token", s.adminToken)
	})

	r.Get("/*", s.view)

	return r
}
